package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/product-comb/app/product"
	"github.com/lysyi3m/product-comb/app/tables"
)

// FeedSeeds reads RSS, Atom or JSON product feeds and returns one DETAIL
// request per item link, carrying the metadata of the feed entry. Feeds that
// cannot be read are reported in the returned error; the requests of the
// other feeds are still returned.
func FeedSeeds(ctx context.Context, feeds []tables.Seed, client *http.Client, userAgent string) ([]Request, error) {
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = userAgent

	var (
		reqs []Request
		errs []error
	)
	for _, f := range feeds {
		feed, err := parser.ParseURLWithContext(f.URL, ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to parse feed %s: %w", f.URL, err))
			continue
		}

		meta := seedMeta(f)
		n := 0
		for _, item := range feed.Items {
			link := strings.TrimSpace(item.Link)
			if link == "" {
				continue
			}
			reqs = append(reqs, Request{
				URL:     link,
				Kind:    product.PageKindDetail,
				Meta:    meta,
				Referer: f.URL,
			})
			n++
		}
		slog.Debug("Product feed read", "feed", f.URL, "title", feed.Title, "items", n)
	}

	return reqs, errors.Join(errs...)
}
