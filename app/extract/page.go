package extract

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/product-comb/app/product"
)

// Page is a raw page parsed once and shared by the extractors that look at it.
// Doc is set for HTML bodies, JSON for JSON bodies.
type Page struct {
	Raw  *product.RawPage
	URL  *url.URL
	Doc  *goquery.Document
	JSON any
}

func Parse(raw *product.RawPage) (*Page, error) {
	if raw == nil {
		return nil, fmt.Errorf("page is nil")
	}

	body := strings.TrimSpace(raw.Body)
	if body == "" {
		return nil, fmt.Errorf("page body is empty")
	}

	u, err := url.Parse(raw.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid source url: %w", err)
	}

	page := &Page{Raw: raw, URL: u}

	if body[0] == '{' || body[0] == '[' {
		if err := json.Unmarshal([]byte(body), &page.JSON); err != nil {
			return nil, fmt.Errorf("failed to parse JSON body: %w", err)
		}
		return page, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML body: %w", err)
	}
	page.Doc = doc

	return page, nil
}

// newRecord starts a record with the crawl metadata of the page.
func (p *Page) newRecord() *product.Record {
	return &product.Record{
		RawPageID:         p.Raw.ID,
		Table:             p.Raw.Table,
		URL:               p.Raw.SourceURL,
		Category:          p.Raw.Category,
		Gender:            p.Raw.Gender,
		ConsumerLifestage: p.Raw.ConsumerLifestage,
	}
}

func (p *Page) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := p.URL.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

func (p *Page) meta(property string) string {
	if p.Doc == nil {
		return ""
	}
	sel := p.Doc.Find(fmt.Sprintf(`meta[property="%s"], meta[name="%s"]`, property, property)).First()
	content, _ := sel.Attr("content")
	return cleanText(content)
}

func (p *Page) metaAll(property string) []string {
	if p.Doc == nil {
		return nil
	}
	var out []string
	p.Doc.Find(fmt.Sprintf(`meta[property="%s"], meta[name="%s"]`, property, property)).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("content"); ok && strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	})
	return out
}
