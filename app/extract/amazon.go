package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var asinRe = regexp.MustCompile(`/(?:dp|gp/product)/([A-Z0-9]{10})`)

var bylinePrefixes = []string{
	"Visit the ", "Besuche den ", "Marke: ", "Brand: ",
}

// Amazon reads amazon detail pages by their stable element ids.
type Amazon struct{}

func (Amazon) Name() string { return "amazon" }

func (Amazon) Extract(p *Page) Result {
	if p.Doc == nil {
		return NotProduct("not an HTML page")
	}
	if p.Doc.Find(`form[action*="validateCaptcha"]`).Length() > 0 {
		return Malformed("captcha page")
	}

	title := cleanText(p.Doc.Find("#productTitle").First().Text())
	if title == "" {
		return NotProduct("no product title")
	}

	rec := p.newRecord()
	rec.Name = title
	rec.Brand = amazonBrand(cleanText(p.Doc.Find("#bylineInfo").First().Text()))

	priceText := cleanText(p.Doc.Find(".a-price .a-offscreen").First().Text())
	if price, ok := parsePrice(priceText); ok {
		rec.Price = &price
		rec.Currency = currencyFromText(priceText)
	}

	img := p.Doc.Find("#landingImage").First()
	if src, ok := img.Attr("data-old-hires"); ok && src != "" {
		rec.ImageURLs = appendUnique(rec.ImageURLs, p.resolve(src))
	} else if src, ok := img.Attr("src"); ok {
		rec.ImageURLs = appendUnique(rec.ImageURLs, p.resolve(src))
	}

	var bullets []string
	p.Doc.Find("#feature-bullets li").Each(func(_ int, s *goquery.Selection) {
		if t := cleanText(s.Text()); t != "" {
			bullets = append(bullets, t)
		}
	})
	rec.Description = truncateRunes(strings.Join(bullets, " "), maxDescriptionRunes)
	if rec.Description == "" {
		rec.Description = readableText(p.Raw.Body, p.URL)
	}

	rec.Color = cleanText(p.Doc.Find("#variation_color_name .selection").First().Text())
	rec.Size = cleanText(p.Doc.Find("#variation_size_name .selection").First().Text())

	asin, _ := p.Doc.Find("input#ASIN").Attr("value")
	if asin == "" {
		if m := asinRe.FindStringSubmatch(p.Raw.SourceURL); m != nil {
			asin = m[1]
		}
	}
	if asin != "" {
		rec.SKU = asin
		setIdentifier(rec, "asin", asin)
	}

	return Found(rec)
}

func amazonBrand(byline string) string {
	for _, prefix := range bylinePrefixes {
		byline = strings.TrimPrefix(byline, prefix)
	}
	byline = strings.TrimSuffix(byline, " Store")
	byline = strings.TrimSuffix(byline, "-Store")
	return strings.TrimSpace(byline)
}
