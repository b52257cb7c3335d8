package extract

import (
	"github.com/lysyi3m/product-comb/app/catalog"
)

// Zalando reads the article JSON served by the catalogue API. HTML pages
// fall back to structured data.
type Zalando struct {
	fallback *Chain
}

func NewZalando() *Zalando {
	return &Zalando{fallback: NewChain("zalando", JSONLD{}, OpenGraph{})}
}

func (z *Zalando) Name() string { return "zalando" }

func (z *Zalando) Extract(p *Page) Result {
	if p.JSON == nil {
		return z.fallback.Extract(p)
	}

	article, ok := p.JSON.(map[string]any)
	if !ok {
		return Malformed("article body is not a JSON object")
	}
	if inner, ok := article["article"].(map[string]any); ok {
		article = inner
	}

	name := cleanText(str(article["name"]))
	if name == "" {
		return NotProduct("article without name")
	}

	rec := p.newRecord()
	rec.Name = name
	rec.Brand = cleanText(nameOf(article["brand"]))
	rec.Description = truncateRunes(cleanText(str(article["description"])), maxDescriptionRunes)
	rec.Color = cleanText(nameOf(article["color"]))
	rec.SKU = cleanText(str(article["sku"]))
	if rec.SKU != "" {
		setIdentifier(rec, "zalando_sku", rec.SKU)
	}

	if price, ok := article["price"].(map[string]any); ok {
		if amount, ok := number(price["amount"]); ok {
			rec.Price = &amount
		}
		rec.Currency = normalizeCurrency(str(price["currency"]))
	}

	if media, ok := article["media"].([]any); ok {
		for _, item := range media {
			if m, ok := item.(map[string]any); ok {
				rec.ImageURLs = appendUnique(rec.ImageURLs, p.resolve(str(m["uri"])))
			}
		}
	}

	if attrs, ok := article["attributes"].([]any); ok {
		for _, item := range attrs {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			key, value := str(m["key"]), cleanText(str(m["value"]))
			switch key {
			case "size":
				rec.Size = value
			case "ean", "gtin":
				rec.GTIN = value
			}
		}
	}

	if sus, ok := article["sustainability"].(map[string]any); ok {
		if labels, ok := sus["labels"].([]any); ok {
			for _, l := range labels {
				if cert, err := catalog.ParseCertificate(nameOf(l)); err == nil {
					rec.SustainabilityLabels = appendUnique(rec.SustainabilityLabels, string(cert))
				}
			}
		}
	}

	return Found(rec)
}
