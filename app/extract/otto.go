package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/product-comb/app/catalog"
)

var ottoLabelSelectors = []string{
	`[data-qa="sustainability-label"]`,
	`.pdp_sustainability__label`,
	`.js_pdp_sustainability img[alt]`,
}

// Otto reads otto.de detail pages: structured data first, then the
// sustainability badges shown next to the product.
type Otto struct {
	chain *Chain
}

func NewOtto() *Otto {
	return &Otto{chain: NewChain("otto", JSONLD{}, OpenGraph{})}
}

func (o *Otto) Name() string { return "otto" }

func (o *Otto) Extract(p *Page) Result {
	res := o.chain.Extract(p)
	if res.Outcome != OutcomeProduct {
		return res
	}

	for _, sel := range ottoLabelSelectors {
		p.Doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			text := cleanText(s.Text())
			if text == "" {
				text, _ = s.Attr("alt")
			}
			if cert, err := catalog.ParseCertificate(text); err == nil {
				res.Product.SustainabilityLabels = appendUnique(res.Product.SustainabilityLabels, string(cert))
			}
		})
	}

	if articleNo := cleanText(p.Doc.Find(`[data-qa="article-number"]`).First().Text()); articleNo != "" {
		setIdentifier(res.Product, "otto_article_number", articleNo)
	}

	return res
}
