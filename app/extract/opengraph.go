package extract

// OpenGraph reads og:* and product:* meta tags.
type OpenGraph struct{}

func (OpenGraph) Name() string { return "opengraph" }

func (OpenGraph) Extract(p *Page) Result {
	if p.Doc == nil {
		return NotProduct("not an HTML page")
	}

	ogType := p.meta("og:type")
	amount := p.meta("product:price:amount")
	if amount == "" {
		amount = p.meta("og:price:amount")
	}
	if ogType != "product" && ogType != "og:product" && amount == "" {
		return NotProduct("no open graph product markup")
	}

	rec := p.newRecord()
	rec.Name = p.meta("og:title")
	if rec.Name == "" {
		return Malformed("open graph product without title")
	}

	rec.Description = truncateRunes(p.meta("og:description"), maxDescriptionRunes)
	rec.Brand = p.meta("product:brand")
	rec.Color = p.meta("product:color")
	rec.Size = p.meta("product:size")
	rec.SKU = p.meta("product:retailer_item_id")

	if price, ok := parsePrice(amount); ok {
		rec.Price = &price
	}
	cur := p.meta("product:price:currency")
	if cur == "" {
		cur = p.meta("og:price:currency")
	}
	rec.Currency = normalizeCurrency(cur)

	for _, img := range p.metaAll("og:image") {
		rec.ImageURLs = appendUnique(rec.ImageURLs, p.resolve(img))
	}

	if ean := p.meta("product:ean"); ean != "" {
		rec.GTIN = ean
	}

	if rec.Description == "" {
		rec.Description = readableText(p.Raw.Body, p.URL)
	}

	return Found(rec)
}
