package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/product-comb/app/product"
)

// JSONLD reads a schema.org Product from application/ld+json blocks.
type JSONLD struct{}

func (JSONLD) Name() string { return "jsonld" }

func (JSONLD) Extract(p *Page) Result {
	if p.Doc == nil {
		return NotProduct("not an HTML page")
	}

	var (
		found     map[string]any
		badBlocks int
	)
	p.Doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			badBlocks++
			return true
		}
		found = findProduct(data)
		return found == nil
	})

	if found == nil {
		if badBlocks > 0 {
			return Malformed(fmt.Sprintf("%d unparseable JSON-LD blocks and no product", badBlocks))
		}
		return NotProduct("no schema.org product")
	}

	rec := p.newRecord()
	fillFromJSONLD(p, rec, found)

	if rec.Name == "" {
		return Malformed("schema.org product without name")
	}
	if rec.Description == "" {
		rec.Description = readableText(p.Raw.Body, p.URL)
	}

	return Found(rec)
}

func findProduct(v any) map[string]any {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if m := findProduct(item); m != nil {
				return m
			}
		}
	case map[string]any:
		if hasType(t, "Product") || hasType(t, "ProductGroup") {
			return t
		}
		if graph, ok := t["@graph"]; ok {
			return findProduct(graph)
		}
		if entity, ok := t["mainEntity"]; ok {
			return findProduct(entity)
		}
	}
	return nil
}

func hasType(m map[string]any, want string) bool {
	switch t := m["@type"].(type) {
	case string:
		return strings.EqualFold(strings.TrimPrefix(t, "schema:"), want)
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && strings.EqualFold(s, want) {
				return true
			}
		}
	}
	return false
}

func fillFromJSONLD(p *Page, rec *product.Record, m map[string]any) {
	rec.Name = cleanText(str(m["name"]))
	rec.Description = truncateRunes(cleanText(str(m["description"])), maxDescriptionRunes)
	rec.Brand = cleanText(nameOf(m["brand"]))
	rec.Color = cleanText(str(m["color"]))
	rec.Size = cleanText(str(m["size"]))
	rec.SKU = cleanText(str(m["sku"]))

	for _, key := range []string{"gtin", "gtin13", "gtin14", "gtin12", "gtin8"} {
		if v := cleanText(str(m[key])); v != "" {
			rec.GTIN = v
			break
		}
	}
	if mpn := cleanText(str(m["mpn"])); mpn != "" {
		setIdentifier(rec, "mpn", mpn)
	}
	if id := cleanText(str(m["productID"])); id != "" {
		setIdentifier(rec, "product_id", id)
	}

	for _, img := range images(m["image"]) {
		rec.ImageURLs = appendUnique(rec.ImageURLs, p.resolve(img))
	}

	price, currency := offerPrice(m["offers"])
	if price != nil {
		rec.Price = price
	}
	rec.Currency = normalizeCurrency(currency)
}

func offerPrice(v any) (*float64, string) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if price, cur := offerPrice(item); price != nil {
				return price, cur
			}
		}
	case map[string]any:
		cur := str(t["priceCurrency"])
		for _, key := range []string{"price", "lowPrice", "highPrice"} {
			if price, ok := number(t[key]); ok {
				return &price, cur
			}
		}
		if spec, ok := t["priceSpecification"]; ok {
			if price, specCur := offerPrice(spec); price != nil {
				if cur == "" {
					cur = specCur
				}
				return price, cur
			}
		}
		if nested, ok := t["offers"]; ok {
			return offerPrice(nested)
		}
	}
	return nil, ""
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		if len(t) > 0 {
			return str(t[0])
		}
	case map[string]any:
		if s, ok := t["@value"]; ok {
			return str(s)
		}
	}
	return ""
}

func nameOf(v any) string {
	if m, ok := v.(map[string]any); ok {
		return str(m["name"])
	}
	return str(v)
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, t >= 0
	case string:
		return parsePrice(t)
	}
	return 0, false
}

func images(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, images(item)...)
		}
		return out
	case map[string]any:
		if u := str(t["url"]); u != "" {
			return []string{u}
		}
		if u := str(t["contentUrl"]); u != "" {
			return []string{u}
		}
	}
	return nil
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func setIdentifier(rec *product.Record, key, value string) {
	if rec.Identifiers == nil {
		rec.Identifiers = make(map[string]string)
	}
	rec.Identifiers[key] = value
}
