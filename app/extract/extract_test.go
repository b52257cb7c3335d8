package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/product-comb/app/product"
)

func rawPage(url, body string) *product.RawPage {
	return &product.RawPage{
		ID:        11,
		Table:     "otto_DE",
		Timestamp: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		SourceURL: url,
		Body:      body,
		Kind:      product.PageKindDetail,
		Category:  "SNEAKERS",
		Gender:    "FEMALE",
	}
}

func mustParse(t *testing.T, raw *product.RawPage) *Page {
	t.Helper()
	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	return p
}

const jsonLDPage = `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">{"@context":"https://schema.org","@type":"BreadcrumbList"}</script>
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
  {"@type":"WebPage","name":"ignored"},
  {"@type":["Product"],
   "name":"  Sneaker   Low ",
   "description":"Leather sneaker",
   "brand":{"@type":"Brand","name":"Nike"},
   "image":["/img/1.jpg",{"url":"https://cdn.example/2.jpg"}],
   "sku":"S-1",
   "gtin13":4006381333931,
   "color":"white",
   "offers":{"@type":"AggregateOffer","lowPrice":"89,99","priceCurrency":"eur"}}
]}
</script></head><body></body></html>`

func TestJSONLDExtract(t *testing.T) {
	p := mustParse(t, rawPage("https://www.otto.de/p/sneaker-1/", jsonLDPage))

	res := JSONLD{}.Extract(p)
	if res.Outcome != OutcomeProduct {
		t.Fatalf("Expected product, got %s (%s)", res.Outcome, res.Reason)
	}

	rec := res.Product
	if rec.Name != "Sneaker Low" {
		t.Errorf("Expected normalised name, got %q", rec.Name)
	}
	if rec.Brand != "Nike" || rec.SKU != "S-1" || rec.Color != "white" {
		t.Errorf("Unexpected brand/sku/color: %q %q %q", rec.Brand, rec.SKU, rec.Color)
	}
	if rec.GTIN != "4006381333931" {
		t.Errorf("Expected numeric gtin kept intact, got %q", rec.GTIN)
	}
	if rec.Price == nil || *rec.Price != 89.99 {
		t.Errorf("Expected price 89.99, got %v", rec.Price)
	}
	if rec.Currency != "EUR" {
		t.Errorf("Expected EUR, got %q", rec.Currency)
	}
	if len(rec.ImageURLs) != 2 || rec.ImageURLs[0] != "https://www.otto.de/img/1.jpg" {
		t.Errorf("Unexpected images %v", rec.ImageURLs)
	}
	if rec.RawPageID != 11 || rec.Category != "SNEAKERS" || rec.Gender != "FEMALE" {
		t.Errorf("Crawl metadata not carried: %+v", rec)
	}
}

func TestJSONLDNoProduct(t *testing.T) {
	p := mustParse(t, rawPage("https://www.otto.de/damen/", `<html><head>
<script type="application/ld+json">{"@type":"ItemList"}</script></head><body><p>Listing</p></body></html>`))

	res := JSONLD{}.Extract(p)
	if res.Outcome != OutcomeNotProduct {
		t.Errorf("Expected not_product, got %s", res.Outcome)
	}
	if res.Product != nil {
		t.Errorf("Product should be nil")
	}
}

func TestJSONLDMalformed(t *testing.T) {
	p := mustParse(t, rawPage("https://www.otto.de/p/x/", `<html><head>
<script type="application/ld+json">{"@type": "Product", </script></head></html>`))

	if res := (JSONLD{}).Extract(p); res.Outcome != OutcomeMalformed {
		t.Errorf("Expected malformed, got %s", res.Outcome)
	}

	p = mustParse(t, rawPage("https://www.otto.de/p/x/", `<html><head>
<script type="application/ld+json">{"@type": "Product", "sku": "1"}</script></head></html>`))
	if res := (JSONLD{}).Extract(p); res.Outcome != OutcomeMalformed {
		t.Errorf("Product without name should be malformed, got %s", res.Outcome)
	}
}

const openGraphPage = `<html><head>
<meta property="og:type" content="product">
<meta property="og:title" content="Wool Coat">
<meta property="og:image" content="https://cdn.example/coat-1.jpg">
<meta property="og:image" content="https://cdn.example/coat-2.jpg">
<meta property="product:price:amount" content="1.299,00">
<meta property="product:price:currency" content="EUR">
<meta property="product:brand" content="Hessnatur">
</head><body><article><p>A warm coat made from responsibly sourced wool, cut for long winter walks and cold mornings in the city.</p>
<p>The lining is organic cotton and the buttons are made from corozo nut, so the whole coat can be repaired for years.</p></article></body></html>`

func TestOpenGraphExtract(t *testing.T) {
	p := mustParse(t, rawPage("https://www.otto.de/p/coat/", openGraphPage))

	res := OpenGraph{}.Extract(p)
	if res.Outcome != OutcomeProduct {
		t.Fatalf("Expected product, got %s (%s)", res.Outcome, res.Reason)
	}
	rec := res.Product
	if rec.Name != "Wool Coat" || rec.Brand != "Hessnatur" {
		t.Errorf("Unexpected name/brand %q %q", rec.Name, rec.Brand)
	}
	if rec.Price == nil || *rec.Price != 1299 {
		t.Errorf("Expected 1299, got %v", rec.Price)
	}
	if len(rec.ImageURLs) != 2 {
		t.Errorf("Expected 2 images, got %v", rec.ImageURLs)
	}
	if !strings.Contains(rec.Description, "responsibly sourced wool") {
		t.Errorf("Expected readability description fallback, got %q", rec.Description)
	}
}

func TestOttoSustainabilityLabels(t *testing.T) {
	body := strings.Replace(openGraphPage, "<body>", `<body>
<span data-qa="sustainability-label">Global Organic Textile Standard</span>
<span data-qa="sustainability-label">Made with love</span>
<span data-qa="article-number">S0K1Q0Y7</span>`, 1)
	p := mustParse(t, rawPage("https://www.otto.de/p/coat/", body))

	res := NewOtto().Extract(p)
	if res.Outcome != OutcomeProduct {
		t.Fatalf("Expected product, got %s (%s)", res.Outcome, res.Reason)
	}
	labels := res.Product.SustainabilityLabels
	if len(labels) != 1 || labels[0] != "GOTS" {
		t.Errorf("Expected [GOTS], got %v", labels)
	}
	if res.Product.Identifiers["otto_article_number"] != "S0K1Q0Y7" {
		t.Errorf("Missing article number: %v", res.Product.Identifiers)
	}
}

func TestOttoNotProduct(t *testing.T) {
	p := mustParse(t, rawPage("https://www.otto.de/damen/", `<html><body><h1>Damenmode</h1></body></html>`))

	res := NewOtto().Extract(p)
	if res.Outcome != OutcomeNotProduct {
		t.Errorf("Expected not_product, got %s", res.Outcome)
	}
	if !strings.Contains(res.Reason, "jsonld") || !strings.Contains(res.Reason, "opengraph") {
		t.Errorf("Reason should name each strategy: %q", res.Reason)
	}
}

const amazonPage = `<html><body>
<span id="productTitle">  Organic Cotton T-Shirt  </span>
<a id="bylineInfo">Visit the Armedangels Store</a>
<div class="a-price"><span class="a-offscreen">29,90 €</span></div>
<img id="landingImage" src="/small.jpg" data-old-hires="https://m.media-amazon.com/big.jpg">
<div id="feature-bullets"><ul><li> 100% organic cotton </li><li>Regular fit</li></ul></div>
<input type="hidden" id="ASIN" value="B08XYZ1234">
</body></html>`

func TestAmazonExtract(t *testing.T) {
	p := mustParse(t, rawPage("https://www.amazon.de/dp/B08XYZ1234", amazonPage))

	res := Amazon{}.Extract(p)
	if res.Outcome != OutcomeProduct {
		t.Fatalf("Expected product, got %s (%s)", res.Outcome, res.Reason)
	}
	rec := res.Product
	if rec.Name != "Organic Cotton T-Shirt" {
		t.Errorf("Unexpected name %q", rec.Name)
	}
	if rec.Brand != "Armedangels" {
		t.Errorf("Unexpected brand %q", rec.Brand)
	}
	if rec.Price == nil || *rec.Price != 29.90 || rec.Currency != "EUR" {
		t.Errorf("Unexpected price %v %q", rec.Price, rec.Currency)
	}
	if rec.SKU != "B08XYZ1234" || rec.Identifiers["asin"] != "B08XYZ1234" {
		t.Errorf("Unexpected asin %q %v", rec.SKU, rec.Identifiers)
	}
	if len(rec.ImageURLs) != 1 || rec.ImageURLs[0] != "https://m.media-amazon.com/big.jpg" {
		t.Errorf("Unexpected images %v", rec.ImageURLs)
	}
	if rec.Description != "100% organic cotton Regular fit" {
		t.Errorf("Unexpected description %q", rec.Description)
	}
}

func TestAmazonCaptcha(t *testing.T) {
	p := mustParse(t, rawPage("https://www.amazon.de/dp/B08XYZ1234",
		`<html><body><form action="/errors/validateCaptcha"></form></body></html>`))

	if res := (Amazon{}).Extract(p); res.Outcome != OutcomeMalformed {
		t.Errorf("Expected malformed for captcha page, got %s", res.Outcome)
	}
}

func TestZalandoJSON(t *testing.T) {
	body := `{"article":{"sku":"NI112N0AB-A11","name":"Air Max","brand":{"name":"Nike Sportswear"},
"price":{"amount":"119,95","currency":"EUR"},"media":[{"uri":"https://img01.ztat.net/a.jpg"}],
"attributes":[{"key":"size","value":"42"},{"key":"ean","value":"0194953000000"}],
"sustainability":{"labels":["Recycled materials","Better Cotton Initiative"]}}}`
	p := mustParse(t, rawPage("https://api.zalando.de/articles/NI112N0AB-A11", body))

	res := NewZalando().Extract(p)
	if res.Outcome != OutcomeProduct {
		t.Fatalf("Expected product, got %s (%s)", res.Outcome, res.Reason)
	}
	rec := res.Product
	if rec.Name != "Air Max" || rec.Brand != "Nike Sportswear" || rec.Size != "42" {
		t.Errorf("Unexpected fields %+v", rec)
	}
	if rec.Price == nil || *rec.Price != 119.95 {
		t.Errorf("Unexpected price %v", rec.Price)
	}
	if len(rec.SustainabilityLabels) != 1 || rec.SustainabilityLabels[0] != "BETTER_COTTON" {
		t.Errorf("Unexpected labels %v", rec.SustainabilityLabels)
	}
}

func TestZalandoFallsBackToStructuredData(t *testing.T) {
	p := mustParse(t, rawPage("https://www.zalando.de/nike-air.html", jsonLDPage))

	if res := NewZalando().Extract(p); res.Outcome != OutcomeProduct {
		t.Errorf("Expected product from JSON-LD fallback, got %s", res.Outcome)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	if _, err := Parse(rawPage("https://x.example/", "   ")); err == nil {
		t.Error("Expected error for empty body")
	}
	if _, err := Parse(rawPage("https://x.example/", "{broken")); err == nil {
		t.Error("Expected error for broken JSON")
	}
}

func TestRegistry(t *testing.T) {
	reg := Registry()
	for _, name := range []string{"jsonld", "opengraph", "otto", "amazon", "zalando"} {
		if _, err := Lookup(reg, name); err != nil {
			t.Errorf("Lookup(%s) returned error: %v", name, err)
		}
	}
	if _, err := Lookup(reg, "ebay"); err == nil {
		t.Error("Expected error for unknown extractor")
	}
}
