// Package extract turns fetched pages into product records. Each merchant
// gets an Extractor; generic strategies cover schema.org JSON-LD and Open
// Graph markup.
package extract

import (
	"github.com/lysyi3m/product-comb/app/product"
)

type Outcome string

const (
	OutcomeProduct    Outcome = product.ExtractionProduct
	OutcomeNotProduct Outcome = product.ExtractionNotProduct
	OutcomeMalformed  Outcome = product.ExtractionMalformed
)

// Result is the outcome of running an extractor on one page. Product is set
// only for OutcomeProduct; Reason explains the other outcomes.
type Result struct {
	Outcome Outcome
	Product *product.Record
	Reason  string
}

func Found(rec *product.Record) Result {
	return Result{Outcome: OutcomeProduct, Product: rec}
}

func NotProduct(reason string) Result {
	return Result{Outcome: OutcomeNotProduct, Reason: reason}
}

func Malformed(reason string) Result {
	return Result{Outcome: OutcomeMalformed, Reason: reason}
}

type Extractor interface {
	Name() string
	Extract(p *Page) Result
}
