package extract

import "strings"

// Chain tries extractors in order and returns the first product found. When
// none finds one, a malformed result wins over a not-product result.
type Chain struct {
	name  string
	steps []Extractor
}

func NewChain(name string, steps ...Extractor) *Chain {
	return &Chain{name: name, steps: steps}
}

func (c *Chain) Name() string { return c.name }

func (c *Chain) Extract(p *Page) Result {
	var reasons []string
	malformed := false

	for _, step := range c.steps {
		res := step.Extract(p)
		switch res.Outcome {
		case OutcomeProduct:
			return res
		case OutcomeMalformed:
			malformed = true
		}
		reasons = append(reasons, step.Name()+": "+res.Reason)
	}

	reason := strings.Join(reasons, "; ")
	if malformed {
		return Malformed(reason)
	}
	return NotProduct(reason)
}
