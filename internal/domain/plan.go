package domain

import "github.com/shopspring/decimal"

// Plan is a named subscription tier with a USD reference price. The catalog
// is static configuration; it is never mutated at runtime.
type Plan struct {
	ID       string
	PriceUSD decimal.Decimal
}

type Catalog struct {
	plans map[string]Plan
}

func NewCatalog(plans []Plan) *Catalog {
	m := make(map[string]Plan, len(plans))
	for _, p := range plans {
		m[p.ID] = p
	}
	return &Catalog{plans: m}
}

func (c *Catalog) Lookup(planID string) (Plan, bool) {
	p, ok := c.plans[planID]
	return p, ok
}

func (c *Catalog) Has(planID string) bool {
	_, ok := c.plans[planID]
	return ok
}
