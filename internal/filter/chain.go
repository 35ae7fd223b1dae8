package filter

// Chain matches a frame only when every filter in it matches. Filters run in
// order and evaluation stops at the first rejection. An empty chain matches
// everything.
type Chain struct {
	filters []Filter
}

func NewChain(filters ...Filter) *Chain {
	all := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			all = append(all, f)
		}
	}
	return &Chain{filters: all}
}

// Add appends f to the end of the chain.
func (c *Chain) Add(f Filter) {
	if f != nil {
		c.filters = append(c.filters, f)
	}
}

func (c *Chain) Len() int { return len(c.filters) }

func (c *Chain) Filters() []Filter { return c.filters }

func (c *Chain) Match(data []byte) bool {
	for _, f := range c.filters {
		if !f.Match(data) {
			return false
		}
	}
	return true
}
