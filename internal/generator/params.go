// Package generator holds the sampling parameters shared by the text
// generation clients.
package generator

// Params are sent unchanged with every generation request.
type Params struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	TopK        int
}

// DefaultParams favour deterministic answers grounded in the context.
var DefaultParams = Params{
	MaxTokens:   4096,
	Temperature: 0,
	TopP:        1,
	TopK:        250,
}

// WithDefaults fills a zero MaxTokens from DefaultParams. Zero values of the
// other fields are meaningful and kept.
func (p Params) WithDefaults() Params {
	if p.MaxTokens <= 0 {
		p.MaxTokens = DefaultParams.MaxTokens
	}
	return p
}
