package generation

import (
	"context"
	"fmt"
)

// FallbackChain tries a sequence of Generators in order, returning the
// first success; if every one fails, it surfaces the last error (spec.md
// §9: "a fallback wrapper that tries a chain of backends and surfaces the
// last error").
type FallbackChain struct {
	chain []Generator
}

// NewFallbackChain constructs a chain tried in the given order. At least
// one generator is required.
func NewFallbackChain(chain ...Generator) *FallbackChain {
	return &FallbackChain{chain: chain}
}

// Generate implements Generator.
func (f *FallbackChain) Generate(ctx context.Context, req Request, target any) (Response, error) {
	if len(f.chain) == 0 {
		return Response{}, fmt.Errorf("generation: fallback chain is empty")
	}
	var lastErr error
	for _, g := range f.chain {
		resp, err := g.Generate(ctx, req, target)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
	}
	return Response{}, lastErr
}
