// Package analyzer provides the local text-analysis implementations: a
// disabled no-op and an in-process NLP analyzer. The remote LLM-backed
// analyzers live in their own packages.
package analyzer

import (
	"context"

	"github.com/mailsift/mailsift/internal/core"
)

// Noop is the analyzer used when text analysis is turned off. Enabled
// returns false, so the scoring engine never calls the other methods.
type Noop struct{}

// NewNoop creates a disabled analyzer.
func NewNoop() *Noop { return &Noop{} }

func (*Noop) Enabled() bool { return false }

func (*Noop) Analyze(context.Context, string) (*core.TextAnalysis, error) {
	return &core.TextAnalysis{}, nil
}

func (*Noop) Similarity(context.Context, string, string) (float64, error) {
	return 0, nil
}
