package testutil

import (
	"context"

	"demosync/internal/demo"
)

// StaticTokenSource returns the same token on every call, optionally
// failing with Err.
type StaticTokenSource struct {
	Value string
	Err   error
}

func (s *StaticTokenSource) Token(context.Context) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Value, nil
}

// Compile-time check that StaticTokenSource implements demo.TokenSource
var _ demo.TokenSource = (*StaticTokenSource)(nil)
