package conversation

import "context"

// Result is one generated turn. All fields are opaque tokens to the engine:
// it persists them without interpreting their semantics.
type Result struct {
	Reply     string
	NextStep  string
	Intent    string
	ListingID *int64
}

// Generator produces a reply plus the proposed next conversation state for an
// assembled prompt. The variant in use (AI-backed or canned) is chosen once
// at process start, not per request.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Result, error)
}
