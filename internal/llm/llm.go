// Package llm wraps the language model behind a small request/response
// boundary with retry-on-rate-limit handling.
package llm

import "context"

// Request is a single generation call.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	JSON        bool // ask the model for a JSON object response
}

// Service is the language model boundary. Implementations own their own
// rate-limit retry policy; callers see a single blocking call.
type Service interface {
	Generate(ctx context.Context, req Request) (string, error)
}
