// Package mock provides a test double for the llm.Provider interface.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: "Hello!"},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lingualink/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider. Zero values cause
// Complete to return (nil, nil). Set CompleteErr to inject an error, or
// CompleteFunc to compute responses per request.
type Provider struct {
	mu sync.Mutex

	// CompleteResponse is returned by Complete when CompleteFunc is nil.
	CompleteResponse *llm.CompletionResponse

	// CompleteFunc, if set, takes precedence over CompleteResponse.
	CompleteFunc func(req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Complete records the call and returns the configured response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	fn, resp, err := p.CompleteFunc, p.CompleteResponse, p.CompleteErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(req)
	}
	return resp, nil
}

// Calls returns a snapshot of the recorded Complete invocations.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

var _ llm.Provider = (*Provider)(nil)
