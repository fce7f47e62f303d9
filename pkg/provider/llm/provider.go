// Package llm defines the Provider interface for Large Language Model backends.
//
// lingualink uses LLMs as machine-translation engines: the translator sends a
// short instruction plus one sentence and expects only the translated sentence
// back. The interface is kept to the single request/response call that use
// needs, so any chat-completion API can back it.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a completion request.
type Message struct {
	Role    string
	Content string
}

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is typically from
	// the "user" role and drives the response.
	Messages []Message

	// SystemPrompt is an optional instruction sent before Messages. Providers
	// without a dedicated system field prepend it as a "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness. Zero requests the provider
	// default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response. It
	// returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
