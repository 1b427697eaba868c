// Package ai talks to chat-completion providers on behalf of the tutor.
package ai

import (
	"context"
	"errors"
)

var (
	// ErrInvocation wraps every failure of the external model call.
	ErrInvocation = errors.New("invocation error")
	// ErrEmptyHistory is returned before any call is made.
	ErrEmptyHistory = errors.New("empty history")
	// ErrNoChoices means the provider answered without a usable completion.
	ErrNoChoices = errors.New("no completion choices")
)

// ChatMessage is one turn in the provider role vocabulary.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompleter submits an ordered chat history and returns the first completion.
// OpenAICompatClient and OllamaClient implement it.
type ChatCompleter interface {
	Complete(ctx context.Context, model string, messages []ChatMessage) (string, error)
}
