package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JackYouk/esol/pkg/domain"
)

// DefaultTutorModel is the provider model every workspace is answered with.
const DefaultTutorModel = "gpt-4o-mini"

// Tutor replays a context's message log to the chat provider.
type Tutor struct {
	completer ChatCompleter
	model     string
}

// NewTutor builds a tutor bound to one provider model.
func NewTutor(completer ChatCompleter, model string) (*Tutor, error) {
	if completer == nil {
		return nil, errors.New("chat completer required")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultTutorModel
	}
	return &Tutor{completer: completer, model: model}, nil
}

// Model returns the provider model name requests are sent to.
func (t *Tutor) Model() string {
	return t.model
}

// Invoke sends history in order and returns the first completion.
// The workspace model id is accepted but requests always go to t.model.
func (t *Tutor) Invoke(ctx context.Context, history []domain.Message, _ domain.AIModel) (string, error) {
	if len(history) == 0 {
		return "", ErrEmptyHistory
	}
	messages := make([]ChatMessage, 0, len(history))
	for _, msg := range history {
		messages = append(messages, ChatMessage{Role: MapRole(msg.Role), Content: msg.Content})
	}
	reply, err := t.completer.Complete(ctx, t.model, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvocation, err)
	}
	if reply == "" {
		return "", fmt.Errorf("%w: %w", ErrInvocation, ErrNoChoices)
	}
	return reply, nil
}

// MapRole folds internal roles into the provider vocabulary. Anything that
// is neither SYSTEM nor USER is treated as an assistant turn.
func MapRole(role domain.MessageRole) string {
	switch role {
	case domain.MessageRoleSystem:
		return "system"
	case domain.MessageRoleUser:
		return "user"
	default:
		return "assistant"
	}
}
