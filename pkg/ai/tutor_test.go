package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/JackYouk/esol/pkg/domain"
)

type recordingCompleter struct {
	model    string
	messages []ChatMessage
	reply    string
	err      error
	calls    int
}

func (r *recordingCompleter) Complete(_ context.Context, model string, messages []ChatMessage) (string, error) {
	r.calls++
	r.model = model
	r.messages = messages
	return r.reply, r.err
}

func TestMapRole(t *testing.T) {
	tests := []struct {
		role domain.MessageRole
		want string
	}{
		{domain.MessageRoleSystem, "system"},
		{domain.MessageRoleUser, "user"},
		{domain.MessageRole("ASSISTANT"), "assistant"},
		{domain.MessageRole(""), "assistant"},
	}
	for _, tc := range tests {
		if got := MapRole(tc.role); got != tc.want {
			t.Fatalf("MapRole(%q) = %q, want %q", tc.role, got, tc.want)
		}
	}
}

func TestTutorInvokeEmptyHistory(t *testing.T) {
	completer := &recordingCompleter{reply: "x"}
	tutor, err := NewTutor(completer, "")
	if err != nil {
		t.Fatalf("new tutor: %v", err)
	}
	_, err = tutor.Invoke(context.Background(), nil, domain.AIModelGPT4oMini)
	if !errors.Is(err, ErrEmptyHistory) {
		t.Fatalf("expected ErrEmptyHistory, got %v", err)
	}
	if errors.Is(err, ErrInvocation) {
		t.Fatalf("empty history must be distinguishable from invocation errors")
	}
	if completer.calls != 0 {
		t.Fatalf("completer should not be called")
	}
}

func TestTutorInvokeMapsRolesAndUsesFixedModel(t *testing.T) {
	completer := &recordingCompleter{reply: "well done"}
	tutor, _ := NewTutor(completer, "")
	history := []domain.Message{
		{Role: domain.MessageRoleUser, Content: "init"},
		{Role: domain.MessageRoleSystem, Content: "reply"},
		{Role: domain.MessageRole("TUTOR"), Content: "other"},
	}
	reply, err := tutor.Invoke(context.Background(), history, domain.AIModel("SOMETHING_ELSE"))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if reply != "well done" {
		t.Fatalf("reply = %q", reply)
	}
	if completer.model != DefaultTutorModel {
		t.Fatalf("model = %q, want %q", completer.model, DefaultTutorModel)
	}
	want := []ChatMessage{{"user", "init"}, {"system", "reply"}, {"assistant", "other"}}
	if len(completer.messages) != len(want) {
		t.Fatalf("messages = %+v", completer.messages)
	}
	for i := range want {
		if completer.messages[i] != want[i] {
			t.Fatalf("message %d = %+v, want %+v", i, completer.messages[i], want[i])
		}
	}
}

func TestTutorInvokeWrapsProviderFailure(t *testing.T) {
	cause := errors.New("connection reset")
	tutor, _ := NewTutor(&recordingCompleter{err: cause}, "gpt-4o-mini")
	_, err := tutor.Invoke(context.Background(), []domain.Message{{Role: domain.MessageRoleUser, Content: "hi"}}, "")
	if !errors.Is(err, ErrInvocation) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped invocation error, got %v", err)
	}
}

func TestTutorInvokeNeverReturnsEmptySuccess(t *testing.T) {
	tutor, _ := NewTutor(&recordingCompleter{reply: ""}, "gpt-4o-mini")
	reply, err := tutor.Invoke(context.Background(), []domain.Message{{Role: domain.MessageRoleUser, Content: "hi"}}, "")
	if err == nil || reply != "" {
		t.Fatalf("expected error for empty reply, got %q, %v", reply, err)
	}
	if !errors.Is(err, ErrInvocation) {
		t.Fatalf("expected ErrInvocation, got %v", err)
	}
}

func TestNewTutorRequiresCompleter(t *testing.T) {
	if _, err := NewTutor(nil, "m"); err == nil {
		t.Fatalf("expected error for nil completer")
	}
}
