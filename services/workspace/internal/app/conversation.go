package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JackYouk/esol/internal/util"
	"github.com/JackYouk/esol/pkg/domain"
	"github.com/JackYouk/esol/pkg/prompt"
	"github.com/JackYouk/esol/pkg/store"
)

// PostMessage records a free-form student message, replays the whole
// conversation to the tutor and records the reply.
// When the tutor fails the student message stays recorded.
func (a *App) PostMessage(ctx context.Context, user domain.User, workspaceID, text string) (domain.Exchange, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Exchange{}, ErrMessageRequired
	}
	ws, convo, err := a.conversationOf(ctx, user, workspaceID)
	if err != nil {
		return domain.Exchange{}, err
	}
	userMsg, err := a.appendMessage(ctx, convo.ID, domain.MessageRoleUser, text)
	if err != nil {
		return domain.Exchange{}, err
	}
	history, err := a.history(ctx, convo.ID)
	if err != nil {
		return domain.Exchange{}, err
	}
	reply, err := a.invokeTutor(ctx, history, convo.AIModel)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("tutor invocation failed", "workspace_id", ws.ID, "user_id", user.ID, "err", err)
		return domain.Exchange{}, err
	}
	systemMsg, err := a.appendMessage(ctx, convo.ID, domain.MessageRoleSystem, reply)
	if err != nil {
		return domain.Exchange{}, err
	}
	return domain.Exchange{Reply: reply, UserMessage: userMsg, SystemMessage: systemMsg}, nil
}

// RunTool dispatches one of the analysis tools on the selected text.
// The tool prompt is sent as a trailing SYSTEM turn that is never stored.
func (a *App) RunTool(ctx context.Context, user domain.User, workspaceID string, tool domain.Tool, selectedText string) (domain.Exchange, error) {
	kind, err := toolPromptKind(tool)
	if err != nil {
		return domain.Exchange{}, err
	}
	ws, convo, err := a.conversationOf(ctx, user, workspaceID)
	if err != nil {
		return domain.Exchange{}, err
	}
	userMsg, err := a.appendMessage(ctx, convo.ID, domain.MessageRoleUser, ToolMarker(tool, selectedText))
	if err != nil {
		return domain.Exchange{}, err
	}
	history, err := a.history(ctx, convo.ID)
	if err != nil {
		return domain.Exchange{}, err
	}
	toolPrompt, err := prompt.Render(kind, prompt.Params{
		SelectedText:   selectedText,
		SelectedWord:   selectedText,
		MisspelledWord: selectedText,
	})
	if err != nil {
		return domain.Exchange{}, fmt.Errorf("render %s prompt: %w", kind, err)
	}
	history = append(history, domain.Message{
		ContextID: convo.ID,
		Role:      domain.MessageRoleSystem,
		Content:   toolPrompt,
		CreatedAt: a.now(),
	})

	reply, err := a.invokeTutor(ctx, history, convo.AIModel)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("tutor invocation failed",
			"workspace_id", ws.ID,
			"user_id", user.ID,
			"tool", string(tool),
			"err", err,
		)
		return domain.Exchange{}, fmt.Errorf("%w: %w", ErrToolInvocationFailed, err)
	}
	systemMsg, err := a.appendMessage(ctx, convo.ID, domain.MessageRoleSystem, reply)
	if err != nil {
		return domain.Exchange{}, err
	}
	return domain.Exchange{Reply: reply, UserMessage: userMsg, SystemMessage: systemMsg}, nil
}

// ToolMarker is the stored USER content that records a tool request,
// e.g. "@VOCABULARYTool photosynthesis".
func ToolMarker(tool domain.Tool, selectedText string) string {
	return "@" + string(tool) + "Tool " + selectedText
}

func toolPromptKind(tool domain.Tool) (prompt.Kind, error) {
	switch tool {
	case domain.ToolGrammar:
		return prompt.KindGrammar, nil
	case domain.ToolVocabulary:
		return prompt.KindVocabulary, nil
	case domain.ToolSpelling:
		return prompt.KindSpelling, nil
	case domain.ToolNone, "":
		return "", ErrNoToolSelected
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedTool, string(tool))
	}
}

func (a *App) conversationOf(ctx context.Context, user domain.User, workspaceID string) (domain.Workspace, domain.Context, error) {
	ws, err := a.accessibleWorkspace(ctx, user, workspaceID)
	if err != nil {
		return domain.Workspace{}, domain.Context{}, err
	}
	convo, err := a.contextOf(ctx, ws.ID)
	if err != nil {
		return domain.Workspace{}, domain.Context{}, err
	}
	return ws, convo, nil
}

func (a *App) appendMessage(ctx context.Context, contextID string, role domain.MessageRole, content string) (domain.Message, error) {
	msg, err := a.store.AppendMessage(ctx, contextID, domain.Message{
		ID:        util.NewID(),
		ContextID: contextID,
		Role:      role,
		Content:   content,
		CreatedAt: a.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrContextNotFound) {
			return domain.Message{}, ErrWorkspaceNotFound
		}
		return domain.Message{}, fmt.Errorf("%w: append message: %w", ErrPersistence, err)
	}
	return msg, nil
}

func (a *App) history(ctx context.Context, contextID string) ([]domain.Message, error) {
	msgs, err := a.store.ListMessages(ctx, contextID)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %w", ErrPersistence, err)
	}
	return msgs, nil
}

func (a *App) invokeTutor(ctx context.Context, history []domain.Message, model domain.AIModel) (string, error) {
	start := time.Now()
	reply, err := a.tutor.Invoke(ctx, history, model)
	a.metrics.ObserveTutor(err, time.Since(start))
	if err != nil {
		if !errors.Is(err, ErrInvocation) {
			err = fmt.Errorf("%w: %w", ErrInvocation, err)
		}
		return "", err
	}
	return reply, nil
}
