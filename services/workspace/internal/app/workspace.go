package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JackYouk/esol/internal/util"
	"github.com/JackYouk/esol/pkg/domain"
	"github.com/JackYouk/esol/pkg/extract"
	"github.com/JackYouk/esol/pkg/prompt"
	"github.com/JackYouk/esol/pkg/storage"
	"github.com/JackYouk/esol/pkg/store"
)

const pdfContentType = "application/pdf"

// CreateWorkspaceInput is one uploaded study document plus its metadata.
type CreateWorkspaceInput struct {
	Title       string
	Description string
	AIModel     string
	Filename    string
	ContentType string
	Data        []byte
	// ClassroomID and MemberIDs turn the workspace into a shared template.
	ClassroomID string
	MemberIDs   []string
}

// WorkspaceDetail is a workspace with its ordered conversation.
type WorkspaceDetail struct {
	Workspace domain.Workspace `json:"workspace"`
	Messages  []domain.Message `json:"messages"`
}

// CreateWorkspace uploads the document, extracts its text, seeds the
// conversation with the INIT prompt and persists everything as one unit.
// A failure after the upload removes the stored document again.
func (a *App) CreateWorkspace(ctx context.Context, user domain.User, in CreateWorkspaceInput) (string, error) {
	title := strings.TrimSpace(in.Title)
	if utf8.RuneCountInString(title) < minTitleLength {
		return "", ErrInvalidTitle
	}
	model := domain.AIModelGPT4oMini
	if raw := strings.TrimSpace(in.AIModel); raw != "" {
		parsed, ok := domain.ParseAIModel(raw)
		if !ok {
			return "", ErrInvalidModel
		}
		model = parsed
	}
	if int64(len(in.Data)) > a.maxUploadBytes {
		return "", ErrFileTooLarge
	}
	if !isPDF(in.ContentType, in.Data) {
		return "", ErrNotPDF
	}

	logger := util.LoggerFromContext(ctx)
	wsID := util.NewID()
	key := storage.PDFKey(wsID, in.Filename)
	if err := a.objects.Put(ctx, key, bytes.NewReader(in.Data), int64(len(in.Data)), pdfContentType); err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, err)
	}
	cleanup := func(reason string) {
		if err := a.objects.Delete(context.WithoutCancel(ctx), key); err != nil {
			logger.Warn("remove orphaned document failed", "key", key, "reason", reason, "err", err)
		}
	}

	text, err := a.extractor.Extract(ctx, in.Data)
	if err != nil {
		cleanup("extraction")
		return "", fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	initPrompt, err := prompt.Render(prompt.KindInit, prompt.Params{StudyText: text})
	if err != nil {
		cleanup("prompt")
		return "", fmt.Errorf("render init prompt: %w", err)
	}

	now := a.now()
	ws := domain.Workspace{
		ID:          wsID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		ActiveAI:    model,
		PDFURL:      a.objects.URL(key),
		StorageKey:  key,
		CreatorID:   user.ID,
		ClassroomID: strings.TrimSpace(in.ClassroomID),
		MemberIDs:   normalizeMembers(in.MemberIDs, user.ID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	convo := domain.Context{
		ID:          util.NewID(),
		WorkspaceID: wsID,
		AIModel:     model,
		CreatedAt:   now,
	}
	first := domain.Message{
		ID:        util.NewID(),
		ContextID: convo.ID,
		Role:      domain.MessageRoleUser,
		Content:   initPrompt,
		CreatedAt: now,
	}
	if err := a.store.CreateWorkspace(ctx, ws, convo, first); err != nil {
		cleanup("persistence")
		return "", fmt.Errorf("%w: create workspace: %w", ErrPersistence, err)
	}
	a.metrics.WorkspaceCreated()
	logger.Info("workspace created",
		"workspace_id", wsID,
		"user_id", user.ID,
		"classroom_id", ws.ClassroomID,
		"members", len(ws.MemberIDs),
		"study_text_runes", utf8.RuneCountInString(text),
	)
	return wsID, nil
}

// ListWorkspaces returns workspaces the user created or was shared into, newest first.
func (a *App) ListWorkspaces(ctx context.Context, user domain.User) ([]domain.Workspace, error) {
	items, err := a.store.ListWorkspacesForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: list workspaces: %w", ErrPersistence, err)
	}
	return items, nil
}

// GetWorkspace returns a workspace and its conversation in order.
func (a *App) GetWorkspace(ctx context.Context, user domain.User, workspaceID string) (WorkspaceDetail, error) {
	ws, err := a.accessibleWorkspace(ctx, user, workspaceID)
	if err != nil {
		return WorkspaceDetail{}, err
	}
	convo, err := a.contextOf(ctx, ws.ID)
	if err != nil {
		return WorkspaceDetail{}, err
	}
	msgs, err := a.store.ListMessages(ctx, convo.ID)
	if err != nil {
		return WorkspaceDetail{}, fmt.Errorf("%w: list messages: %w", ErrPersistence, err)
	}
	return WorkspaceDetail{Workspace: ws, Messages: msgs}, nil
}

// DocumentURL returns a short-lived download link for the workspace PDF.
func (a *App) DocumentURL(ctx context.Context, user domain.User, workspaceID string) (string, error) {
	ws, err := a.accessibleWorkspace(ctx, user, workspaceID)
	if err != nil {
		return "", err
	}
	if ws.StorageKey == "" {
		return ws.PDFURL, nil
	}
	url, err := a.objects.PresignGet(ctx, ws.StorageKey, a.presignExpiry)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return url, nil
}

// SaveNotes replaces the workspace notes. Failures are reported as
// ErrSaveFailed together with the underlying kind.
func (a *App) SaveNotes(ctx context.Context, user domain.User, workspaceID, notes string) error {
	ws, err := a.accessibleWorkspace(ctx, user, workspaceID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	if err := a.store.UpdateNotes(ctx, ws.ID, notes); err != nil {
		if errors.Is(err, store.ErrWorkspaceNotFound) {
			return fmt.Errorf("%w: %w", ErrSaveFailed, ErrWorkspaceNotFound)
		}
		return fmt.Errorf("%w: %w: %w", ErrSaveFailed, ErrPersistence, err)
	}
	util.LoggerFromContext(ctx).Debug("notes saved", "workspace_id", ws.ID, "user_id", user.ID, "bytes", len(notes))
	return nil
}

// ClassroomMembers reports activity of everyone with a workspace in the classroom.
func (a *App) ClassroomMembers(ctx context.Context, classroomID string) ([]domain.ClassroomMember, error) {
	classroomID = strings.TrimSpace(classroomID)
	if classroomID == "" {
		return nil, fmt.Errorf("%w: classroom id required", ErrValidation)
	}
	members, err := a.store.ListClassroomMembers(ctx, classroomID)
	if err != nil {
		return nil, fmt.Errorf("%w: list classroom members: %w", ErrPersistence, err)
	}
	return members, nil
}

func (a *App) contextOf(ctx context.Context, workspaceID string) (domain.Context, error) {
	convo, ok, err := a.store.GetContextByWorkspace(ctx, workspaceID)
	if err != nil {
		return domain.Context{}, fmt.Errorf("%w: get context: %w", ErrPersistence, err)
	}
	if !ok {
		return domain.Context{}, ErrWorkspaceNotFound
	}
	return convo, nil
}

func isPDF(contentType string, data []byte) bool {
	if len(data) == 0 {
		return false
	}
	mediaType, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(contentType)), ";")
	return strings.TrimSpace(mediaType) == pdfContentType || extract.LooksLikePDF(data)
}

// normalizeMembers drops blanks, duplicates and the creator.
func normalizeMembers(ids []string, creatorID string) []string {
	seen := map[string]struct{}{creatorID: {}}
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
