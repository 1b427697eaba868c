package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JackYouk/esol/internal/metrics"
	"github.com/JackYouk/esol/internal/util"
	"github.com/JackYouk/esol/pkg/domain"
	"github.com/JackYouk/esol/pkg/extract"
	"github.com/JackYouk/esol/pkg/storage"
	"github.com/JackYouk/esol/pkg/store"
)

const (
	minTitleLength        = 4
	defaultMaxUploadBytes = 4_718_592
	defaultPresignExpiry  = 15 * time.Minute
)

// Tutor answers a replayed conversation. *ai.Tutor implements it.
type Tutor interface {
	Invoke(ctx context.Context, history []domain.Message, model domain.AIModel) (string, error)
}

// Config holds the collaborators of the workspace application.
type Config struct {
	Store          store.Store
	Objects        storage.ObjectStore
	Extractor      extract.Extractor
	Tutor          Tutor
	Metrics        *metrics.Metrics
	MaxUploadBytes int64
	PresignExpiry  time.Duration
}

// App implements workspace creation, the tutor conversation and notes.
type App struct {
	store          store.Store
	objects        storage.ObjectStore
	extractor      extract.Extractor
	tutor          Tutor
	metrics        *metrics.Metrics
	maxUploadBytes int64
	presignExpiry  time.Duration
	now            func() time.Time
}

// New constructs the application. Every handle is built once by the caller
// and shared by all requests.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	if cfg.Extractor == nil {
		return nil, errors.New("text extractor required")
	}
	if cfg.Tutor == nil {
		return nil, errors.New("tutor required")
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	presign := cfg.PresignExpiry
	if presign <= 0 {
		presign = defaultPresignExpiry
	}
	return &App{
		store:          cfg.Store,
		objects:        cfg.Objects,
		extractor:      cfg.Extractor,
		tutor:          cfg.Tutor,
		metrics:        cfg.Metrics,
		maxUploadBytes: maxUpload,
		presignExpiry:  presign,
		now:            func() time.Time { return time.Now().UTC() },
	}, nil
}

// MaxUploadBytes is the largest accepted document.
func (a *App) MaxUploadBytes() int64 {
	return a.maxUploadBytes
}

// ResolveOrCreateUser maps a verified identity to a stored user: by
// identity id first, then by email, otherwise a new STUDENT is created.
func (a *App) ResolveOrCreateUser(ctx context.Context, identity domain.Identity) (domain.User, error) {
	subject := strings.TrimSpace(identity.Subject)
	if subject == "" {
		return domain.User{}, fmt.Errorf("%w: identity subject missing", ErrUnauthenticated)
	}
	user, ok, err := a.store.GetUserByID(ctx, subject)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: get user: %w", ErrPersistence, err)
	}
	if ok {
		return user, nil
	}

	email := strings.ToLower(strings.TrimSpace(identity.Email))
	if email == "" {
		return domain.User{}, fmt.Errorf("%w: identity email missing", ErrUnauthenticated)
	}
	user, ok, err = a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: get user by email: %w", ErrPersistence, err)
	}
	if ok {
		return user, nil
	}

	now := a.now()
	name := strings.TrimSpace(identity.Name)
	if name == "" {
		name = email
	}
	user = domain.User{
		ID:        subject,
		Name:      name,
		Email:     email,
		Role:      domain.RoleStudent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveUser(ctx, user); err != nil {
		return domain.User{}, fmt.Errorf("%w: create user: %w", ErrPersistence, err)
	}
	util.LoggerFromContext(ctx).Info("user created", "user_id", user.ID)
	return user, nil
}

// accessibleWorkspace loads a workspace the user created or was shared
// into. Anything else reads as not found.
func (a *App) accessibleWorkspace(ctx context.Context, user domain.User, workspaceID string) (domain.Workspace, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return domain.Workspace{}, ErrWorkspaceNotFound
	}
	ws, ok, err := a.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return domain.Workspace{}, fmt.Errorf("%w: get workspace: %w", ErrPersistence, err)
	}
	if !ok || !ws.HasAccess(user.ID) {
		return domain.Workspace{}, ErrWorkspaceNotFound
	}
	return ws, nil
}
