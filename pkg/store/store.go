package store

import (
	"context"
	"errors"

	"github.com/JackYouk/esol/pkg/domain"
)

var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrContextNotFound   = errors.New("context not found")
)

// Store defines persistence operations for users, workspaces and their conversations.
type Store interface {
	// users
	SaveUser(ctx context.Context, u domain.User) error
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)

	// workspaces
	// CreateWorkspace persists the workspace, its context and the first
	// message as one unit: either all three are stored or none is.
	CreateWorkspace(ctx context.Context, ws domain.Workspace, convo domain.Context, first domain.Message) error
	GetWorkspace(ctx context.Context, id string) (domain.Workspace, bool, error)
	ListWorkspacesForUser(ctx context.Context, userID string) ([]domain.Workspace, error)
	GetContextByWorkspace(ctx context.Context, workspaceID string) (domain.Context, bool, error)
	UpdateNotes(ctx context.Context, workspaceID string, notes string) error

	// conversation
	// AppendMessage fails with ErrContextNotFound when contextID is unknown.
	AppendMessage(ctx context.Context, contextID string, msg domain.Message) (domain.Message, error)
	// ListMessages returns messages in insertion order; an empty slice when there are none.
	ListMessages(ctx context.Context, contextID string) ([]domain.Message, error)

	// classrooms
	ListClassroomMembers(ctx context.Context, classroomID string) ([]domain.ClassroomMember, error)
}
