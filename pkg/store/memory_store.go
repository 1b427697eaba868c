package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JackYouk/esol/pkg/domain"
)

var errInvalidWorkspace = errors.New("invalid workspace record")

// MemoryStore keeps everything in-process. Used by tests and local runs
// without Postgres.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]domain.User // key: user ID
	email      map[string]string      // email -> user ID
	workspaces map[string]domain.Workspace
	wsOrder    []string
	contexts   map[string]domain.Context // key: context ID
	byWS       map[string]string         // workspace ID -> context ID
	messages   map[string][]domain.Message
	classrooms map[string]domain.Classroom
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]domain.User),
		email:      make(map[string]string),
		workspaces: make(map[string]domain.Workspace),
		contexts:   make(map[string]domain.Context),
		byWS:       make(map[string]string),
		messages:   make(map[string][]domain.Message),
		classrooms: make(map[string]domain.Classroom),
	}
}

// SaveUser registers or updates a user.
func (m *MemoryStore) SaveUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.users[u.ID]; ok && prev.Email != u.Email {
		delete(m.email, strings.ToLower(prev.Email))
	}
	m.users[u.ID] = u
	if u.Email != "" {
		m.email[strings.ToLower(u.Email)] = u.ID
	}
	return nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[strings.ToLower(email)]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

// CreateWorkspace validates the whole unit before writing anything, so a
// rejected create leaves no partial state behind.
func (m *MemoryStore) CreateWorkspace(_ context.Context, ws domain.Workspace, convo domain.Context, first domain.Message) error {
	if ws.ID == "" || convo.ID == "" || first.ID == "" {
		return errInvalidWorkspace
	}
	if convo.WorkspaceID != ws.ID {
		return errInvalidWorkspace
	}
	if first.ContextID != "" && first.ContextID != convo.ID {
		return errInvalidWorkspace
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.workspaces[ws.ID]; exists {
		return errInvalidWorkspace
	}
	if _, exists := m.contexts[convo.ID]; exists {
		return errInvalidWorkspace
	}

	if id := strings.TrimSpace(ws.ClassroomID); id != "" {
		if _, ok := m.classrooms[id]; !ok {
			m.classrooms[id] = domain.Classroom{ID: id, CreatedAt: time.Now().UTC()}
		}
	}
	ws.MemberIDs = append([]string(nil), ws.MemberIDs...)
	m.workspaces[ws.ID] = ws
	m.wsOrder = append(m.wsOrder, ws.ID)
	m.contexts[convo.ID] = convo
	m.byWS[ws.ID] = convo.ID
	first.ContextID = convo.ID
	m.messages[convo.ID] = []domain.Message{first}
	return nil
}

// GetWorkspace retrieves a workspace.
func (m *MemoryStore) GetWorkspace(_ context.Context, id string) (domain.Workspace, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return domain.Workspace{}, false, nil
	}
	ws.MemberIDs = append([]string(nil), ws.MemberIDs...)
	return ws, true, nil
}

// ListWorkspacesForUser returns workspaces created by or shared with userID, newest first.
func (m *MemoryStore) ListWorkspacesForUser(_ context.Context, userID string) ([]domain.Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Workspace, 0)
	for i := len(m.wsOrder) - 1; i >= 0; i-- {
		ws := m.workspaces[m.wsOrder[i]]
		if ws.HasAccess(userID) {
			res = append(res, ws)
		}
	}
	return res, nil
}

// GetContextByWorkspace returns the conversation context of a workspace.
func (m *MemoryStore) GetContextByWorkspace(_ context.Context, workspaceID string) (domain.Context, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byWS[workspaceID]
	if !ok {
		return domain.Context{}, false, nil
	}
	c, ok := m.contexts[id]
	return c, ok, nil
}

// UpdateNotes replaces the notes of a workspace.
func (m *MemoryStore) UpdateNotes(_ context.Context, workspaceID string, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[workspaceID]
	if !ok {
		return ErrWorkspaceNotFound
	}
	ws.Notes = &notes
	ws.UpdatedAt = time.Now().UTC()
	m.workspaces[workspaceID] = ws
	return nil
}

// AppendMessage records a message under contextID.
func (m *MemoryStore) AppendMessage(_ context.Context, contextID string, msg domain.Message) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	convo, ok := m.contexts[contextID]
	if !ok {
		return domain.Message{}, ErrContextNotFound
	}
	msg.ContextID = contextID
	m.messages[contextID] = append(m.messages[contextID], msg)
	if ws, ok := m.workspaces[convo.WorkspaceID]; ok {
		ws.UpdatedAt = time.Now().UTC()
		m.workspaces[ws.ID] = ws
	}
	return msg, nil
}

// ListMessages returns a copy of the conversation in insertion order.
func (m *MemoryStore) ListMessages(_ context.Context, contextID string) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[contextID]
	res := make([]domain.Message, len(msgs))
	copy(res, msgs)
	return res, nil
}

// ListClassroomMembers aggregates USER-message activity of every creator
// with a workspace in the classroom.
func (m *MemoryStore) ListClassroomMembers(_ context.Context, classroomID string) ([]domain.ClassroomMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byUser := make(map[string]*domain.ClassroomMember)
	for _, wsID := range m.wsOrder {
		ws := m.workspaces[wsID]
		if ws.ClassroomID != classroomID {
			continue
		}
		u, ok := m.users[ws.CreatorID]
		if !ok {
			continue
		}
		member, ok := byUser[u.ID]
		if !ok {
			member = &domain.ClassroomMember{User: u}
			byUser[u.ID] = member
		}
		member.WorkspaceCount++
		for _, msg := range m.messages[m.byWS[ws.ID]] {
			if msg.Role != domain.MessageRoleUser {
				continue
			}
			member.TotalMessages++
			if member.LastMessageAt == nil || msg.CreatedAt.After(*member.LastMessageAt) {
				at := msg.CreatedAt
				member.LastMessageAt = &at
			}
		}
	}
	res := make([]domain.ClassroomMember, 0, len(byUser))
	for _, member := range byUser {
		res = append(res, *member)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].User.CreatedAt.Before(res[j].User.CreatedAt)
	})
	return res, nil
}
