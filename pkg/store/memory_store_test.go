package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/JackYouk/esol/pkg/domain"
)

func seedWorkspace(t *testing.T, s *MemoryStore, wsID, creatorID, classroomID string) domain.Context {
	t.Helper()
	now := time.Now().UTC()
	ws := domain.Workspace{
		ID:          wsID,
		Title:       "Reading practice",
		ActiveAI:    domain.AIModelGPT4oMini,
		PDFURL:      "http://objects/pdfs/" + wsID + "/a.pdf",
		CreatorID:   creatorID,
		ClassroomID: classroomID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	convo := domain.Context{ID: "ctx-" + wsID, WorkspaceID: wsID, AIModel: domain.AIModelGPT4oMini, CreatedAt: now}
	first := domain.Message{ID: "msg-" + wsID, Role: domain.MessageRoleUser, Content: "init", CreatedAt: now}
	if err := s.CreateWorkspace(context.Background(), ws, convo, first); err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	return convo
}

func TestMemoryStoreAppendAndListMessages(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	convo := seedWorkspace(t, s, "ws-1", "u-1", "")

	for i, content := range []string{"first", "second", "third"} {
		role := domain.MessageRoleUser
		if i%2 == 1 {
			role = domain.MessageRoleSystem
		}
		msg := domain.Message{ID: content, Role: role, Content: content, CreatedAt: time.Now().UTC()}
		saved, err := s.AppendMessage(ctx, convo.ID, msg)
		if err != nil {
			t.Fatalf("append %q: %v", content, err)
		}
		if saved.ContextID != convo.ID {
			t.Fatalf("expected context id %q, got %q", convo.ID, saved.ContextID)
		}
	}

	msgs, err := s.ListMessages(ctx, convo.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	want := []string{"init", "first", "second", "third"}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i, content := range want {
		if msgs[i].Content != content {
			t.Fatalf("message %d: expected %q, got %q", i, content, msgs[i].Content)
		}
	}

	again, err := s.ListMessages(ctx, convo.ID)
	if err != nil {
		t.Fatalf("list messages again: %v", err)
	}
	if !reflect.DeepEqual(again, msgs) {
		t.Fatalf("listing should not change the conversation:\nfirst  %+v\nsecond %+v", msgs, again)
	}
}

func TestMemoryStoreListMessagesEmpty(t *testing.T) {
	msgs, err := NewMemoryStore().ListMessages(context.Background(), "missing")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", msgs)
	}
}

func TestMemoryStoreAppendUnknownContext(t *testing.T) {
	_, err := NewMemoryStore().AppendMessage(context.Background(), "nope", domain.Message{ID: "m"})
	if !errors.Is(err, ErrContextNotFound) {
		t.Fatalf("expected ErrContextNotFound, got %v", err)
	}
}

func TestMemoryStoreCreateWorkspaceIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ws := domain.Workspace{ID: "ws-1", Title: "Title", CreatorID: "u-1", ClassroomID: "class-1"}
	convo := domain.Context{ID: "ctx-1", WorkspaceID: "ws-1"}
	first := domain.Message{ID: "m-1", ContextID: "other", Content: "init"}

	if err := s.CreateWorkspace(ctx, ws, convo, first); err == nil {
		t.Fatalf("expected mismatched first message to fail")
	}
	if _, ok, _ := s.GetWorkspace(ctx, "ws-1"); ok {
		t.Fatalf("workspace must not persist after failed create")
	}
	if _, ok, _ := s.GetContextByWorkspace(ctx, "ws-1"); ok {
		t.Fatalf("context must not persist after failed create")
	}
	if msgs, _ := s.ListMessages(ctx, "ctx-1"); len(msgs) != 0 {
		t.Fatalf("messages must not persist after failed create")
	}
	if len(s.classrooms) != 0 {
		t.Fatalf("classroom must not persist after failed create")
	}
}

func TestMemoryStoreUpdateNotes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedWorkspace(t, s, "ws-1", "u-1", "")

	if err := s.UpdateNotes(ctx, "ws-1", "my notes"); err != nil {
		t.Fatalf("update notes: %v", err)
	}
	ws, ok, err := s.GetWorkspace(ctx, "ws-1")
	if err != nil || !ok {
		t.Fatalf("get workspace: ok=%v err=%v", ok, err)
	}
	if ws.Notes == nil || *ws.Notes != "my notes" {
		t.Fatalf("expected notes to be stored, got %v", ws.Notes)
	}
	if err := s.UpdateNotes(ctx, "missing", "x"); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Fatalf("expected ErrWorkspaceNotFound, got %v", err)
	}
}

func TestMemoryStoreUserLookup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := domain.User{ID: "u-1", Name: "Ana", Email: "Ana@Example.com", Role: domain.RoleStudent}
	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatalf("save user: %v", err)
	}
	got, ok, err := s.GetUserByEmail(ctx, "ana@example.com")
	if err != nil || !ok || got.ID != "u-1" {
		t.Fatalf("lookup by email: got=%+v ok=%v err=%v", got, ok, err)
	}
	u.Email = "ana@school.org"
	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatalf("update user: %v", err)
	}
	if _, ok, _ := s.GetUserByEmail(ctx, "ana@example.com"); ok {
		t.Fatalf("old email should no longer resolve")
	}
	if _, ok, _ := s.GetUserByID(ctx, "u-1"); !ok {
		t.Fatalf("user should resolve by id")
	}
}

func TestMemoryStoreListWorkspacesForUser(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedWorkspace(t, s, "ws-own", "u-1", "")
	seedWorkspace(t, s, "ws-other", "u-2", "")
	shared := domain.Workspace{ID: "ws-shared", Title: "Shared", CreatorID: "u-2", MemberIDs: []string{"u-1"}}
	convo := domain.Context{ID: "ctx-shared", WorkspaceID: "ws-shared"}
	if err := s.CreateWorkspace(ctx, shared, convo, domain.Message{ID: "m-shared", Content: "init"}); err != nil {
		t.Fatalf("create shared: %v", err)
	}

	list, err := s.ListWorkspacesForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 workspaces, got %d", len(list))
	}
	if list[0].ID != "ws-shared" || list[1].ID != "ws-own" {
		t.Fatalf("expected newest first, got %s, %s", list[0].ID, list[1].ID)
	}
}

func TestMemoryStoreClassroomMembers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"u-1", "u-2"} {
		if err := s.SaveUser(ctx, domain.User{ID: id, Email: id + "@x", Role: domain.RoleStudent, CreatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("save user: %v", err)
		}
	}
	c1 := seedWorkspace(t, s, "ws-1", "u-1", "class-1")
	seedWorkspace(t, s, "ws-2", "u-2", "class-1")
	seedWorkspace(t, s, "ws-3", "u-1", "class-2")

	last := time.Now().UTC().Add(time.Hour)
	if _, err := s.AppendMessage(ctx, c1.ID, domain.Message{ID: "q", Role: domain.MessageRoleUser, Content: "q", CreatedAt: last}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := s.AppendMessage(ctx, c1.ID, domain.Message{ID: "a", Role: domain.MessageRoleSystem, Content: "a", CreatedAt: last.Add(time.Minute)}); err != nil {
		t.Fatalf("append: %v", err)
	}

	members, err := s.ListClassroomMembers(ctx, "class-1")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	first := members[0]
	if first.User.ID != "u-1" || first.WorkspaceCount != 1 {
		t.Fatalf("unexpected first member: %+v", first)
	}
	if first.TotalMessages != 2 {
		t.Fatalf("expected 2 user messages (init + question), got %d", first.TotalMessages)
	}
	if first.LastMessageAt == nil || !first.LastMessageAt.Equal(last) {
		t.Fatalf("expected last message at %v, got %v", last, first.LastMessageAt)
	}
}
