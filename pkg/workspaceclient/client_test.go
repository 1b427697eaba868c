package workspaceclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JackYouk/esol/pkg/notes"
)

func TestSaveNotes(t *testing.T) {
	var gotNotes, gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("unexpected method %s", r.Method)
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			Notes string `json:"notes"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotNotes = body.Notes
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "tok")
	if err := client.SaveNotes(context.Background(), "ws-1", "my notes"); err != nil {
		t.Fatalf("save notes: %v", err)
	}
	if gotPath != "/api/workspaces/ws-1/notes" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotNotes != "my notes" {
		t.Fatalf("unexpected notes %q", gotNotes)
	}
}

func TestSaveNotesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"workspace not found","code":"WORKSPACE_NOT_FOUND"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "tok").SaveNotes(context.Background(), "missing", "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "WORKSPACE_NOT_FOUND" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestNotesSaverWithAutosaver(t *testing.T) {
	saved := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Notes string `json:"notes"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		saved <- body.Notes
	}))
	defer srv.Close()

	saver, err := notes.Open(NewClient(srv.URL, "tok").NotesSaver("ws-1"), notes.Options{})
	if err != nil {
		t.Fatalf("open autosaver: %v", err)
	}
	if err := saver.Schedule("first draft"); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := saver.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := <-saved; got != "first draft" {
		t.Fatalf("unexpected saved notes %q", got)
	}
}
