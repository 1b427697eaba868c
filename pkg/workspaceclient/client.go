package workspaceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JackYouk/esol/pkg/notes"
)

// Client calls the workspace service over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// APIError represents a workspace service error response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a workspace service client authenticated with token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SaveNotes replaces the notes of a workspace.
func (c *Client) SaveNotes(ctx context.Context, workspaceID, content string) error {
	body, err := json.Marshal(map[string]string{"notes": content})
	if err != nil {
		return err
	}
	endpoint := c.baseURL + "/api/workspaces/" + url.PathEscape(workspaceID) + "/notes"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(req, c.token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	return nil
}

// NotesSaver binds SaveNotes to one workspace for use with notes.Open.
func (c *Client) NotesSaver(workspaceID string) notes.SaveFunc {
	return func(ctx context.Context, content string) error {
		return c.SaveNotes(ctx, workspaceID, content)
	}
}

func decodeAPIError(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	msg := errResp.Error
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{Status: resp.StatusCode, Code: errResp.Code, Message: msg}
}

func addAuthHeader(req *http.Request, token string) {
	if strings.TrimSpace(token) == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}
