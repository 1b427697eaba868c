package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JackYouk/esol/internal/metrics"
	"github.com/JackYouk/esol/internal/ratelimit"
	"github.com/JackYouk/esol/internal/util"
	"github.com/JackYouk/esol/pkg/domain"
	"github.com/JackYouk/esol/services/workspace/internal/app"
)

const (
	defaultAdminOrgRole = "org:admin"
	maxJSONBodyBytes    = 1 << 20
	// multipart framing around the document
	formOverheadBytes = 64 << 10
)

// IdentityVerifier validates a bearer token. *usertoken.Verifier implements it.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, token string) (domain.Identity, error)
}

// Limiter throttles tutor calls per user. *ratelimit.FixedWindowLimiter implements it.
type Limiter interface {
	Allow(ctx context.Context, key string) ratelimit.Decision
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App      *app.App
	Verifier IdentityVerifier
	// TutorLimiter is optional; nil disables throttling.
	TutorLimiter       Limiter
	Metrics            *metrics.Metrics
	AdminOrgRole       string
	CORSAllowedOrigins []string
	TrustedProxies     *util.TrustedProxies
}

// Server exposes HTTP endpoints for the workspace service.
type Server struct {
	app          *app.App
	verifier     IdentityVerifier
	tutorLimiter Limiter
	metrics      *metrics.Metrics
	adminOrgRole string
	origins      []string
	trusted      *util.TrustedProxies
	mux          *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires app")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("server requires identity verifier")
	}
	adminRole := strings.TrimSpace(cfg.AdminOrgRole)
	if adminRole == "" {
		adminRole = defaultAdminOrgRole
	}
	s := &Server{
		app:          cfg.App,
		verifier:     cfg.Verifier,
		tutorLimiter: cfg.TutorLimiter,
		metrics:      cfg.Metrics,
		adminOrgRole: adminRole,
		origins:      cfg.CORSAllowedOrigins,
		trusted:      cfg.TrustedProxies,
		mux:          http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(
		util.WithRequestLog("workspace", s.trusted, s.metrics.ObserveHTTP,
			util.WithSecurityHeaders(util.WithCORS(s.origins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// workspaces
	s.mux.Handle("POST /api/workspaces", s.withUser(s.handleCreateWorkspace))
	s.mux.Handle("GET /api/workspaces", s.withUser(s.handleListWorkspaces))
	s.mux.Handle("GET /api/workspaces/{id}", s.withUser(s.handleGetWorkspace))
	s.mux.Handle("GET /api/workspaces/{id}/document", s.withUser(s.handleDocument))
	s.mux.Handle("PUT /api/workspaces/{id}/notes", s.withUser(s.handleSaveNotes))

	// tutor
	s.mux.Handle("POST /api/workspaces/{id}/messages", s.withUser(s.withTutorLimit(s.handlePostMessage)))
	s.mux.Handle("POST /api/workspaces/{id}/tool-response", s.withUser(s.withTutorLimit(s.handleToolResponse)))

	// classrooms
	s.mux.Handle("GET /api/classrooms/{id}/members", s.withUser(s.handleClassroomMembers))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// caller is the authenticated requester.
type caller struct {
	user     domain.User
	identity domain.Identity
}

type userHandler func(http.ResponseWriter, *http.Request, caller)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "unauthorized")
			return
		}
		identity, err := s.verifier.VerifyIdentity(r.Context(), token)
		if err != nil {
			util.LoggerFromContext(r.Context()).Debug("token rejected", "err", err)
			writeError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "unauthorized")
			return
		}
		user, err := s.app.ResolveOrCreateUser(r.Context(), identity)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("user_id", user.ID))
		next(w, r.WithContext(ctx), caller{user: user, identity: identity})
	})
}

func (s *Server) withTutorLimit(next userHandler) userHandler {
	if s.tutorLimiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request, c caller) {
		decision := s.tutorLimiter.Allow(r.Context(), "tutor:"+c.user.ID)
		if decision.Allowed {
			next(w, r, c)
			return
		}
		s.metrics.RateLimited()
		retry := int(decision.RetryAfter.Round(time.Second) / time.Second)
		if retry < 1 {
			retry = 60
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many tutor requests")
	}
}

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request, c caller) {
	maxUpload := s.app.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+formOverheadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "INVALID_UPLOAD_FORM", "invalid form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "FILE_REQUIRED", "file is required (field: file)")
		return
	}
	defer file.Close()
	if header.Size > maxUpload {
		writeError(w, r, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file too large")
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, maxUpload+1))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_UPLOAD_FORM", "invalid form data")
		return
	}

	classroomID := strings.TrimSpace(r.FormValue("classroomId"))
	if classroomID != "" && !s.isOrgAdmin(c, classroomID) {
		writeError(w, r, http.StatusForbidden, "FORBIDDEN", "forbidden")
		return
	}
	id, err := s.app.CreateWorkspace(r.Context(), c.user, app.CreateWorkspaceInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		AIModel:     r.FormValue("aiModel"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		ClassroomID: classroomID,
		MemberIDs:   splitCSV(r.FormValue("memberIds")),
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"workspaceId": id})
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request, c caller) {
	items, err := s.app.ListWorkspaces(r.Context(), c.user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Workspace{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request, c caller) {
	detail, err := s.app.GetWorkspace(r.Context(), c.user, r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request, c caller) {
	url, err := s.app.DocumentURL(r.Context(), c.user, r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type notesRequest struct {
	Notes *string `json:"notes"`
}

func (s *Server) handleSaveNotes(w http.ResponseWriter, r *http.Request, c caller) {
	var req notesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Notes == nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "notes is required")
		return
	}
	if err := s.app.SaveNotes(r.Context(), c.user, r.PathValue("id"), *req.Notes); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

type messageRequest struct {
	MessageText string `json:"messageText"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request, c caller) {
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	exchange, err := s.app.PostMessage(r.Context(), c.user, r.PathValue("id"), req.MessageText)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exchange)
}

type toolRequest struct {
	Tool         string `json:"tool"`
	SelectedText string `json:"selectedText"`
}

func (s *Server) handleToolResponse(w http.ResponseWriter, r *http.Request, c caller) {
	var req toolRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tool := domain.Tool(strings.ToUpper(strings.TrimSpace(req.Tool)))
	exchange, err := s.app.RunTool(r.Context(), c.user, r.PathValue("id"), tool, req.SelectedText)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exchange)
}

func (s *Server) handleClassroomMembers(w http.ResponseWriter, r *http.Request, c caller) {
	classroomID := strings.TrimSpace(r.PathValue("id"))
	if !s.isOrgAdmin(c, classroomID) {
		writeError(w, r, http.StatusForbidden, "FORBIDDEN", "forbidden")
		return
	}
	members, err := s.app.ClassroomMembers(r.Context(), classroomID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": members,
		"count": len(members),
	})
}

// isOrgAdmin reports whether the caller administers the organization
// that backs classroomID.
func (s *Server) isOrgAdmin(c caller, classroomID string) bool {
	return classroomID != "" && c.identity.OrgID == classroomID && c.identity.OrgRole == s.adminOrgRole
}

// writeAppError maps the app error taxonomy onto statuses and stable codes.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR", "internal error"
	switch {
	case errors.Is(err, app.ErrUnauthenticated):
		status, code, msg = http.StatusUnauthorized, "UNAUTHENTICATED", "unauthorized"
	case errors.Is(err, app.ErrForbidden):
		status, code, msg = http.StatusForbidden, "FORBIDDEN", "forbidden"
	case errors.Is(err, app.ErrNoToolSelected):
		status, code, msg = http.StatusForbidden, "TOOL_NOT_SELECTED", "no tool selected"
	case errors.Is(err, app.ErrSaveFailed) && errors.Is(err, app.ErrNotFound):
		status, code, msg = http.StatusNotFound, "WORKSPACE_NOT_FOUND", "not found or access denied"
	case errors.Is(err, app.ErrNotFound):
		status, code, msg = http.StatusNotFound, "WORKSPACE_NOT_FOUND", "workspace not found"
	case errors.Is(err, app.ErrFileTooLarge):
		status, code, msg = http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file too large"
	case errors.Is(err, app.ErrValidation):
		status, code, msg = http.StatusBadRequest, validationCode(err), strings.TrimPrefix(err.Error(), app.ErrValidation.Error()+": ")
	case errors.Is(err, app.ErrToolInvocationFailed):
		status, code, msg = http.StatusBadGateway, "TOOL_INVOCATION_FAILED", "tool invocation failed"
	case errors.Is(err, app.ErrInvocation):
		status, code, msg = http.StatusBadGateway, "AI_INVOCATION_FAILED", "tutor unavailable"
	case errors.Is(err, app.ErrExtraction):
		status, code, msg = http.StatusUnprocessableEntity, "EXTRACTION_FAILED", "could not read document text"
	case errors.Is(err, app.ErrStorage):
		code, msg = "STORAGE_FAILED", "document storage failed"
	case errors.Is(err, app.ErrSaveFailed):
		code, msg = "SAVE_FAILED", "save error"
	case errors.Is(err, app.ErrPersistence):
		code, msg = "PERSISTENCE_FAILED", "internal error"
	}
	if status >= http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request failed", "code", code, "err", err)
	}
	writeError(w, r, status, code, msg)
}

func validationCode(err error) string {
	switch {
	case errors.Is(err, app.ErrInvalidTitle):
		return "INVALID_TITLE"
	case errors.Is(err, app.ErrInvalidModel):
		return "INVALID_AI_MODEL"
	case errors.Is(err, app.ErrNotPDF):
		return "UNSUPPORTED_FILE_TYPE"
	case errors.Is(err, app.ErrUnsupportedTool):
		return "UNSUPPORTED_TOOL"
	case errors.Is(err, app.ErrMessageRequired):
		return "MESSAGE_REQUIRED"
	default:
		return "INVALID_REQUEST"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes)).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: util.RequestIDFromRequest(r),
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
