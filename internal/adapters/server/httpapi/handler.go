// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/evanschultz/taskdeck/internal/adapters/auth"
	"github.com/evanschultz/taskdeck/internal/adapters/server/common"
	"github.com/evanschultz/taskdeck/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// refreshCookieName names the httpOnly cookie carrying the refresh token.
const refreshCookieName = "taskdeck_refresh"

// defaultActivityLimit bounds activity listings when no limit is given.
const defaultActivityLimit = 50

// SessionService opens, rotates, and validates sessions. auth.Issuer satisfies it.
type SessionService interface {
	Login(ctx context.Context, email, password string) (auth.Session, error)
	Refresh(ctx context.Context, refreshToken string) (auth.Session, error)
	Logout(ctx context.Context, refreshToken string) error
	Validate(accessToken string) (domain.Identity, error)
}

// Config holds configuration for the REST adapter.
type Config struct {
	Logger *log.Logger
	// CookiePath scopes the refresh cookie; it should cover the auth routes as mounted.
	CookiePath   string
	SecureCookie bool
}

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	service  common.Service
	sessions SessionService
	cfg      Config
	router   chi.Router
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter from the transport service and session issuer.
func NewHandler(cfg Config, service common.Service, sessions SessionService) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	cfg.CookiePath = strings.TrimSpace(cfg.CookiePath)
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	h := &Handler{
		service:  service,
		sessions: sessions,
		cfg:      cfg,
	}
	h.router = h.routes()
	return h
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// routes builds the chi router with shared middleware and the authenticated group.
func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(tracing("taskdeck/httpapi"))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, APIError{Code: "not_found", Message: "endpoint not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, APIError{Code: "method_not_allowed", Message: "method not allowed"})
	})

	r.Route("/auth", func(ar chi.Router) {
		ar.Post("/login", h.handleLogin)
		ar.Post("/refresh", h.handleRefresh)
		ar.Post("/logout", h.handleLogout)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireBearer)

		pr.Get("/projects", h.handleListProjects)
		pr.Post("/projects", h.handleCreateProject)
		pr.Route("/projects/{projectID}", func(pj chi.Router) {
			pj.Get("/", h.handleProjectDetail)
			pj.Get("/board", h.handleProjectBoard)
			pj.Get("/activity", h.handleProjectActivity)
			pj.Get("/tasks", h.handleProjectTasks)
			pj.Post("/tasks", h.handleCreateProjectTask)
			pj.Get("/members", h.handleListMembers)
			pj.Post("/members", h.handleAddMember)
			pj.Post("/invitations", h.handleInviteMember)
			pj.Get("/comments", h.handleListComments)
			pj.Post("/comments", h.handleAddComment)
			pj.Get("/join-requests", h.handleListJoinRequests)
			pj.Post("/join-requests", h.handleSubmitJoinRequest)
		})

		pr.Get("/me/tasks", h.handleMyTasks)
		pr.Post("/me/tasks", h.handleCreatePersonalTask)

		pr.Get("/tasks/{taskID}/draft", h.handleTaskDraft)
		pr.Put("/tasks/{taskID}", h.handleEditTask)
		pr.Post("/tasks/{taskID}/status-requests", h.handleRequestStatusChange)
		pr.Post("/tasks/{taskID}/delete-requests", h.handleRequestDelete)
		pr.Post("/actions/confirm", h.handleConfirmAction)

		pr.Post("/join-requests/{requestID}/review", h.handleReviewJoinRequest)
	})
	return r
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleLogin serves POST `/auth/login`.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	session, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	h.writeSession(w, session)
}

// handleRefresh serves POST `/auth/refresh`. The token comes from the body or the refresh cookie.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, err := h.refreshTokenFrom(w, r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	session, err := h.sessions.Refresh(r.Context(), token)
	if err != nil {
		h.clearRefreshCookie(w)
		writeErrorFrom(w, err)
		return
	}
	h.writeSession(w, session)
}

// handleLogout serves POST `/auth/logout`.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, err := h.refreshTokenFrom(w, r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	if err := h.sessions.Logout(r.Context(), token); err != nil {
		writeErrorFrom(w, err)
		return
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) refreshTokenFrom(w http.ResponseWriter, r *http.Request) (string, error) {
	var req refreshRequest
	if err := decodeOptionalJSONBody(r.Context(), w, r, &req); err != nil {
		return "", err
	}
	if token := strings.TrimSpace(req.RefreshToken); token != "" {
		return token, nil
	}
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		return cookie.Value, nil
	}
	return "", nil
}

func (h *Handler) writeSession(w http.ResponseWriter, session auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    session.RefreshToken,
		Path:     h.cfg.CookiePath,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, auth.NewTokenPayload(session))
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     h.cfg.CookiePath,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

// handleListProjects serves GET `/projects`, with an optional `search` name filter.
func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.ListProjects(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

// handleCreateProject serves POST `/projects`.
func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req common.CreateProjectRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	project, err := h.service.CreateProject(r.Context(), req, identityFrom(r.Context()))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// handleProjectDetail serves GET `/projects/{projectID}`.
func (h *Handler) handleProjectDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetProjectDetail(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleProjectBoard serves GET `/projects/{projectID}/board`.
func (h *Handler) handleProjectBoard(w http.ResponseWriter, r *http.Request) {
	columns, err := h.service.ProjectBoard(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"columns": columns})
}

// handleProjectActivity serves GET `/projects/{projectID}/activity`.
func (h *Handler) handleProjectActivity(w http.ResponseWriter, r *http.Request) {
	limit := defaultActivityLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSONError(w, http.StatusBadRequest, APIError{Code: "invalid_request", Message: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	events, err := h.service.ProjectActivity(r.Context(), chi.URLParam(r, "projectID"), limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleProjectTasks serves GET `/projects/{projectID}/tasks`.
func (h *Handler) handleProjectTasks(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ProjectTasks(r.Context(), chi.URLParam(r, "projectID"), taskListRequest(r))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleCreateProjectTask serves POST `/projects/{projectID}/tasks`.
func (h *Handler) handleCreateProjectTask(w http.ResponseWriter, r *http.Request) {
	var req common.CreateTaskRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ProjectID = chi.URLParam(r, "projectID")
	h.createTask(w, r, req)
}

// handleCreatePersonalTask serves POST `/me/tasks`.
func (h *Handler) handleCreatePersonalTask(w http.ResponseWriter, r *http.Request) {
	var req common.CreateTaskRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if strings.TrimSpace(req.ProjectID) != "" || strings.TrimSpace(req.AssignedTo) != "" {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "personal tasks cannot carry a project or assignee",
			Hint:    "Use POST /projects/{id}/tasks for project tasks.",
		})
		return
	}
	h.createTask(w, r, req)
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request, req common.CreateTaskRequest) {
	task, err := h.service.CreateTask(r.Context(), req, identityFrom(r.Context()))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// handleMyTasks serves GET `/me/tasks`.
func (h *Handler) handleMyTasks(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.MyTasks(r.Context(), identityFrom(r.Context()), r.URL.Query().Get("tab"), taskListRequest(r))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleTaskDraft serves GET `/tasks/{taskID}/draft`.
func (h *Handler) handleTaskDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := h.service.TaskDraft(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// handleEditTask serves PUT `/tasks/{taskID}`.
func (h *Handler) handleEditTask(w http.ResponseWriter, r *http.Request) {
	var req common.EditTaskRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.TaskID = chi.URLParam(r, "taskID")
	task, err := h.service.EditTask(r.Context(), req, identityFrom(r.Context()))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type statusRequest struct {
	Status string `json:"status"`
}

// handleRequestStatusChange serves POST `/tasks/{taskID}/status-requests`.
func (h *Handler) handleRequestStatusChange(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	action, err := h.service.RequestStatusChange(r.Context(), chi.URLParam(r, "taskID"), req.Status)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, action)
}

// handleRequestDelete serves POST `/tasks/{taskID}/delete-requests`.
func (h *Handler) handleRequestDelete(w http.ResponseWriter, r *http.Request) {
	action, err := h.service.RequestDelete(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, action)
}

// handleConfirmAction serves POST `/actions/confirm`.
func (h *Handler) handleConfirmAction(w http.ResponseWriter, r *http.Request) {
	var action common.PendingAction
	if err := decodeJSONBody(r.Context(), w, r, &action); err != nil {
		writeErrorFrom(w, err)
		return
	}
	result, err := h.service.ConfirmAction(r.Context(), action, identityFrom(r.Context()))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type emailRequest struct {
	Email string `json:"email"`
}

// handleListMembers serves GET `/projects/{projectID}/members`.
func (h *Handler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

// handleAddMember serves POST `/projects/{projectID}/members`.
func (h *Handler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	h.ensureMember(w, r, h.service.AddMember)
}

// handleInviteMember serves POST `/projects/{projectID}/invitations`.
func (h *Handler) handleInviteMember(w http.ResponseWriter, r *http.Request) {
	h.ensureMember(w, r, h.service.InviteMember)
}

// ensureMember answers 201 for a new member and 200 when the email was already present.
func (h *Handler) ensureMember(
	w http.ResponseWriter,
	r *http.Request,
	add func(context.Context, string, string, domain.Identity) (common.MemberResult, error),
) {
	var req emailRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	result, err := add(r.Context(), chi.URLParam(r, "projectID"), req.Email, identityFrom(r.Context()))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

type messageRequest struct {
	Message string `json:"message"`
}

// handleListComments serves GET `/projects/{projectID}/comments`.
func (h *Handler) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.service.ListComments(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

// handleAddComment serves POST `/projects/{projectID}/comments`.
func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	comment, err := h.service.AddComment(r.Context(), chi.URLParam(r, "projectID"), req.Message, identityFrom(r.Context()))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// handleListJoinRequests serves GET `/projects/{projectID}/join-requests`.
func (h *Handler) handleListJoinRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListJoinRequests(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"join_requests": requests})
}

// handleSubmitJoinRequest serves POST `/projects/{projectID}/join-requests`.
func (h *Handler) handleSubmitJoinRequest(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeOptionalJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	created, err := h.service.SubmitJoinRequest(r.Context(), chi.URLParam(r, "projectID"), req.Message, identityFrom(r.Context()))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

// handleReviewJoinRequest serves POST `/join-requests/{requestID}/review`.
func (h *Handler) handleReviewJoinRequest(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	result, err := h.service.ReviewJoinRequest(r.Context(), chi.URLParam(r, "requestID"), req.Decision, identityFrom(r.Context()))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// taskListRequest reads list criteria from the query string. A bad page number means page 1.
func taskListRequest(r *http.Request) common.TaskListRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(strings.TrimSpace(q.Get("page")))
	return common.TaskListRequest{
		Search:   q.Get("search"),
		Priority: q.Get("priority"),
		From:     q.Get("from"),
		To:       q.Get("to"),
		Page:     page,
	}
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, auth.ErrAuth), errors.Is(err, common.ErrUnauthorized):
		writeJSONError(w, http.StatusUnauthorized, APIError{
			Code:    "unauthorized",
			Message: err.Error(),
			Hint:    "Log in again or refresh the session.",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInvalidStateTransition):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "invalid_state_transition",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "conflict",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}

// decodeOptionalJSONBody decodes one optional JSON body and ignores empty payloads.
func decodeOptionalJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(out)
	if err == nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request canceled: %w", ctx.Err())
		default:
			return nil
		}
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
}
