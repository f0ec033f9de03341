// Package api exposes the list service over HTTP and MCP.
package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"listkeep/internal/auth"
	"listkeep/internal/importer"
	"listkeep/internal/list"
	"listkeep/internal/ratelimit"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxImportBodySize = 10 << 20 // 10MB

// Deps holds the services the HTTP layer exposes.
type Deps struct {
	Auth    *auth.Manager
	Lists   *list.Service
	Limiter *ratelimit.KeyLimiter // optional; nil disables throttling
}

// NewHandler returns the HTTP API. Registration and login are open; every
// other route requires a session bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/auth/register", handleRegister(deps))
	r.Post("/auth/login", handleLogin(deps))

	r.Group(func(r chi.Router) {
		r.Use(SessionAuth(deps.Auth))
		r.Post("/auth/logout", handleLogout(deps))
		r.With(RateLimit(deps.Limiter)).Post("/requests", handleProcessRequest(deps))
		r.Get("/requests/recent", handleHistory(deps))
		r.Get("/items", handleListItems(deps))
		r.Post("/items/import", handleImport(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

func handleRegister(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if _, err := deps.Auth.Register(req.Email, req.Password); err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidInput):
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			case errors.Is(err, auth.ErrEmailTaken):
				httpError(w, http.StatusConflict, "invalid_request_error", "email already registered")
			default:
				httpError(w, http.StatusInternalServerError, "api_error", "failed to register: %v", err)
			}
			return
		}

		sess, err := deps.Auth.Login(req.Email, req.Password)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to start session: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(sessionResponse{Token: sess.Token, UserID: sess.UserID})
	}
}

func handleLogin(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		sess, err := deps.Auth.Login(req.Email, req.Password)
		if errors.Is(err, auth.ErrBadCredentials) {
			httpError(w, http.StatusUnauthorized, "authentication_error", "invalid email or password")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to log in: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sessionResponse{Token: sess.Token, UserID: sess.UserID})
	}
}

func handleLogout(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Auth.Logout(bearerToken(r)); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to log out: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "logged_out"})
	}
}

type processRequest struct {
	Text string `json:"text"`
}

func handleProcessRequest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req processRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		resp := deps.Lists.ProcessRequest(r.Context(), userID(r), req.Text)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusForOutcome(resp.Outcome))
		json.NewEncoder(w).Encode(resp)
	}
}

// statusForOutcome maps request outcomes onto HTTP statuses. Translation
// failures are the service's fault, so they land in the 5xx band.
func statusForOutcome(o list.Outcome) int {
	switch o {
	case list.OutcomeCreated:
		return http.StatusCreated
	case list.OutcomeUpdated, list.OutcomeDeleted, list.OutcomeQuery:
		return http.StatusOK
	case list.OutcomeConflict:
		return http.StatusConflict
	case list.OutcomeNotFound:
		return http.StatusNotFound
	case list.OutcomeAmbiguous:
		return http.StatusUnprocessableEntity
	case list.OutcomeBadRequest:
		return http.StatusBadRequest
	case list.OutcomeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func handleListItems(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := deps.Lists.Items(userID(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list items: %v", err)
			return
		}
		if items == nil {
			items = []list.ItemView{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(items)
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		history, err := deps.Lists.History(userID(r), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read history: %v", err)
			return
		}
		if history == nil {
			history = []list.RequestView{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(history)
	}
}

type importFileRequest struct {
	Name    string `json:"name"`
	Format  string `json:"format"`
	Content string `json:"content"` // base64
}

type importRequest struct {
	Files []importFileRequest `json:"files"`
}

func handleImport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImportBodySize)
		defer r.Body.Close()

		var req importRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Files) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one file is required")
			return
		}

		files := make([]importer.File, len(req.Files))
		for i, f := range req.Files {
			data, err := base64.StdEncoding.DecodeString(f.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content in %q", f.Name)
				return
			}
			files[i] = importer.File{Name: f.Name, Format: f.Format, Data: data}
		}

		candidates, err := importer.Extract(r.Context(), files)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		result, err := deps.Lists.ImportItems(userID(r), candidates)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "import failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
