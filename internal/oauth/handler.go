package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"integrate/pkg/logging"
)

// Header names understood by the HTTP adapter.
const (
	HeaderSessionToken  = "X-Session-Token"
	HeaderAuthorization = "Authorization"
)

const maxRequestBodyBytes = 1 << 20

// ErrorResponse is the JSON body of every failed action.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Handler exposes the Manager's four actions over net/http as
// POST <prefix>/authorize, POST <prefix>/callback, GET <prefix>/status and
// POST <prefix>/disconnect. It always answers with JSON.
type Handler struct {
	manager *Manager
	prefix  string
}

// NewHandler creates the HTTP adapter for m, mounted under prefix
// (for example "/api/integrate/oauth").
func NewHandler(m *Manager, prefix string) *Handler {
	return &Handler{
		manager: m,
		prefix:  strings.TrimSuffix(prefix, "/"),
	}
}

// Prefix returns the path prefix the handler expects to be mounted at.
func (h *Handler) Prefix() string {
	return h.prefix
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("OAuth", fmt.Errorf("%v", rec), "Panic while handling %s %s", r.Method, r.URL.Path)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
	}()

	action := strings.Trim(strings.TrimPrefix(r.URL.Path, h.prefix), "/")
	switch action {
	case ActionAuthorize:
		h.handleAuthorize(w, r)
	case ActionCallback:
		h.handleCallback(w, r)
	case ActionStatus:
		h.handleStatus(w, r)
	case ActionDisconnect:
		h.handleDisconnect(w, r)
	default:
		writeError(w, http.StatusNotFound, "unknown_action", fmt.Sprintf("unknown OAuth action %q", action))
	}
}

func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req AuthorizeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.manager.HandleAuthorize(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCallback accepts the JSON body form and, for provider redirects,
// the code/state query form. A redirect without a provider parameter is
// resolved through its pending authorization.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	switch r.Method {
	case http.MethodPost:
		if !decodeBody(w, r, &req) {
			return
		}
	case http.MethodGet:
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			logging.Warn("OAuth", "Provider returned error on callback: %s - %s", e, q.Get("error_description"))
			writeError(w, http.StatusBadRequest, e, q.Get("error_description"))
			return
		}
		req = CallbackRequest{Provider: q.Get("provider"), Code: q.Get("code"), State: q.Get("state")}
		if req.Provider == "" {
			resp, err := h.manager.HandleRedirect(r.Context(), req.Code, req.State)
			writeCallback(w, resp, err)
			return
		}
	default:
		allowMethod(w, r, http.MethodPost, http.MethodGet)
		return
	}
	resp, err := h.manager.HandleCallback(r.Context(), req)
	writeCallback(w, resp, err)
}

func writeCallback(w http.ResponseWriter, resp *CallbackResponse, err error) {
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "provider query parameter is required")
		return
	}
	token, err := SessionTokenFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.manager.HandleStatus(r.Context(), provider, token))
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	token, err := SessionTokenFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", err.Error())
		return
	}
	var req DisconnectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.manager.HandleDisconnect(r.Context(), req, token)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// SessionTokenFromRequest reads the caller's session token from
// X-Session-Token, falling back to an Authorization bearer token. An absent
// token is not an error; a malformed Authorization header is.
func SessionTokenFromRequest(r *http.Request) (string, error) {
	if t := strings.TrimSpace(r.Header.Get(HeaderSessionToken)); t != "" {
		return t, nil
	}
	auth := strings.TrimSpace(r.Header.Get(HeaderAuthorization))
	if auth == "" {
		return "", nil
	}
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("authorization header must use the Bearer scheme")
	}
	return strings.TrimSpace(token), nil
}

// StatusForError maps engine errors to HTTP status codes and error codes.
func StatusForError(err error) (int, string) {
	var te *TokenExchangeError
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, ErrUnknownProvider):
		return http.StatusBadRequest, "unknown_provider"
	case errors.Is(err, ErrInvalidState):
		return http.StatusBadRequest, "invalid_state"
	case errors.Is(err, ErrMissingSessionToken):
		return http.StatusUnauthorized, "missing_session_token"
	case errors.As(err, &te):
		return http.StatusBadGateway, "token_exchange_failed"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	status, code := StatusForError(err)
	desc := err.Error()
	if status == http.StatusInternalServerError {
		logging.Error("OAuth", err, "Unexpected failure in OAuth action")
		desc = "internal error"
	}
	writeError(w, status, code, desc)
}

func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", fmt.Sprintf("%s is not allowed", r.Method))
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return false
	}
	return true
}

// setSecurityHeaders marks responses as non-cacheable since they carry
// session tokens.
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("OAuth", "Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, ErrorResponse{Error: code, ErrorDescription: description})
}
