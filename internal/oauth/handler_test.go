package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"integrate/internal/testing/mock"
)

const testPrefix = "/api/integrate/oauth"

func serve(t *testing.T, h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHandler_FullFlow(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthProviderConfig{AccessToken: "tok123"}, nil)
	h := NewHandler(f.manager, testPrefix+"/")
	assert.Equal(t, testPrefix, h.Prefix())

	rec := serve(t, h, http.MethodPost, testPrefix+"/authorize", `{"provider":"github","returnUrl":"/done"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	auth := decodeJSON[AuthorizeResponse](t, rec)
	assert.NotEmpty(t, auth.AuthorizationURL)

	code, err := f.provider.Approve(auth.AuthorizationURL)
	require.NoError(t, err)

	body := fmt.Sprintf(`{"provider":"github","code":%q,"state":%q}`, code, auth.State)
	rec = serve(t, h, http.MethodPost, testPrefix+"/callback", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cb := decodeJSON[CallbackResponse](t, rec)
	assert.Equal(t, "/done", cb.ReturnURL)

	rec = serve(t, h, http.MethodGet, testPrefix+"/status?provider=github", "", map[string]string{HeaderSessionToken: cb.SessionToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeJSON[StatusResponse](t, rec).Authorized)

	rec = serve(t, h, http.MethodGet, testPrefix+"/status?provider=github", "", map[string]string{HeaderAuthorization: "Bearer " + cb.SessionToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeJSON[StatusResponse](t, rec).Authorized)

	rec = serve(t, h, http.MethodPost, testPrefix+"/disconnect", `{"provider":"github"}`, map[string]string{HeaderSessionToken: cb.SessionToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeJSON[DisconnectResponse](t, rec).Success)

	rec = serve(t, h, http.MethodGet, testPrefix+"/status?provider=github", "", map[string]string{HeaderSessionToken: cb.SessionToken})
	assert.False(t, decodeJSON[StatusResponse](t, rec).Authorized)
}

func TestHandler_CallbackQueryForm(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthProviderConfig{}, nil)
	h := NewHandler(f.manager, testPrefix)

	rec := serve(t, h, http.MethodPost, testPrefix+"/authorize", `{"provider":"github"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	auth := decodeJSON[AuthorizeResponse](t, rec)
	code, err := f.provider.Approve(auth.AuthorizationURL)
	require.NoError(t, err)

	target := fmt.Sprintf("%s/callback?provider=github&code=%s&state=%s", testPrefix, code, auth.State)
	rec = serve(t, h, http.MethodGet, target, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decodeJSON[CallbackResponse](t, rec).SessionToken)

	rec = serve(t, h, http.MethodGet, testPrefix+"/callback?provider=github&error=access_denied&error_description=denied", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "access_denied", decodeJSON[ErrorResponse](t, rec).Error)
}

func TestHandler_CallbackRedirectWithoutProvider(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthProviderConfig{}, nil)
	h := NewHandler(f.manager, testPrefix)

	rec := serve(t, h, http.MethodPost, testPrefix+"/authorize", `{"provider":"github"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	auth := decodeJSON[AuthorizeResponse](t, rec)
	code, err := f.provider.Approve(auth.AuthorizationURL)
	require.NoError(t, err)

	target := fmt.Sprintf("%s/callback?code=%s&state=%s", testPrefix, code, auth.State)
	rec = serve(t, h, http.MethodGet, target, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeJSON[CallbackResponse](t, rec)
	assert.Equal(t, "github", resp.Provider)
	assert.NotEmpty(t, resp.SessionToken)

	rec = serve(t, h, http.MethodGet, target, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_state", decodeJSON[ErrorResponse](t, rec).Error)

	rec = serve(t, h, http.MethodGet, testPrefix+"/callback?state=x", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeJSON[ErrorResponse](t, rec).Error)
}

func TestHandler_Errors(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthProviderConfig{}, nil)
	h := NewHandler(f.manager, testPrefix)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		headers    map[string]string
		wantStatus int
		wantCode   string
	}{
		{name: "unknown action", method: http.MethodGet, path: "/refresh", wantStatus: http.StatusNotFound, wantCode: "unknown_action"},
		{name: "authorize wrong method", method: http.MethodGet, path: "/authorize", wantStatus: http.StatusMethodNotAllowed, wantCode: "method_not_allowed"},
		{name: "authorize malformed body", method: http.MethodPost, path: "/authorize", body: "{", wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "authorize empty body", method: http.MethodPost, path: "/authorize", wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "authorize unknown provider", method: http.MethodPost, path: "/authorize", body: `{"provider":"gitlab"}`, wantStatus: http.StatusBadRequest, wantCode: "unknown_provider"},
		{name: "callback bad state", method: http.MethodPost, path: "/callback", body: `{"provider":"github","code":"c","state":"nope"}`, wantStatus: http.StatusBadRequest, wantCode: "invalid_state"},
		{name: "callback wrong method", method: http.MethodDelete, path: "/callback", wantStatus: http.StatusMethodNotAllowed, wantCode: "method_not_allowed"},
		{name: "status without provider", method: http.MethodGet, path: "/status", wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "status wrong method", method: http.MethodPost, path: "/status?provider=github", wantStatus: http.StatusMethodNotAllowed, wantCode: "method_not_allowed"},
		{name: "disconnect without token", method: http.MethodPost, path: "/disconnect", body: `{"provider":"github"}`, wantStatus: http.StatusUnauthorized, wantCode: "missing_session_token"},
		{
			name: "disconnect with basic auth", method: http.MethodPost, path: "/disconnect", body: `{"provider":"github"}`,
			headers:    map[string]string{HeaderAuthorization: "Basic dXNlcjpwYXNz"},
			wantStatus: http.StatusUnauthorized, wantCode: "invalid_token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, h, tt.method, testPrefix+tt.path, tt.body, tt.headers)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeJSON[ErrorResponse](t, rec).Error)
			if tt.wantStatus == http.StatusMethodNotAllowed {
				assert.NotEmpty(t, rec.Header().Get("Allow"))
			}
		})
	}
}

func TestHandler_TokenExchangeFailure(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthProviderConfig{}, nil)
	h := NewHandler(f.manager, testPrefix)

	rec := serve(t, h, http.MethodPost, testPrefix+"/authorize", `{"provider":"github"}`, nil)
	auth := decodeJSON[AuthorizeResponse](t, rec)

	body := fmt.Sprintf(`{"provider":"github","code":"bogus","state":%q}`, auth.State)
	rec = serve(t, h, http.MethodPost, testPrefix+"/callback", body, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "token_exchange_failed", decodeJSON[ErrorResponse](t, rec).Error)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{invalidRequest("x"), http.StatusBadRequest, "invalid_request"},
		{unknownProvider("x"), http.StatusBadRequest, "unknown_provider"},
		{ErrInvalidState, http.StatusBadRequest, "invalid_state"},
		{ErrMissingSessionToken, http.StatusUnauthorized, "missing_session_token"},
		{fmt.Errorf("wrapped: %w", &TokenExchangeError{Provider: "github"}), http.StatusBadGateway, "token_exchange_failed"},
		{errors.New("boom"), http.StatusInternalServerError, "server_error"},
	}
	for _, tt := range tests {
		status, code := StatusForError(tt.err)
		assert.Equal(t, tt.wantStatus, status, tt.err.Error())
		assert.Equal(t, tt.wantCode, code, tt.err.Error())
	}
}

func TestSessionTokenFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
		wantErr bool
	}{
		{name: "none", want: ""},
		{name: "session header", headers: map[string]string{HeaderSessionToken: " abc "}, want: "abc"},
		{name: "bearer", headers: map[string]string{HeaderAuthorization: "bearer xyz"}, want: "xyz"},
		{
			name:    "session header wins",
			headers: map[string]string{HeaderSessionToken: "abc", HeaderAuthorization: "Bearer xyz"},
			want:    "abc",
		},
		{name: "basic", headers: map[string]string{HeaderAuthorization: "Basic xyz"}, wantErr: true},
		{name: "bare", headers: map[string]string{HeaderAuthorization: "Bearer"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			got, err := SessionTokenFromRequest(r)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
