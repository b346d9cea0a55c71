package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"integrate/internal/detect"
	"integrate/internal/oauth"
	"integrate/internal/testing/mock"
	pkgoauth "integrate/pkg/oauth"
)

const testPrefix = "/api/integrate/oauth"

func newTestServer(t *testing.T) (*Server, *mock.OAuthProvider, *prometheus.Registry) {
	t.Helper()
	prov := mock.NewOAuthProvider(t, mock.OAuthProviderConfig{ClientID: "abc", AccessToken: "tok123"})

	reg := prometheus.NewRegistry()
	metrics, err := oauth.NewMetrics(reg)
	require.NoError(t, err)

	m, err := oauth.NewManager(oauth.Config{
		Providers: []oauth.ProviderConfig{{
			ID:                    "github",
			AuthorizationEndpoint: prov.AuthorizeURL(),
			TokenEndpoint:         prov.TokenURL(),
			ClientID:              "abc",
			Scopes:                []string{"repo", "user"},
			RedirectURI:           "http://localhost:8090/oauth/callback",
		}},
		Client:  pkgoauth.NewClient(pkgoauth.WithHTTPClient(prov.HTTPClient())),
		Metrics: metrics,
	})
	require.NoError(t, err)
	t.Cleanup(m.Stop)

	s, err := New(Options{
		Manager:     m,
		OAuthPrefix: testPrefix,
		Gatherer:    reg,
		Detectors:   detect.DefaultChain(),
	})
	require.NoError(t, err)
	return s, prov, reg
}

func do(t *testing.T, h http.Handler, method, target, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresManager(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestServer_Healthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_OAuthFlowAndMetrics(t *testing.T) {
	s, prov, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, testPrefix+"/authorize", `{"provider":"github"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var auth oauth.AuthorizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))

	code, err := prov.Approve(auth.AuthorizationURL)
	require.NoError(t, err)

	rec = do(t, h, http.MethodPost, testPrefix+"/callback",
		fmt.Sprintf(`{"provider":"github","code":%q,"state":%q}`, code, auth.State), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cb oauth.CallbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cb))

	rec = do(t, h, http.MethodGet, testPrefix+"/status?provider=github", "", func(r *http.Request) {
		r.Header.Set(oauth.HeaderSessionToken, cb.SessionToken)
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authorized":true`)

	rec = do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `integrate_oauth_actions_total{action="callback",provider="github",result="success"} 1`)
}

func TestServer_UnknownActionIsJSON(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodPost, testPrefix+"/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestServer_WhoAmI(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/whoami", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user_1",
		"email": "a@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	rec = do(t, h, http.MethodGet, "/whoami", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "__session", Value: token})
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var got whoAmIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "clerk", got.Source)
	assert.Equal(t, "user_1", got.UserID)
	assert.Equal(t, "a@example.com", got.Email)
	assert.NotNil(t, got.ExpiresAt)

	rec = do(t, h, http.MethodPost, "/whoami", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDetectUser_NoChainPassesThrough(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, ok := UserFromContext(r.Context())
		assert.False(t, ok)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "better-auth.session_token", Value: "x"})
	detectUser(nil, next).ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, called)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	s, _, _ := newTestServer(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, <-done)
}
