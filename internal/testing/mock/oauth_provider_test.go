package mock

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func exchange(t *testing.T, p *OAuthProvider, form url.Values) (int, map[string]any) {
	t.Helper()
	resp, err := p.HTTPClient().Post(p.TokenURL(), "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestOAuthProvider_CodeExchangeWithPKCE(t *testing.T) {
	p := NewOAuthProvider(t, OAuthProviderConfig{ClientID: "abc", ClientSecret: "shh", AccessToken: "tok123", RequirePKCE: true})

	verifier := oauth2.GenerateVerifier()
	authURL := p.AuthorizeURL() + "?" + url.Values{
		"response_type":         {"code"},
		"client_id":             {"abc"},
		"redirect_uri":          {"https://app/cb"},
		"code_challenge":        {oauth2.S256ChallengeFromVerifier(verifier)},
		"code_challenge_method": {"S256"},
	}.Encode()

	code, err := p.Approve(authURL)
	require.NoError(t, err)

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"https://app/cb"},
		"client_id":     {"abc"},
		"client_secret": {"shh"},
		"code_verifier": {verifier},
	}
	status, body := exchange(t, p, form)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "tok123", body["access_token"])

	// Codes are single use.
	status, body = exchange(t, p, form)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_grant", body["error"])
	assert.Equal(t, 2, p.TokenRequests())
}

func TestOAuthProvider_RejectsWrongVerifier(t *testing.T) {
	p := NewOAuthProvider(t, OAuthProviderConfig{ClientID: "abc"})
	p.RegisterCode("validcode", oauth2.S256ChallengeFromVerifier(oauth2.GenerateVerifier()), "")

	status, body := exchange(t, p, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {"validcode"},
		"client_id":     {"abc"},
		"code_verifier": {oauth2.GenerateVerifier()},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_grant", body["error"])
}

func TestOAuthProvider_ApproveValidation(t *testing.T) {
	p := NewOAuthProvider(t, OAuthProviderConfig{ClientID: "abc", RequirePKCE: true})

	_, err := p.Approve(p.AuthorizeURL() + "?response_type=code&client_id=other")
	assert.Error(t, err)

	_, err = p.Approve(p.AuthorizeURL() + "?response_type=code&client_id=abc")
	assert.Error(t, err, "PKCE is required")
}

func TestOAuthProvider_SimulatedFailures(t *testing.T) {
	p := NewOAuthProvider(t, OAuthProviderConfig{ClientID: "abc"})
	p.FailTokenRequests(http.StatusBadRequest, "invalid_grant")

	status, body := exchange(t, p, url.Values{"grant_type": {"authorization_code"}, "client_id": {"abc"}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_grant", body["error"])

	p.FailRevocation(true)
	resp, err := p.HTTPClient().PostForm(p.RevokeURL(), url.Values{"token": {"x"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Empty(t, p.Revoked())
}
