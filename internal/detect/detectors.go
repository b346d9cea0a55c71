package detect

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// BetterAuth detects better-auth sessions. The cookie is an opaque signed
// token.
type BetterAuth struct{}

func (BetterAuth) Name() string { return "better-auth" }

func (BetterAuth) Detect(r *http.Request) (*UserContext, bool) {
	v, ok := firstCookie(r, "better-auth.session_token", "__Secure-better-auth.session_token")
	if !ok {
		return nil, false
	}
	return &UserContext{Source: "better-auth", SessionToken: v}, true
}

// NextAuth detects NextAuth.js and Auth.js sessions. Their session cookie is
// usually encrypted; claims are read only when it is a plain JWT.
type NextAuth struct{}

func (NextAuth) Name() string { return "next-auth" }

func (NextAuth) Detect(r *http.Request) (*UserContext, bool) {
	v, ok := firstCookie(r,
		"__Secure-authjs.session-token",
		"authjs.session-token",
		"__Secure-next-auth.session-token",
		"next-auth.session-token",
	)
	if !ok {
		return nil, false
	}
	uc := &UserContext{Source: "next-auth", SessionToken: v}
	if claims, ok := parseUnverified(v, time.Now()); ok {
		claims.apply(uc)
	}
	return uc, true
}

// Clerk detects Clerk sessions from the __session JWT.
type Clerk struct{}

func (Clerk) Name() string { return "clerk" }

func (Clerk) Detect(r *http.Request) (*UserContext, bool) {
	v, ok := firstCookie(r, "__session")
	if !ok {
		return nil, false
	}
	claims, ok := parseUnverified(v, time.Now())
	if !ok || claims.subject == "" {
		return nil, false
	}
	uc := &UserContext{Source: "clerk", SessionToken: v}
	claims.apply(uc)
	return uc, true
}

// Supabase detects Supabase sessions from sb-access-token or the
// sb-<project>-auth-token cookie written by @supabase/ssr.
type Supabase struct{}

func (Supabase) Name() string { return "supabase" }

func (Supabase) Detect(r *http.Request) (*UserContext, bool) {
	access, ok := firstCookie(r, "sb-access-token")
	if !ok {
		access, ok = supabaseAuthCookie(r)
	}
	if !ok {
		return nil, false
	}
	claims, ok := parseUnverified(access, time.Now())
	if !ok {
		return nil, false
	}
	uc := &UserContext{Source: "supabase", SessionToken: access}
	claims.apply(uc)
	return uc, true
}

const supabaseBase64Prefix = "base64-"

// supabaseAuthCookie extracts the access token from an sb-<ref>-auth-token
// cookie. The value is a JSON session object or array, either
// base64-encoded or percent-encoded.
func supabaseAuthCookie(r *http.Request) (string, bool) {
	for _, c := range r.Cookies() {
		if !strings.HasPrefix(c.Name, "sb-") || !strings.HasSuffix(c.Name, "-auth-token") || c.Value == "" {
			continue
		}
		raw := c.Value
		if strings.HasPrefix(raw, supabaseBase64Prefix) {
			decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw[len(supabaseBase64Prefix):], "="))
			if err != nil {
				continue
			}
			raw = string(decoded)
		} else if unescaped, err := url.PathUnescape(raw); err == nil {
			raw = unescaped
		}
		if token, ok := supabaseAccessToken(raw); ok {
			return token, true
		}
	}
	return "", false
}

func supabaseAccessToken(raw string) (string, bool) {
	var session struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal([]byte(raw), &session); err == nil && session.AccessToken != "" {
		return session.AccessToken, true
	}
	// Older clients store [access_token, refresh_token, ...].
	var arr []any
	if err := json.Unmarshal([]byte(raw), &arr); err == nil && len(arr) > 0 {
		if s, ok := arr[0].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// Auth0 detects nextjs-auth0 sessions. The appSession cookie is encrypted,
// so only its presence is reported.
type Auth0 struct{}

func (Auth0) Name() string { return "auth0" }

func (Auth0) Detect(r *http.Request) (*UserContext, bool) {
	v, ok := firstCookie(r, "appSession", "appSession.0")
	if !ok {
		return nil, false
	}
	return &UserContext{Source: "auth0", SessionToken: v}, true
}
