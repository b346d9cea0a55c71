package detect

import (
	"net/http"
	"time"

	"integrate/pkg/logging"
)

// UserContext is what a detector could learn about the caller.
type UserContext struct {
	// Source names the detector that matched, e.g. "clerk".
	Source string

	// SessionToken is the raw session cookie value.
	SessionToken string

	UserID    string
	Email     string
	ExpiresAt time.Time
}

// SessionDetector recognises one auth library's session.
type SessionDetector interface {
	Name() string
	Detect(r *http.Request) (*UserContext, bool)
}

// Chain tries detectors in order and returns the first match.
type Chain []SessionDetector

// DefaultChain returns the built-in detectors in priority order.
func DefaultChain() Chain {
	return Chain{
		BetterAuth{},
		NextAuth{},
		Clerk{},
		Supabase{},
		Auth0{},
	}
}

// Detect never fails; it returns false when no detector matched.
func (c Chain) Detect(r *http.Request) (*UserContext, bool) {
	if r == nil {
		return nil, false
	}
	for _, d := range c {
		uc, ok := d.Detect(r)
		if !ok {
			continue
		}
		if uc.Source == "" {
			uc.Source = d.Name()
		}
		logging.Debug("Detect", "Detected %s session user=%s", uc.Source, uc.UserID)
		return uc, true
	}
	return nil, false
}

// firstCookie returns the first present, non-empty cookie among names.
func firstCookie(r *http.Request, names ...string) (string, bool) {
	for _, name := range names {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}
