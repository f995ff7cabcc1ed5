package mid

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"regexp"
	"time"
)

// SessionCookie names the cookie that identifies a browser session.
const SessionCookie = "vinwizard_session"

const sessionMaxAge = 365 * 24 * time.Hour

var sessionIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

type sessionKey struct{}

// Session returns middleware that ensures every request carries a session ID,
// issuing a cookie when the browser has none.
func Session() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(SessionCookie); err == nil && sessionIDPattern.MatchString(c.Value) {
				id = c.Value
			}
			if id == "" {
				id = newSessionID()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    id,
					Path:     "/",
					MaxAge:   int(sessionMaxAge.Seconds()),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), id)))
		})
	}
}

// WithSessionID stores id in ctx.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionID returns the session ID set by Session, or "".
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

func newSessionID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("mid: crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
