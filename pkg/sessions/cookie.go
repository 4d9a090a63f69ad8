package sessions

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

// CookieName is the name of the cookie that carries the session id.
const CookieName = "orgchart-session"

// cookieKeyID is the cookie value holding the opaque session id.
const cookieKeyID = "sid"

// CookieIdentifier assigns each browser an opaque session id and carries it in
// a signed cookie. Only the id travels to the client; the state stays in a Store.
type CookieIdentifier struct {
	store *sessions.CookieStore
}

// NewCookieIdentifier builds the cookie store.
//
// The secret can be any passphrase; it is SHA-256 hashed to derive a 32-byte
// signing key. It must be stable across restarts and across replicas.
func NewCookieIdentifier(secret string, ttl time.Duration, secure bool) *CookieIdentifier {
	key := sha256.Sum256([]byte(secret))

	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &CookieIdentifier{store: store}
}

// Identify returns the session id of the request, creating one when the
// request has no valid cookie. The cookie is re-issued on every call so its
// lifetime slides with activity.
func (c *CookieIdentifier) Identify(w http.ResponseWriter, r *http.Request) (string, error) {
	// A cookie that fails to decode (rotated secret, tampering) yields a new session.
	sess, _ := c.store.Get(r, CookieName)
	if sess == nil {
		sess = sessions.NewSession(c.store, CookieName)
		opts := *c.store.Options
		sess.Options = &opts
		sess.IsNew = true
	}

	id, _ := sess.Values[cookieKeyID].(string)
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
		sess.Values[cookieKeyID] = id
	}

	if err := sess.Save(r, w); err != nil {
		return "", fmt.Errorf("failed to save session cookie: %w", err)
	}
	return id, nil
}
