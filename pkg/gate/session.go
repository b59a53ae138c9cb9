package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GuestOwner is the owner id used in local mode when no email is configured.
const GuestOwner = "guest"

// Session identifies the caller of one request.
type Session struct {
	OwnerID string `json:"owner_id"`
	Email   string `json:"email"`
	Admin   bool   `json:"admin"`
}

type sessionKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session stored on ctx.
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// OwnerID derives the owner id for an email: the first 16 hex digits of its
// SHA-256.
func OwnerID(email string) string {
	return CredentialHash(email)[:16]
}

// CredentialHash is the full SHA-256 hex digest of the normalized email.
func CredentialHash(email string) string {
	sum := sha256.Sum256([]byte(NormalizeEmail(email)))
	return hex.EncodeToString(sum[:])
}

// LocalSession is the session handed out when accounts are disabled: the
// owner follows the configured note.com email.
func LocalSession(email string) Session {
	if NormalizeEmail(email) == "" {
		return Session{OwnerID: GuestOwner, Admin: true}
	}
	return Session{OwnerID: OwnerID(email), Email: NormalizeEmail(email), Admin: true}
}
