package shared

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

const (
	// CSRFCookieName is the cookie carrying the issued CSRF token.
	CSRFCookieName = "garrison_csrf"
	// CSRFHeaderName is the request header that must echo the token.
	CSRFHeaderName = "X-CSRF-Token"
	// CSRFFormField is the form fallback for clients that cannot set headers.
	CSRFFormField = "csrf_token"
)

// CSRFManager issues and verifies double-submit CSRF tokens bound to a
// session ID. Tokens are nonce.mac pairs; verification recomputes the MAC,
// so no server-side token storage is needed.
type CSRFManager struct {
	secret []byte
}

// NewCSRFManager returns a CSRFManager using the provided secret key.
func NewCSRFManager(secret string) *CSRFManager {
	return &CSRFManager{secret: []byte(secret)}
}

// IssueToken generates a fresh token for the session ID.
func (m *CSRFManager) IssueToken(sessionID string) string {
	nonce := make([]byte, 16)
	_, _ = rand.Read(nonce)
	encoded := base64.RawURLEncoding.EncodeToString(nonce)
	return encoded + "." + m.sign(sessionID, encoded)
}

// VerifyToken checks a token against the session ID it was issued for.
func (m *CSRFManager) VerifyToken(sessionID, token string) error {
	if token == "" {
		return ErrCSRFTokenMissing
	}
	nonce, mac, ok := strings.Cut(token, ".")
	if !ok {
		return ErrCSRFTokenMismatch
	}
	if !hmac.Equal([]byte(m.sign(sessionID, nonce)), []byte(mac)) {
		return ErrCSRFTokenMismatch
	}
	return nil
}

func (m *CSRFManager) sign(sessionID, nonce string) string {
	mac := hmac.New(sha256.New, m.secret)
	_, _ = mac.Write([]byte(sessionID))
	_, _ = mac.Write([]byte{'|'})
	_, _ = mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
