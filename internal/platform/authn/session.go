package authn

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/domain/user"
	"github.com/cratery/cratery/internal/platform/constant"
)

// SessionCookieName is the cookie carrying a signed session for the
// browser ingress mode.
const SessionCookieName = "cratery_session"

// sessionClaims binds a User identifier, its Role at mint time, and an
// expiry. The embedded Role is informational: the authn middleware loads
// the User row on every request and authorizes with its current Role.
type sessionClaims struct {
	jwt.RegisteredClaims
	Role user.Role `json:"role"`
}

// SessionManager issues and validates session cookies with HMAC-SHA256.
type SessionManager struct {
	signingKey []byte
	ttl        time.Duration
}

// NewSessionManager constructs a SessionManager. ttl is the session's
// lifetime from issuance.
func NewSessionManager(signingKey []byte, ttl time.Duration) *SessionManager {
	return &SessionManager{signingKey: signingKey, ttl: ttl}
}

// Issue mints a signed session token for u, to be set as SessionCookieName.
func (m *SessionManager) Issue(u *user.User) (string, error) {
	now := time.Now()

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Role: u.Role,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
}

// SessionPrincipal is the subset of claims a validated session cookie yields;
// the caller still loads the full User row to check Disabled and current Role.
type SessionPrincipal struct {
	UserID     uuid.UUID
	IssuedRole user.Role
}

// Verify parses and validates tokenString, returning the claims it carries.
func (m *SessionManager) Verify(tokenString string) (*SessionPrincipal, error) {
	claims := &sessionClaims{}

	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, constant.ErrTokenInvalid
		}

		return m.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		return nil, constant.ErrSessionExpired
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, constant.ErrTokenInvalid
	}

	return &SessionPrincipal{UserID: id, IssuedRole: claims.Role}, nil
}
