// Package authn resolves an inbound HTTP request into a Principal: bearer.go
// covers tooling tokens with a constant-time compare, session.go covers
// browser sessions with signed cookies, and oauth.go drives the
// authorization-code handshake against a configurable identity provider.
package authn

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/cratery/cratery/internal/domain/token"
	"github.com/cratery/cratery/internal/platform/constant"
)

const tokenPrefixLen = 12

// GenerateSecret creates a new bearer secret and returns its clear form (to
// be shown to the user exactly once), its lookup prefix, and the hash stored
// in place of the clear secret.
func GenerateSecret() (clearSecret, prefix, hash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", err
	}

	clearSecret = hex.EncodeToString(raw)
	prefix = clearSecret[:tokenPrefixLen]
	hash = hashSecret(clearSecret)

	return clearSecret, prefix, hash, nil
}

func hashSecret(clearSecret string) string {
	sum := sha256.Sum256([]byte(clearSecret))
	return hex.EncodeToString(sum[:])
}

// ExtractBearer pulls the hex secret out of an Authorization header value,
// e.g. "Bearer <hex>". Returns ok=false if the header doesn't carry one.
func ExtractBearer(authorizationHeader string) (secret string, ok bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authorizationHeader, prefix) {
		return "", false
	}

	secret = strings.TrimSpace(strings.TrimPrefix(authorizationHeader, prefix))

	return secret, secret != ""
}

// TokenVerifier resolves a bearer secret to its Token: look up by prefix,
// then constant-time compare the hash of the whole secret with the stored
// hash.
type TokenVerifier struct {
	Tokens token.Repository
}

// Verify authenticates clearSecret and returns the Token it names. Best-effort
// touches last-used-at: a failure to record it does not fail authentication.
func (v *TokenVerifier) Verify(ctx context.Context, clearSecret string) (*token.Token, error) {
	if len(clearSecret) < tokenPrefixLen {
		return nil, constant.ErrTokenInvalid
	}

	t, err := v.Tokens.FindByPrefix(ctx, clearSecret[:tokenPrefixLen])
	if err != nil {
		return nil, err
	}

	if t == nil {
		return nil, constant.ErrTokenInvalid
	}

	if t.RevokedAt != nil {
		return nil, constant.ErrTokenRevoked
	}

	want := hashSecret(clearSecret)
	if subtle.ConstantTimeCompare([]byte(want), []byte(t.SecretHash)) != 1 {
		return nil, constant.ErrTokenInvalid
	}

	_ = v.Tokens.TouchLastUsed(ctx, t.ID)

	return t, nil
}
