package authn_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratery/cratery/internal/domain/token"
	"github.com/cratery/cratery/internal/platform/authn"
	"github.com/cratery/cratery/internal/platform/constant"
)

type fakeTokenRepository struct {
	byPrefix   map[string]*token.Token
	touchedIDs []uuid.UUID
	revokedIDs []uuid.UUID
}

func (f *fakeTokenRepository) Create(ctx context.Context, t *token.Token) (*token.Token, error) {
	return t, nil
}

func (f *fakeTokenRepository) FindByPrefix(ctx context.Context, prefix string) (*token.Token, error) {
	return f.byPrefix[prefix], nil
}

func (f *fakeTokenRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*token.Token, error) {
	return nil, nil
}

func (f *fakeTokenRepository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	f.touchedIDs = append(f.touchedIDs, id)
	return nil
}

func (f *fakeTokenRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	f.revokedIDs = append(f.revokedIDs, id)
	return nil
}

func TestExtractBearer(t *testing.T) {
	secret, ok := authn.ExtractBearer("Bearer abc123")
	assert.True(t, ok)
	assert.Equal(t, "abc123", secret)

	_, ok = authn.ExtractBearer("Basic abc123")
	assert.False(t, ok)

	_, ok = authn.ExtractBearer("")
	assert.False(t, ok)
}

func TestTokenVerifierVerifiesCorrectSecret(t *testing.T) {
	clear, prefix, hash, err := authn.GenerateSecret()
	require.NoError(t, err)

	stored := &token.Token{ID: uuid.New(), SecretPrefix: prefix, SecretHash: hash}
	repo := &fakeTokenRepository{byPrefix: map[string]*token.Token{prefix: stored}}
	v := &authn.TokenVerifier{Tokens: repo}

	got, err := v.Verify(context.Background(), clear)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, got.ID)
	assert.Contains(t, repo.touchedIDs, stored.ID)
}

func TestTokenVerifierRejectsWrongSecret(t *testing.T) {
	clear, prefix, hash, err := authn.GenerateSecret()
	require.NoError(t, err)

	stored := &token.Token{ID: uuid.New(), SecretPrefix: prefix, SecretHash: hash}
	repo := &fakeTokenRepository{byPrefix: map[string]*token.Token{prefix: stored}}
	v := &authn.TokenVerifier{Tokens: repo}

	tampered := clear[:len(clear)-1] + "0"
	if tampered == clear {
		tampered = clear[:len(clear)-1] + "1"
	}

	_, err = v.Verify(context.Background(), tampered)
	assert.ErrorIs(t, err, constant.ErrTokenInvalid)
}

func TestTokenVerifierRejectsRevokedToken(t *testing.T) {
	clear, prefix, hash, err := authn.GenerateSecret()
	require.NoError(t, err)

	revokedAt := time.Now()
	stored := &token.Token{ID: uuid.New(), SecretPrefix: prefix, SecretHash: hash, RevokedAt: &revokedAt}
	repo := &fakeTokenRepository{byPrefix: map[string]*token.Token{prefix: stored}}
	v := &authn.TokenVerifier{Tokens: repo}

	_, err = v.Verify(context.Background(), clear)
	assert.ErrorIs(t, err, constant.ErrTokenRevoked)
}

func TestTokenVerifierRejectsUnknownPrefix(t *testing.T) {
	repo := &fakeTokenRepository{byPrefix: map[string]*token.Token{}}
	v := &authn.TokenVerifier{Tokens: repo}

	clear, _, _, err := authn.GenerateSecret()
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), clear)
	assert.ErrorIs(t, err, constant.ErrTokenInvalid)
}
