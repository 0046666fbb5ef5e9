package authn_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratery/cratery/internal/domain/user"
	"github.com/cratery/cratery/internal/platform/authn"
)

func TestSessionManagerRoundTrip(t *testing.T) {
	m := authn.NewSessionManager([]byte("test-signing-key"), time.Hour)

	u := &user.User{ID: uuid.New(), Role: user.RoleUser}

	cookie, err := m.Issue(u)
	require.NoError(t, err)

	principal, err := m.Verify(cookie)
	require.NoError(t, err)
	assert.Equal(t, u.ID, principal.UserID)
	assert.Equal(t, user.RoleUser, principal.IssuedRole)
}

func TestSessionManagerRejectsExpiredToken(t *testing.T) {
	m := authn.NewSessionManager([]byte("test-signing-key"), -time.Hour)

	u := &user.User{ID: uuid.New(), Role: user.RoleUser}

	cookie, err := m.Issue(u)
	require.NoError(t, err)

	_, err = m.Verify(cookie)
	assert.Error(t, err)
}

func TestSessionManagerRejectsTamperedToken(t *testing.T) {
	m := authn.NewSessionManager([]byte("test-signing-key"), time.Hour)
	other := authn.NewSessionManager([]byte("different-key"), time.Hour)

	u := &user.User{ID: uuid.New(), Role: user.RoleUser}

	cookie, err := other.Issue(u)
	require.NoError(t, err)

	_, err = m.Verify(cookie)
	assert.Error(t, err)
}
