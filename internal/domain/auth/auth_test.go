package auth_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/cratery/cratery/internal/domain/auth"
	"github.com/cratery/cratery/internal/domain/token"
	"github.com/cratery/cratery/internal/domain/user"
	"github.com/cratery/cratery/internal/platform/constant"
)

func adminPrincipal() auth.Principal {
	return auth.Principal{User: &user.User{ID: uuid.New(), Role: user.RoleAdmin}}
}

func userPrincipal() auth.Principal {
	return auth.Principal{User: &user.User{ID: uuid.New(), Role: user.RoleUser}}
}

func TestPolicyAdminCanDoAnything(t *testing.T) {
	p := adminPrincipal()

	assert.NoError(t, auth.Policy(p, auth.OperationAdminGlobal, auth.Resource{}, false))
	assert.NoError(t, auth.Policy(p, auth.OperationWritePackage, auth.Resource{CrateName: "widgets"}, false))
	assert.NoError(t, auth.Policy(p, auth.OperationReadPackage, auth.Resource{CrateName: "widgets", Restricted: true}, false))
}

func TestPolicyUserMayReadNonRestricted(t *testing.T) {
	p := userPrincipal()

	assert.NoError(t, auth.Policy(p, auth.OperationReadPackage, auth.Resource{CrateName: "widgets"}, false))
}

func TestPolicyUserMayNotReadRestricted(t *testing.T) {
	p := userPrincipal()

	err := auth.Policy(p, auth.OperationReadPackage, auth.Resource{CrateName: "widgets", Restricted: true}, false)
	assert.ErrorIs(t, err, constant.ErrForbidden)
}

func TestPolicyUserMayWriteOnlyIfOwner(t *testing.T) {
	p := userPrincipal()

	assert.ErrorIs(t, auth.Policy(p, auth.OperationWritePackage, auth.Resource{CrateName: "widgets"}, false), constant.ErrNotAnOwner)
	assert.NoError(t, auth.Policy(p, auth.OperationWritePackage, auth.Resource{CrateName: "widgets"}, true))
}

func TestPolicyUserMayNeverAdmin(t *testing.T) {
	p := userPrincipal()

	err := auth.Policy(p, auth.OperationAdminGlobal, auth.Resource{}, false)
	assert.ErrorIs(t, err, constant.ErrForbidden)
}

func TestPolicyDisabledUserAlwaysForbidden(t *testing.T) {
	p := auth.Principal{User: &user.User{ID: uuid.New(), Role: user.RoleAdmin, Disabled: true}}

	err := auth.Policy(p, auth.OperationReadPackage, auth.Resource{}, false)
	assert.ErrorIs(t, err, constant.ErrForbidden)
}

func TestPolicyTokenCapabilityFurtherRestricts(t *testing.T) {
	p := auth.Principal{
		User:  &user.User{ID: uuid.New(), Role: user.RoleAdmin},
		Token: &token.Token{Capabilities: []token.Capability{token.CanRead}},
	}

	assert.NoError(t, auth.Policy(p, auth.OperationReadPackage, auth.Resource{}, false))

	err := auth.Policy(p, auth.OperationWritePackage, auth.Resource{CrateName: "widgets"}, true)
	assert.ErrorIs(t, err, constant.ErrInsufficientScope)
}

func TestPolicyTokenCrateScopeRestricts(t *testing.T) {
	p := auth.Principal{
		User: &user.User{ID: uuid.New(), Role: user.RoleAdmin},
		Token: &token.Token{
			Capabilities: []token.Capability{token.CanWrite},
			CrateScope:   []string{"gadgets"},
		},
	}

	assert.NoError(t, auth.Policy(p, auth.OperationWritePackage, auth.Resource{CrateName: "gadgets"}, true))

	err := auth.Policy(p, auth.OperationWritePackage, auth.Resource{CrateName: "widgets"}, true)
	assert.ErrorIs(t, err, constant.ErrInsufficientScope)
}

func TestPolicyNoPrincipalIsUnauthenticated(t *testing.T) {
	err := auth.Policy(auth.Principal{}, auth.OperationReadPackage, auth.Resource{}, false)
	assert.ErrorIs(t, err, constant.ErrTokenMissing)
}
