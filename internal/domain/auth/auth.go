// Package auth holds the authorization policy: a pure
// function of (Principal, Operation, Resource), kept free of any I/O so it
// can be unit-tested without a database. Authentication — resolving a
// request into a Principal in the first place — lives in
// internal/platform/authn.
package auth

import (
	"github.com/cratery/cratery/internal/domain/token"
	"github.com/cratery/cratery/internal/domain/user"
	"github.com/cratery/cratery/internal/platform/apperr"
	"github.com/cratery/cratery/internal/platform/constant"
)

// Operation enumerates the coarse actions Policy can decide on.
type Operation string

const (
	OperationReadPackage  Operation = "read-package"
	OperationWritePackage Operation = "write-package"
	OperationAdminGlobal  Operation = "admin-global"
)

// Resource describes what an Operation is being attempted against.
type Resource struct {
	CrateName  string
	Restricted bool
}

// Principal is the authenticated actor behind a request: always a User,
// optionally narrowed by the Token presented to authenticate (bearer-token
// ingress only — session-cookie and external-handshake requests carry a nil
// Token and so are unrestricted by capability).
type Principal struct {
	User  *user.User
	Token *token.Token
}

// tokenCapabilityFor maps an Operation to the Token capability required to
// perform it, independent of the underlying User's Role.
func tokenCapabilityFor(op Operation) token.Capability {
	switch op {
	case OperationReadPackage:
		return token.CanRead
	case OperationWritePackage:
		return token.CanWrite
	case OperationAdminGlobal:
		return token.CanAdmin
	default:
		return token.CanAdmin
	}
}

// Policy decides whether principal may perform op against resource.
// isOwner must already reflect whether principal.User owns resource's
// package (a DB lookup the caller performs before invoking Policy — this
// function does no I/O).
func Policy(principal Principal, op Operation, resource Resource, isOwner bool) error {
	if principal.User == nil {
		return constant.ErrTokenMissing
	}

	if principal.User.Disabled {
		return constant.ErrForbidden
	}

	if principal.Token != nil && !principal.Token.Has(tokenCapabilityFor(op)) {
		return constant.ErrInsufficientScope
	}

	if principal.Token != nil && resource.CrateName != "" && !principal.Token.ScopedTo(resource.CrateName) {
		return constant.ErrInsufficientScope
	}

	if principal.User.Role == user.RoleAdmin {
		return nil
	}

	switch op {
	case OperationAdminGlobal:
		return constant.ErrForbidden
	case OperationReadPackage:
		if resource.Restricted {
			return constant.ErrForbidden
		}

		return nil
	case OperationWritePackage:
		if !isOwner {
			return constant.ErrNotAnOwner
		}

		return nil
	default:
		return constant.ErrForbidden
	}
}

// Authorize is Policy wrapped with apperr's business-error translation, for
// callers (HTTP handlers, command handlers) that want a ready-to-return error.
func Authorize(principal Principal, op Operation, resource Resource, isOwner bool) error {
	if err := Policy(principal, op, resource, isOwner); err != nil {
		return apperr.ValidateBusinessError(err, "Principal")
	}

	return nil
}
