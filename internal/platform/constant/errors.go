// Package constant holds the sentinel errors that name a business-rule
// violation. apperr.ValidateBusinessError translates each sentinel into a
// typed, HTTP-mappable error with a human message.
package constant

import "errors"

var (
	// Package / ownership
	ErrPackageNotFound        = errors.New("C0001")
	ErrVersionAlreadyExists   = errors.New("C0002")
	ErrInvalidPackageName     = errors.New("C0003")
	ErrInvalidSemver          = errors.New("C0004")
	ErrDependencyNotFound     = errors.New("C0005")
	ErrNotAnOwner             = errors.New("C0006")
	ErrLastOwner              = errors.New("C0007")
	ErrOwnerAlreadyPresent    = errors.New("C0008")
	ErrVersionNotFound        = errors.New("C0009")
	ErrContentLengthMismatch  = errors.New("C0010")
	ErrTrustedReExport        = errors.New("C0011")
	ErrNoPackagesFound        = errors.New("C0012")

	// Auth
	ErrTokenMissing        = errors.New("A0001")
	ErrTokenInvalid        = errors.New("A0002")
	ErrTokenRevoked        = errors.New("A0003")
	ErrInsufficientScope   = errors.New("A0004")
	ErrForbidden           = errors.New("A0005")
	ErrSessionExpired      = errors.New("A0006")
	ErrExternalAuthFailed  = errors.New("A0007")

	// Worker / job
	ErrWorkerNotFound     = errors.New("W0001")
	ErrNoCapableWorker    = errors.New("W0002")
	ErrJobNotFound        = errors.New("W0003")
	ErrJobAlreadyTerminal = errors.New("W0004")

	// Generic
	ErrBadRequest       = errors.New("G0001")
	ErrUnexpectedFields = errors.New("G0002")
	ErrInternalServer   = errors.New("G0003")
	ErrStorage          = errors.New("G0004")
	ErrUpstream         = errors.New("G0005")
	ErrRateLimited      = errors.New("G0006")
)
