// Package apperr defines Cratery's error taxonomy (NotFound,
// AlreadyExists, Unauthorized, Forbidden, Invalid, Conflict, Upstream,
// Storage, Internal) and the mapping from a constant.Err* sentinel to one of
// these typed errors.
package apperr

import (
	"errors"
	"fmt"

	"github.com/cratery/cratery/internal/platform/constant"
)

// NotFoundError indicates the requested resource does not exist.
type NotFoundError struct {
	EntityType string
	Code       string
	Title      string
	Message    string
	Err        error
}

func (e NotFoundError) Error() string { return e.Message }
func (e NotFoundError) Unwrap() error { return e.Err }

// ConflictError indicates the requested mutation collides with existing state
// (AlreadyExists and other conflict-shaped failures both map here).
type ConflictError struct {
	EntityType string
	Code       string
	Title      string
	Message    string
	Err        error
}

func (e ConflictError) Error() string { return e.Message }
func (e ConflictError) Unwrap() error { return e.Err }

// ValidationError indicates malformed or disallowed input.
type ValidationError struct {
	EntityType string
	Code       string
	Title      string
	Message    string
	Fields     map[string]string
	Err        error
}

func (e ValidationError) Error() string { return e.Message }
func (e ValidationError) Unwrap() error { return e.Err }

// UnauthorizedError indicates the request carries no valid principal.
type UnauthorizedError struct {
	Code    string
	Title   string
	Message string
	Err     error
}

func (e UnauthorizedError) Error() string { return e.Message }
func (e UnauthorizedError) Unwrap() error { return e.Err }

// ForbiddenError indicates an authenticated principal lacking privilege.
type ForbiddenError struct {
	Code    string
	Title   string
	Message string
	Err     error
}

func (e ForbiddenError) Error() string { return e.Message }
func (e ForbiddenError) Unwrap() error { return e.Err }

// UpstreamError wraps a failure from a collaborator (identity provider,
// object storage, worker transport).
type UpstreamError struct {
	Source  string
	Code    string
	Title   string
	Message string
	Err     error
}

func (e UpstreamError) Error() string { return e.Message }
func (e UpstreamError) Unwrap() error { return e.Err }

// StorageError wraps a failure from the Blob Store or Metadata DB.
type StorageError struct {
	Code    string
	Title   string
	Message string
	Err     error
}

func (e StorageError) Error() string { return e.Message }
func (e StorageError) Unwrap() error { return e.Err }

// RateLimitedError indicates the caller has exceeded a request budget
// (per-token publish rate limiting).
type RateLimitedError struct {
	Code    string
	Title   string
	Message string
	Err     error
}

func (e RateLimitedError) Error() string { return e.Message }
func (e RateLimitedError) Unwrap() error { return e.Err }

// InternalError is the catch-all for anything not classified above; it
// carries a CorrelationID surfaced to the caller for support.
type InternalError struct {
	Code          string
	Title         string
	Message       string
	CorrelationID string
	Err           error
}

func (e InternalError) Error() string { return e.Message }
func (e InternalError) Unwrap() error { return e.Err }

// ValidateInternalError wraps any error as an InternalError, attaching a
// correlation ID so it can be surfaced to the client and matched against logs.
func ValidateInternalError(err error, correlationID string) error {
	return InternalError{
		Code:          constant.ErrInternalServer.Error(),
		Title:         "Internal Server Error",
		Message:       "The server encountered an unexpected error. Please try again later or contact support with the correlation ID.",
		CorrelationID: correlationID,
		Err:           err,
	}
}

// ValidateBusinessError maps a constant.Err* sentinel into one of the typed
// errors above, formatting args into the message.
//
//nolint:gocyclo
func ValidateBusinessError(err error, entityType string, args ...any) error {
	switch {
	case errors.Is(err, constant.ErrPackageNotFound):
		return NotFoundError{
			EntityType: entityType, Code: constant.ErrPackageNotFound.Error(),
			Title: "Package Not Found",
			Message: fmt.Sprintf("No package named %v was found in this registry.", firstOr(args, "")),
		}
	case errors.Is(err, constant.ErrVersionNotFound):
		return NotFoundError{
			EntityType: entityType, Code: constant.ErrVersionNotFound.Error(),
			Title: "Version Not Found",
			Message: fmt.Sprintf("No version %v was found for this package.", firstOr(args, "")),
		}
	case errors.Is(err, constant.ErrVersionAlreadyExists):
		return ConflictError{
			EntityType: entityType, Code: constant.ErrVersionAlreadyExists.Error(),
			Title:   "Crate Version Already Exists",
			Message: "crate version already exists",
		}
	case errors.Is(err, constant.ErrInvalidPackageName):
		return ValidationError{
			EntityType: entityType, Code: constant.ErrInvalidPackageName.Error(),
			Title:   "Invalid Package Name",
			Message: "The package name does not conform to the registry's naming rules (ASCII, alphanumeric, '-'/'_').",
		}
	case errors.Is(err, constant.ErrInvalidSemver):
		return ValidationError{
			EntityType: entityType, Code: constant.ErrInvalidSemver.Error(),
			Title:   "Invalid Version",
			Message: "The declared version does not parse as a strict semantic version.",
		}
	case errors.Is(err, constant.ErrDependencyNotFound):
		return ValidationError{
			EntityType: entityType, Code: constant.ErrDependencyNotFound.Error(),
			Title: "Dependency Not Found",
			Message: fmt.Sprintf("Dependency %v does not reference an existing package in this registry or its upstream allow-list.", firstOr(args, "")),
		}
	case errors.Is(err, constant.ErrNotAnOwner):
		return ForbiddenError{
			Code: constant.ErrNotAnOwner.Error(), Title: "Not An Owner",
			Message: "Only an owner of this package may perform this action.",
		}
	case errors.Is(err, constant.ErrLastOwner):
		return ConflictError{
			EntityType: entityType, Code: constant.ErrLastOwner.Error(),
			Title:   "Cannot Remove Last Owner",
			Message: "A package must always have at least one owner.",
		}
	case errors.Is(err, constant.ErrOwnerAlreadyPresent):
		return ConflictError{
			EntityType: entityType, Code: constant.ErrOwnerAlreadyPresent.Error(),
			Title:   "Owner Already Present",
			Message: "The given user is already an owner of this package.",
		}
	case errors.Is(err, constant.ErrContentLengthMismatch):
		return ValidationError{
			EntityType: entityType, Code: constant.ErrContentLengthMismatch.Error(),
			Title:   "Content Length Mismatch",
			Message: "The declared tarball length does not match the number of bytes received.",
		}
	case errors.Is(err, constant.ErrTrustedReExport):
		return ConflictError{
			EntityType: entityType, Code: constant.ErrTrustedReExport.Error(),
			Title:   "Trusted Re-export",
			Message: "package is a trusted re-export; publish to the upstream registry",
		}
	case errors.Is(err, constant.ErrNoPackagesFound):
		return NotFoundError{
			EntityType: entityType, Code: constant.ErrNoPackagesFound.Error(),
			Title: "No Packages Found", Message: "No packages matched the given search.",
		}
	case errors.Is(err, constant.ErrTokenMissing):
		return UnauthorizedError{
			Code: constant.ErrTokenMissing.Error(), Title: "Token Missing",
			Message: "A valid bearer token must be provided in the Authorization header.",
		}
	case errors.Is(err, constant.ErrTokenInvalid), errors.Is(err, constant.ErrTokenRevoked):
		return UnauthorizedError{
			Code: constant.ErrTokenInvalid.Error(), Title: "Invalid Token",
			Message: "The provided token is invalid, expired, or has been revoked.",
		}
	case errors.Is(err, constant.ErrSessionExpired):
		return UnauthorizedError{
			Code: constant.ErrSessionExpired.Error(), Title: "Session Expired",
			Message: "Your session has expired. Please sign in again.",
		}
	case errors.Is(err, constant.ErrInsufficientScope), errors.Is(err, constant.ErrForbidden):
		return ForbiddenError{
			Code: constant.ErrForbidden.Error(), Title: "Forbidden",
			Message: "You do not have the necessary permissions to perform this action.",
		}
	case errors.Is(err, constant.ErrWorkerNotFound):
		return NotFoundError{
			EntityType: entityType, Code: constant.ErrWorkerNotFound.Error(),
			Title: "Worker Not Found", Message: "No connected worker matches the given identifier.",
		}
	case errors.Is(err, constant.ErrNoCapableWorker):
		return ConflictError{
			EntityType: entityType, Code: constant.ErrNoCapableWorker.Error(),
			Title:   "No Capable Worker Available",
			Message: "No connected worker currently advertises the capabilities this job requires.",
		}
	case errors.Is(err, constant.ErrJobNotFound):
		return NotFoundError{
			EntityType: entityType, Code: constant.ErrJobNotFound.Error(),
			Title: "Job Not Found", Message: "No job matches the given identifier.",
		}
	case errors.Is(err, constant.ErrJobAlreadyTerminal):
		return ConflictError{
			EntityType: entityType, Code: constant.ErrJobAlreadyTerminal.Error(),
			Title:   "Job Already Terminal",
			Message: "The job has already reached a terminal state and cannot be mutated.",
		}
	case errors.Is(err, constant.ErrBadRequest):
		return ValidationError{
			EntityType: entityType, Code: constant.ErrBadRequest.Error(),
			Title: "Bad Request", Message: "The request could not be understood due to malformed syntax.",
		}
	case errors.Is(err, constant.ErrRateLimited):
		return RateLimitedError{
			Code: constant.ErrRateLimited.Error(), Title: "Too Many Requests",
			Message: "You have exceeded the publish rate limit for this token. Please wait before retrying.",
		}
	default:
		return err
	}
}

func firstOr(args []any, fallback string) any {
	if len(args) == 0 {
		return fallback
	}

	return args[0]
}
