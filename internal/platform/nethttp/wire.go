package nethttp

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/platform/apperr"
)

// WireErrorDetail is one entry of the crates.io-compatible error envelope
// returned on every package-tooling-facing endpoint.
type WireErrorDetail struct {
	Detail string `json:"detail"`
}

// WireErrorBody is the `{"errors":[{"detail":...}]}` envelope itself.
type WireErrorBody struct {
	Errors []WireErrorDetail `json:"errors"`
}

func wireBody(status int, c *fiber.Ctx, detail string) error {
	return c.Status(status).JSON(WireErrorBody{Errors: []WireErrorDetail{{Detail: detail}}})
}

// WithWireError maps err to the crates.io-compatible envelope instead of
// the admin-facing ResponseError shape WithError produces, for every
// endpoint package tooling consumes.
func WithWireError(c *fiber.Ctx, err error) error {
	var (
		notFound     apperr.NotFoundError
		conflict     apperr.ConflictError
		validation   apperr.ValidationError
		unauthorized apperr.UnauthorizedError
		forbidden    apperr.ForbiddenError
		upstream     apperr.UpstreamError
		storage      apperr.StorageError
		rateLimited  apperr.RateLimitedError
		internal     apperr.InternalError
	)

	switch {
	case errors.As(err, &notFound):
		return wireBody(fiber.StatusNotFound, c, notFound.Message)
	case errors.As(err, &conflict):
		return wireBody(fiber.StatusBadRequest, c, conflict.Message)
	case errors.As(err, &validation):
		return wireBody(fiber.StatusBadRequest, c, validation.Message)
	case errors.As(err, &unauthorized):
		return wireBody(fiber.StatusUnauthorized, c, unauthorized.Message)
	case errors.As(err, &forbidden):
		return wireBody(fiber.StatusForbidden, c, forbidden.Message)
	case errors.As(err, &upstream):
		return wireBody(fiber.StatusBadGateway, c, upstream.Message)
	case errors.As(err, &storage):
		return wireBody(fiber.StatusInternalServerError, c, storage.Message)
	case errors.As(err, &rateLimited):
		return wireBody(fiber.StatusTooManyRequests, c, rateLimited.Message)
	case errors.As(err, &internal):
		return wireBody(fiber.StatusInternalServerError, c, internal.Message)
	default:
		wrapped := apperr.ValidateInternalError(err, c.Get(headerCorrelationID))

		var iErr apperr.InternalError

		_ = errors.As(wrapped, &iErr)

		return wireBody(fiber.StatusInternalServerError, c, iErr.Message)
	}
}

// ParseUUIDParam parses the named Fiber path parameter as a UUID, writing a
// wire-compatible 400 response and returning ok=false on failure.
func ParseUUIDParam(c *fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		_ = wireBody(fiber.StatusBadRequest, c, "the "+name+" path parameter is not a valid identifier")
		return uuid.Nil, false
	}

	return id, true
}
