// Package nethttp provides the Fiber response helpers, request decode and
// validation decorators, and error-to-status mapping shared by every route
// in the HTTP surface.
package nethttp

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/cratery/cratery/internal/platform/apperr"
)

// ResponseError is the JSON body returned for any error response.
type ResponseError struct {
	Code    string            `json:"code,omitempty"`
	Title   string            `json:"title,omitempty"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (r ResponseError) Error() string { return r.Message }

// OK writes a 200 response with the given payload.
func OK(c *fiber.Ctx, payload any) error {
	return c.Status(fiber.StatusOK).JSON(payload)
}

// Created writes a 201 response with the given payload.
func Created(c *fiber.Ctx, payload any) error {
	return c.Status(fiber.StatusCreated).JSON(payload)
}

// NoContent writes a 204 response with an empty body.
func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// BadRequest writes a 400 response.
func BadRequest(c *fiber.Ctx, code, title, message string, fields map[string]string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ResponseError{Code: code, Title: title, Message: message, Fields: fields})
}

// Unauthorized writes a 401 response.
func Unauthorized(c *fiber.Ctx, code, title, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(ResponseError{Code: code, Title: title, Message: message})
}

// Forbidden writes a 403 response.
func Forbidden(c *fiber.Ctx, code, title, message string) error {
	return c.Status(fiber.StatusForbidden).JSON(ResponseError{Code: code, Title: title, Message: message})
}

// NotFound writes a 404 response.
func NotFound(c *fiber.Ctx, code, title, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(ResponseError{Code: code, Title: title, Message: message})
}

// Conflict writes a 409 response.
func Conflict(c *fiber.Ctx, code, title, message string) error {
	return c.Status(fiber.StatusConflict).JSON(ResponseError{Code: code, Title: title, Message: message})
}

// UnprocessableEntity writes a 422 response.
func UnprocessableEntity(c *fiber.Ctx, code, title, message string) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(ResponseError{Code: code, Title: title, Message: message})
}

// TooManyRequests writes a 429 response, used by the rate limiter.
func TooManyRequests(c *fiber.Ctx, code, title, message string) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(ResponseError{Code: code, Title: title, Message: message})
}

// InternalServerError writes a 500 response.
func InternalServerError(c *fiber.Ctx, code, title, message string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(ResponseError{Code: code, Title: title, Message: message})
}

// BadGateway writes a 502 response, used when an upstream collaborator fails.
func BadGateway(c *fiber.Ctx, code, title, message string) error {
	return c.Status(fiber.StatusBadGateway).JSON(ResponseError{Code: code, Title: title, Message: message})
}

// WithError type-switches err into the matching HTTP response.
func WithError(c *fiber.Ctx, err error) error {
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
		respErr      ResponseError
	)

	switch {
	case errors.As(err, &notFound):
		return NotFound(c, notFound.Code, notFound.Title, notFound.Message)
	case errors.As(err, &conflict):
		return Conflict(c, conflict.Code, conflict.Title, conflict.Message)
	case errors.As(err, &validation):
		return BadRequest(c, validation.Code, validation.Title, validation.Message, validation.Fields)
	case errors.As(err, &unauthorized):
		return Unauthorized(c, unauthorized.Code, unauthorized.Title, unauthorized.Message)
	case errors.As(err, &forbidden):
		return Forbidden(c, forbidden.Code, forbidden.Title, forbidden.Message)
	case errors.As(err, &upstream):
		return BadGateway(c, upstream.Code, upstream.Title, upstream.Message)
	case errors.As(err, &storage):
		return InternalServerError(c, storage.Code, storage.Title, storage.Message)
	case errors.As(err, &rateLimited):
		return TooManyRequests(c, rateLimited.Code, rateLimited.Title, rateLimited.Message)
	case errors.As(err, &internal):
		return InternalServerError(c, internal.Code, internal.Title, internal.Message)
	case errors.As(err, &respErr):
		return c.Status(fiber.StatusBadRequest).JSON(respErr)
	default:
		wrapped := apperr.ValidateInternalError(err, c.Get(headerCorrelationID))

		var iErr apperr.InternalError

		_ = errors.As(wrapped, &iErr)

		return InternalServerError(c, iErr.Code, iErr.Title, iErr.Message)
	}
}
