package http

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/platform/apperr"
	"github.com/cratery/cratery/internal/platform/authn"
	"github.com/cratery/cratery/internal/platform/constant"
	"github.com/cratery/cratery/internal/platform/nethttp"
	"github.com/cratery/cratery/internal/ports/blob"
)

// Search handles GET /api/v1/crates?q=...&per_page=...&cursor=....
// Pagination is by opaque cursor: the response's meta.next_cursor, handed
// back verbatim, resumes the listing; its absence means the listing is
// exhausted.
func (h *Handler) Search(c *fiber.Ctx) error {
	q := c.Query("q")
	cursor := c.Query("cursor")
	limit := c.QueryInt("per_page", 10)

	results, next, err := h.Query.Search(c.UserContext(), q, cursor, limit)
	if err != nil {
		return nethttp.WithWireError(c, err)
	}

	crates := make([]searchCrate, 0, len(results))

	for _, r := range results {
		crates = append(crates, searchCrate{
			Name:        r.Crate.Name,
			MaxVersion:  r.MaxVersion,
			Description: r.Description,
		})
	}

	meta := searchMeta{Total: len(crates)}
	if next != "" {
		meta.NextCursor = &next
	}

	return c.Status(fiber.StatusOK).JSON(searchResponse{
		Crates: crates,
		Meta:   meta,
	})
}

type searchCrate struct {
	Name        string `json:"name"`
	MaxVersion  string `json:"max_version"`
	Description string `json:"description"`
}

type searchMeta struct {
	Total      int     `json:"total"`
	NextCursor *string `json:"next_cursor,omitempty"`
}

type searchResponse struct {
	Crates []searchCrate `json:"crates"`
	Meta   searchMeta    `json:"meta"`
}

// Download handles GET /api/v1/crates/{name}/{version}/download: streams the
// tarball blob for a (crate, semver) pair.
func (h *Handler) Download(c *fiber.Ctx) error {
	name := c.Params("name")
	ver := c.Params("version")

	_, v, err := h.Query.FindVersion(c.UserContext(), name, ver)
	if err != nil {
		return nethttp.WithWireError(c, err)
	}

	rc, err := h.Command.Blobs.Get(c.UserContext(), blob.CratesKey(v.ContentHash))
	if err != nil {
		return nethttp.WithWireError(c, apperr.StorageError{Message: err.Error(), Err: err})
	}
	defer rc.Close()

	c.Set(fiber.HeaderContentType, "application/gzip")

	_, err = io.Copy(c.Response().BodyWriter(), rc)

	return err
}

// Yank handles DELETE /api/v1/crates/{name}/{version}/yank.
func (h *Handler) Yank(c *fiber.Ctx) error {
	principal, ok := authn.PrincipalFromContext(c)
	if !ok {
		return nethttp.WithWireError(c, apperr.ValidateBusinessError(constant.ErrTokenMissing, "Principal"))
	}

	if err := h.Command.Yank(c.UserContext(), principal, c.Params("name"), c.Params("version")); err != nil {
		return nethttp.WithWireError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(okResponse{OK: true})
}

// Unyank handles PUT /api/v1/crates/{name}/{version}/unyank.
func (h *Handler) Unyank(c *fiber.Ctx) error {
	principal, ok := authn.PrincipalFromContext(c)
	if !ok {
		return nethttp.WithWireError(c, apperr.ValidateBusinessError(constant.ErrTokenMissing, "Principal"))
	}

	if err := h.Command.Unyank(c.UserContext(), principal, c.Params("name"), c.Params("version")); err != nil {
		return nethttp.WithWireError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(okResponse{OK: true})
}

type okResponse struct {
	OK bool `json:"ok"`
}

// deprecateInput is the body of PUT /api/v1/crates/{name}/deprecate.
type deprecateInput struct {
	Notice *string `json:"notice,omitempty"`
}

// Deprecate handles PUT /api/v1/crates/{name}/deprecate.
func (h *Handler) Deprecate(c *fiber.Ctx) error {
	principal, ok := authn.PrincipalFromContext(c)
	if !ok {
		return nethttp.WithWireError(c, apperr.ValidateBusinessError(constant.ErrTokenMissing, "Principal"))
	}

	var in deprecateInput
	if err := c.BodyParser(&in); err != nil {
		return nethttp.WithWireError(c, apperr.ValidationError{Message: "malformed request body"})
	}

	if err := h.Command.Deprecate(c.UserContext(), principal, c.Params("name"), in.Notice); err != nil {
		return nethttp.WithWireError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(okResponse{OK: true})
}

// ownerView is one entry of a list-owners response.
type ownerView struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"name"`
	Email       string    `json:"email,omitempty"`
}

// ListOwners handles GET /api/v1/crates/{name}/owners.
func (h *Handler) ListOwners(c *fiber.Ctx) error {
	owners, err := h.Query.ListOwners(c.UserContext(), c.Params("name"))
	if err != nil {
		return nethttp.WithWireError(c, err)
	}

	views := make([]ownerView, 0, len(owners))
	for _, o := range owners {
		views = append(views, ownerView{ID: o.ID, DisplayName: o.DisplayName, Email: o.Email})
	}

	return c.Status(fiber.StatusOK).JSON(ownersResponse{Users: views})
}

type ownersResponse struct {
	Users []ownerView `json:"users"`
}

// addOwnerInput is the body of PUT /api/v1/crates/{name}/owners.
type addOwnerInput struct {
	UserID uuid.UUID `json:"userId"`
}

// AddOwner handles PUT /api/v1/crates/{name}/owners.
func (h *Handler) AddOwner(c *fiber.Ctx) error {
	principal, ok := authn.PrincipalFromContext(c)
	if !ok {
		return nethttp.WithWireError(c, apperr.ValidateBusinessError(constant.ErrTokenMissing, "Principal"))
	}

	var in addOwnerInput
	if err := c.BodyParser(&in); err != nil {
		return nethttp.WithWireError(c, apperr.ValidationError{Message: "malformed request body"})
	}

	if err := h.Command.AddOwner(c.UserContext(), principal, c.Params("name"), in.UserID); err != nil {
		return nethttp.WithWireError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(okResponse{OK: true})
}

// RemoveOwner handles DELETE /api/v1/crates/{name}/owners/{userID}.
func (h *Handler) RemoveOwner(c *fiber.Ctx) error {
	principal, ok := authn.PrincipalFromContext(c)
	if !ok {
		return nethttp.WithWireError(c, apperr.ValidateBusinessError(constant.ErrTokenMissing, "Principal"))
	}

	userID, ok := nethttp.ParseUUIDParam(c, "userID")
	if !ok {
		return nil
	}

	if err := h.Command.RemoveOwner(c.UserContext(), principal, c.Params("name"), userID); err != nil {
		return nethttp.WithWireError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(okResponse{OK: true})
}

// Remove handles DELETE /api/v1/admin/crates/{name}/{version}: the
// admin-only hard delete. The command layer itself enforces
// the admin-only rule via auth.Authorize, so this handler does no separate
// role check.
func (h *Handler) Remove(c *fiber.Ctx) error {
	principal, ok := authn.PrincipalFromContext(c)
	if !ok {
		return nethttp.WithError(c, apperr.ValidateBusinessError(constant.ErrTokenMissing, "Principal"))
	}

	if err := h.Command.Remove(c.UserContext(), principal, c.Params("name"), c.Params("version")); err != nil {
		return nethttp.WithError(c, err)
	}

	return nethttp.NoContent(c)
}
