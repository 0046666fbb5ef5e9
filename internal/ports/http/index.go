package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/cratery/cratery/internal/platform/nethttp"
)

// registryConfig is the sparse registry protocol's config.json document,
// served at the index's root.
type registryConfig struct {
	DL  string `json:"dl"`
	API string `json:"api"`
}

// Config serves GET /index/config.json: the fixed document package tooling
// fetches once to learn the download and API base URLs.
func (h *Handler) Config(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(registryConfig{
		DL:  h.Options.DownloadURL + "/api/v1/crates/{crate}/{version}/download",
		API: h.Options.APIURL,
	})
}

// IndexEntries serves GET /index/*: the sharded, newline-delimited-JSON file
// for one crate. The wildcard route hands us the full
// remaining path; the crate name is always its last segment, per the
// registry protocol's two/three-level sharding scheme.
func (h *Handler) IndexEntries(c *fiber.Ctx) error {
	path := c.Params("*")

	segments := strings.Split(path, "/")
	name := segments[len(segments)-1]

	if name == "" {
		return nethttp.WithWireError(c, fiber.ErrNotFound)
	}

	entries, err := h.Query.IndexEntries(c.UserContext(), name)
	if err != nil {
		return nethttp.WithWireError(c, err)
	}

	if len(entries) == 0 {
		return c.SendStatus(fiber.StatusNotFound)
	}

	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")

	for _, entry := range entries {
		line, err := entry.MarshalLine()
		if err != nil {
			return nethttp.WithWireError(c, err)
		}

		if _, err := c.Write(line); err != nil {
			return err
		}
	}

	return nil
}
