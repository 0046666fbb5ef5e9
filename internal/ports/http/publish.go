package http

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/cratery/cratery/internal/domain/version"
	"github.com/cratery/cratery/internal/platform/apperr"
	"github.com/cratery/cratery/internal/platform/authn"
	"github.com/cratery/cratery/internal/platform/constant"
	"github.com/cratery/cratery/internal/platform/nethttp"
	"github.com/cratery/cratery/internal/services/command"
)

// maxPublishBodySize bounds the in-memory publish envelope this registry
// accepts, generously sized for source tarballs.
const maxPublishBodySize = 64 << 20

// publishDependency is one entry of a publish envelope's metadata.deps array
//.
type publishDependency struct {
	Name            string   `json:"name"`
	VersionReq      string   `json:"version_req"`
	Features        []string `json:"features"`
	Optional        bool     `json:"optional"`
	DefaultFeatures bool     `json:"default_features"`
	Kind            string   `json:"kind"`
}

// publishMetadata is a publish envelope's metadata JSON document.
type publishMetadata struct {
	Name    string              `json:"name"`
	Vers    string              `json:"vers"`
	Deps    []publishDependency `json:"deps"`
	Features map[string][]string `json:"features"`
	Links   *string             `json:"links,omitempty"`
}

// Publish handles PUT /api/v1/crates/new: decodes the length-prefixed
// metadata+tarball envelope and runs the publish
// pipeline.
func (h *Handler) Publish(c *fiber.Ctx) error {
	principal, ok := authn.PrincipalFromContext(c)
	if !ok {
		return nethttp.WithWireError(c, apperr.ValidateBusinessError(constant.ErrTokenMissing, "Principal"))
	}

	if h.RateLimiter != nil {
		key := principal.User.ID.String()
		if principal.Token != nil {
			key = principal.Token.ID.String()
		}

		allowed, err := h.RateLimiter.Allow(c.UserContext(), key)
		if err != nil {
			return nethttp.WithWireError(c, apperr.ValidateInternalError(err, c.Get("X-Correlation-ID")))
		}

		if !allowed {
			return nethttp.WithWireError(c, apperr.ValidateBusinessError(constant.ErrRateLimited, "Token"))
		}
	}

	body := c.Body()
	if len(body) > maxPublishBodySize {
		return nethttp.WithWireError(c, apperr.ValidationError{Message: "publish envelope exceeds the maximum accepted size"})
	}

	r := bytes.NewReader(body)

	metadata, err := readLengthPrefixedJSON[publishMetadata](r)
	if err != nil {
		return nethttp.WithWireError(c, apperr.ValidationError{Message: "malformed publish envelope metadata: " + err.Error()})
	}

	tarballLen, err := readUint32LE(r)
	if err != nil {
		return nethttp.WithWireError(c, apperr.ValidationError{Message: "malformed publish envelope: missing tarball length"})
	}

	tarball := io.LimitReader(r, int64(tarballLen))

	in := command.PublishInput{
		Name:           metadata.Name,
		Semver:         metadata.Vers,
		Dependencies:   toManifestDependencies(metadata.Deps),
		Features:       metadata.Features,
		Links:          metadata.Links,
		DeclaredLength: int64(tarballLen),
		Tarball:        tarball,
	}

	v, err := h.Command.Publish(c.UserContext(), principal.User.ID, principal, in, h.Resolver)
	if err != nil {
		return nethttp.WithWireError(c, err)
	}

	h.Logger.Infof("published %s@%s (version id %s)", metadata.Name, metadata.Vers, v.ID)

	return c.Status(fiber.StatusOK).JSON(publishResponse{
		Warnings: publishWarnings{},
	})
}

type publishWarnings struct {
	InvalidCategories []string `json:"invalid_categories"`
	InvalidBadges     []string `json:"invalid_badges"`
	Other             []string `json:"other"`
}

type publishResponse struct {
	Warnings publishWarnings `json:"warnings"`
}

func toManifestDependencies(deps []publishDependency) []command.ManifestDependency {
	out := make([]command.ManifestDependency, len(deps))

	for i, d := range deps {
		out[i] = command.ManifestDependency{
			Name:            d.Name,
			VersionReq:      d.VersionReq,
			Optional:        d.Optional,
			DefaultFeatures: d.DefaultFeatures,
			Features:        d.Features,
			Kind:            version.DependencyKind(d.Kind),
		}
	}

	return out
}

func readUint32LE(r io.Reader) (uint32, error) {
	var buf [4]byte

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readLengthPrefixedJSON[T any](r io.Reader) (T, error) {
	var zero T

	n, err := readUint32LE(r)
	if err != nil {
		return zero, err
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return zero, err
	}

	var v T
	if err := json.Unmarshal(buf, &v); err != nil {
		return zero, err
	}

	return v, nil
}
