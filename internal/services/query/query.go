// Package query implements the Package Service's read surface: a
// struct-of-repositories use case with one exported method per read
// operation.
package query

import (
	"context"

	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/domain/auth"
	"github.com/cratery/cratery/internal/domain/crate"
	"github.com/cratery/cratery/internal/domain/indexentry"
	"github.com/cratery/cratery/internal/domain/ownership"
	"github.com/cratery/cratery/internal/domain/user"
	"github.com/cratery/cratery/internal/domain/version"
	"github.com/cratery/cratery/internal/platform/apperr"
	"github.com/cratery/cratery/internal/platform/constant"
	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/platform/mpostgres"
	"github.com/cratery/cratery/internal/ports/index"
)

// Service implements the Package Service's read-only operations.
type Service struct {
	Crates   crate.Repository
	Versions version.Repository
	Owners   ownership.Repository
	Index    index.Repository
	Logger   mlog.Logger
}

// NewService constructs a query Service.
func NewService(crates crate.Repository, versions version.Repository, owners ownership.Repository, idx index.Repository, logger mlog.Logger) *Service {
	if logger == nil {
		logger = &mlog.GoLogger{}
	}

	return &Service{Crates: crates, Versions: versions, Owners: owners, Index: idx, Logger: logger}
}

// CrateSummary is one row of a Search result: a Crate plus the subset of
// fields package tooling's search endpoint expects alongside it.
type CrateSummary struct {
	Crate       *crate.Crate
	MaxVersion  string
	Description string
}

// Search returns crates matching query by prefix/substring over name,
// paginated by an opaque cursor: cursor is "" for the first page, and the
// returned next token is "" once the listing is exhausted. Restricted
// crates — currently, trusted re-exports — are visible to any authenticated
// principal; visibility narrowing beyond that is a future per-crate ACL
// this core doesn't yet model.
func (s *Service) Search(ctx context.Context, q, cursor string, limit int) ([]*CrateSummary, string, error) {
	after, err := mpostgres.DecodeCursor(cursor)
	if err != nil {
		return nil, "", apperr.ValidateBusinessError(constant.ErrBadRequest, "Cursor")
	}

	if limit <= 0 {
		limit = 10
	}

	crates, err := s.Crates.Search(ctx, q, after.LastName, limit)
	if err != nil {
		return nil, "", apperr.ValidateBusinessError(constant.ErrInternalServer, "Crate")
	}

	summaries := make([]*CrateSummary, 0, len(crates))

	for _, c := range crates {
		versions, err := s.Versions.ListByCrate(ctx, c.ID)
		if err != nil {
			s.Logger.Errorf("query: list versions for crate %s: %v", c.ID, err)
			continue
		}

		summaries = append(summaries, &CrateSummary{Crate: c, MaxVersion: latestVersion(versions)})
	}

	var next string
	if len(crates) == limit {
		next = mpostgres.Cursor{LastName: crates[len(crates)-1].NormalizedName}.Encode()
	}

	return summaries, next, nil
}

func latestVersion(versions []*version.Version) string {
	if len(versions) == 0 {
		return ""
	}

	return versions[len(versions)-1].Semver
}

// GetCrate resolves a crate by its wire name, for the admin UI and the
// owners/index endpoints. Returns apperr.NotFoundError if it doesn't exist.
func (s *Service) GetCrate(ctx context.Context, name string) (*crate.Crate, error) {
	c, err := s.Crates.FindByNormalizedName(ctx, crate.NormalizeName(name))
	if err != nil {
		return nil, apperr.ValidateBusinessError(constant.ErrInternalServer, "Crate")
	}

	if c == nil {
		return nil, apperr.ValidateBusinessError(constant.ErrPackageNotFound, "Crate", name)
	}

	return c, nil
}

// ListVersions returns every Version of the named crate in upload order.
func (s *Service) ListVersions(ctx context.Context, name string) (*crate.Crate, []*version.Version, error) {
	c, err := s.GetCrate(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	versions, err := s.Versions.ListByCrate(ctx, c.ID)
	if err != nil {
		return nil, nil, apperr.ValidateBusinessError(constant.ErrInternalServer, "Version")
	}

	return c, versions, nil
}

// IndexEntries returns the Index Repository's current on-disk view for the
// named crate — what /index/{shard}/{name} serves — falling back to an
// empty slice for a crate with no published version yet, matching
// index.Repository.Read's own contract.
func (s *Service) IndexEntries(ctx context.Context, name string) ([]indexentry.Entry, error) {
	return s.Index.Read(ctx, crate.NormalizeName(name))
}

// ListOwners returns the Users who own the named crate.
func (s *Service) ListOwners(ctx context.Context, name string) ([]*user.User, error) {
	c, err := s.GetCrate(ctx, name)
	if err != nil {
		return nil, err
	}

	owners, err := s.Owners.ListOwners(ctx, c.ID)
	if err != nil {
		return nil, apperr.ValidateBusinessError(constant.ErrInternalServer, "Ownership")
	}

	return owners, nil
}

// IsOwner reports whether userID owns the named crate, for Authorize calls
// that need it before a Write-Package decision.
func (s *Service) IsOwner(ctx context.Context, crateName string, userID uuid.UUID) (bool, error) {
	c, err := s.Crates.FindByNormalizedName(ctx, crate.NormalizeName(crateName))
	if err != nil {
		return false, apperr.ValidateBusinessError(constant.ErrInternalServer, "Crate")
	}

	if c == nil {
		return false, nil
	}

	return s.Owners.IsOwner(ctx, c.ID, userID)
}

// Resource builds the auth.Resource for an operation against crateName,
// resolving its Restricted flag from whether it's a trusted re-export.
func (s *Service) Resource(ctx context.Context, crateName string) auth.Resource {
	c, err := s.Crates.FindByNormalizedName(ctx, crate.NormalizeName(crateName))
	if err != nil || c == nil {
		return auth.Resource{CrateName: crateName}
	}

	return auth.Resource{CrateName: crateName, Restricted: c.IsTrustedReExport()}
}

// FindVersion resolves a (crate, semver) pair for download/yank/unyank
// handlers that need the Version row, not just the index projection.
func (s *Service) FindVersion(ctx context.Context, crateName, semver string) (*crate.Crate, *version.Version, error) {
	c, err := s.GetCrate(ctx, crateName)
	if err != nil {
		return nil, nil, err
	}

	v, err := s.Versions.FindByCrateAndSemver(ctx, c.ID, semver)
	if err != nil {
		return nil, nil, apperr.ValidateBusinessError(constant.ErrInternalServer, "Version")
	}

	if v == nil {
		return nil, nil, apperr.ValidateBusinessError(constant.ErrVersionNotFound, "Version", semver)
	}

	return c, v, nil
}
