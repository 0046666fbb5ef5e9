package version

import (
	"context"

	"github.com/google/uuid"
)

// Repository provides persistence operations for Version entities.
//
//go:generate mockgen --destination=../../../internal/gen/mock/version/version_mock.go --package=mock . Repository
type Repository interface {
	Create(ctx context.Context, v *Version) (*Version, error)
	Update(ctx context.Context, id uuid.UUID, v *Version) (*Version, error)
	Find(ctx context.Context, id uuid.UUID) (*Version, error)
	FindByCrateAndSemver(ctx context.Context, crateID uuid.UUID, semver string) (*Version, error)
	ListByCrate(ctx context.Context, crateID uuid.UUID) ([]*Version, error)
	ListByContentHash(ctx context.Context, contentHash string) ([]*Version, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListOrphaned(ctx context.Context) ([]*Version, error)
}
