package crate

import (
	"context"

	"github.com/google/uuid"
)

// Repository provides persistence operations for Crate entities.
//
//go:generate mockgen --destination=../../../internal/gen/mock/crate/crate_mock.go --package=mock . Repository
type Repository interface {
	Create(ctx context.Context, c *Crate) (*Crate, error)
	Update(ctx context.Context, id uuid.UUID, c *Crate) (*Crate, error)
	Find(ctx context.Context, id uuid.UUID) (*Crate, error)
	FindByNormalizedName(ctx context.Context, normalizedName string) (*Crate, error)
	// Search returns up to limit Crates matching query, ordered by
	// normalized name, starting strictly after afterName ("" starts from
	// the beginning).
	Search(ctx context.Context, query string, afterName string, limit int) ([]*Crate, error)
}
