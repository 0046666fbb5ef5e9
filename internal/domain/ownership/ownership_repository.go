package ownership

import (
	"context"

	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/domain/user"
)

// Repository provides persistence operations for the Owner relation.
//
//go:generate mockgen --destination=../../../internal/gen/mock/ownership/ownership_mock.go --package=mock . Repository
type Repository interface {
	Add(ctx context.Context, crateID, userID uuid.UUID) error
	Remove(ctx context.Context, crateID, userID uuid.UUID) error
	IsOwner(ctx context.Context, crateID, userID uuid.UUID) (bool, error)
	Count(ctx context.Context, crateID uuid.UUID) (int, error)
	ListOwners(ctx context.Context, crateID uuid.UUID) ([]*user.User, error)
}
