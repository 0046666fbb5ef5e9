package token

import (
	"context"

	"github.com/google/uuid"
)

// Repository provides persistence operations for Token entities.
//
//go:generate mockgen --destination=../../../internal/gen/mock/token/token_mock.go --package=mock . Repository
type Repository interface {
	Create(ctx context.Context, t *Token) (*Token, error)
	FindByPrefix(ctx context.Context, prefix string) (*Token, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Token, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
	Revoke(ctx context.Context, id uuid.UUID) error
}
