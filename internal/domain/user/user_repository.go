package user

import (
	"context"

	"github.com/google/uuid"
)

// Repository provides persistence operations for User entities.
//
//go:generate mockgen --destination=../../../internal/gen/mock/user/user_mock.go --package=mock . Repository
type Repository interface {
	Create(ctx context.Context, u *User) (*User, error)
	Update(ctx context.Context, id uuid.UUID, u *User) (*User, error)
	Find(ctx context.Context, id uuid.UUID) (*User, error)
	FindByExternalSubject(ctx context.Context, subject string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindAll(ctx context.Context, page, limit int) ([]*User, error)
	Disable(ctx context.Context, id uuid.UUID) error
}
