// Package user holds the User aggregate: the stable identity behind every
// token and every package ownership row (entity + Postgres model +
// converters living side by side).
package user

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Role is the coarse-grained privilege level of a User.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is a registered principal: a human via the external identity
// handshake, or one provisioned directly by an admin.
type User struct {
	ID              uuid.UUID `json:"id"`
	DisplayName     string    `json:"displayName"`
	Email           string    `json:"email"`
	Role            Role      `json:"role"`
	ExternalSubject *string   `json:"externalSubject,omitempty"`
	Disabled        bool      `json:"disabled"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// CreateInput encapsulates the fields accepted when provisioning a User
// directly (admin path); the external-auth path builds a User without this
// struct, from the identity provider's claims.
type CreateInput struct {
	DisplayName string `json:"displayName" validate:"required,max=256"`
	Email       string `json:"email" validate:"required,email,max=256"`
	Role        Role   `json:"role" validate:"required,oneof=admin user"`
}

// PostgreSQLModel represents User in the Metadata DB's relational shape.
type PostgreSQLModel struct {
	ID              string
	DisplayName     string
	Email           string
	Role            string
	ExternalSubject sql.NullString
	Disabled        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ToEntity converts a PostgreSQLModel row into a User.
func (m *PostgreSQLModel) ToEntity() *User {
	u := &User{
		ID:          uuid.MustParse(m.ID),
		DisplayName: m.DisplayName,
		Email:       m.Email,
		Role:        Role(m.Role),
		Disabled:    m.Disabled,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}

	if m.ExternalSubject.Valid {
		subject := m.ExternalSubject.String
		u.ExternalSubject = &subject
	}

	return u
}

// FromEntity populates a PostgreSQLModel from a User, assigning a fresh ID
// when the User hasn't been persisted yet.
func (m *PostgreSQLModel) FromEntity(u *User) {
	id := u.ID
	if id == uuid.Nil {
		id = uuid.Must(uuid.NewV7())
	}

	*m = PostgreSQLModel{
		ID:          id.String(),
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Role:        string(u.Role),
		Disabled:    u.Disabled,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}

	if u.ExternalSubject != nil {
		m.ExternalSubject = sql.NullString{String: *u.ExternalSubject, Valid: true}
	}
}
