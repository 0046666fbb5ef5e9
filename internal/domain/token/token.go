// Package token holds the Token aggregate used by the Bearer-token ingress
// mode.
package token

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Capability restricts what a Token's bearer may do, independent of the
// owning User's Role.
type Capability string

const (
	CanRead  Capability = "can_read"
	CanWrite Capability = "can_write"
	CanAdmin Capability = "can_admin"
)

// Token is an opaque bearer credential scoped to a User, an optional set of
// crate names, and a capability set.
type Token struct {
	ID           uuid.UUID    `json:"id"`
	UserID       uuid.UUID    `json:"userId"`
	Name         string       `json:"name"`
	SecretPrefix string       `json:"-"`
	SecretHash   string       `json:"-"`
	Capabilities []Capability `json:"capabilities"`
	CrateScope   []string     `json:"crateScope,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	LastUsedAt   *time.Time   `json:"lastUsedAt,omitempty"`
	RevokedAt    *time.Time   `json:"revokedAt,omitempty"`
}

// Has reports whether the token carries the given capability.
func (t *Token) Has(c Capability) bool {
	for _, have := range t.Capabilities {
		if have == c {
			return true
		}
	}

	return false
}

// ScopedTo reports whether the token's crate scope (if any) permits the
// given crate name. An empty scope means unrestricted.
func (t *Token) ScopedTo(crateName string) bool {
	if len(t.CrateScope) == 0 {
		return true
	}

	for _, name := range t.CrateScope {
		if name == crateName {
			return true
		}
	}

	return false
}

// CreateInput is accepted when a User mints a new Token.
type CreateInput struct {
	Name         string       `json:"name" validate:"required,max=256"`
	Capabilities []Capability `json:"capabilities" validate:"required,min=1,dive,oneof=can_read can_write can_admin"`
	CrateScope   []string     `json:"crateScope,omitempty"`
}

// CreateOutput is returned exactly once, at creation, carrying the clear
// secret. It is never recoverable afterward.
type CreateOutput struct {
	Token       *Token `json:"token"`
	ClearSecret string `json:"secret"`
}

// PostgreSQLModel represents Token in the Metadata DB's relational shape.
type PostgreSQLModel struct {
	ID           string
	UserID       string
	Name         string
	SecretPrefix string
	SecretHash   string
	Capabilities pq.StringArray
	CrateScope   pq.StringArray
	CreatedAt    time.Time
	LastUsedAt   sql.NullTime
	RevokedAt    sql.NullTime
}

// ToEntity converts a PostgreSQLModel row into a Token.
func (m *PostgreSQLModel) ToEntity() *Token {
	caps := make([]Capability, len(m.Capabilities))
	for i, c := range m.Capabilities {
		caps[i] = Capability(c)
	}

	t := &Token{
		ID:           uuid.MustParse(m.ID),
		UserID:       uuid.MustParse(m.UserID),
		Name:         m.Name,
		SecretPrefix: m.SecretPrefix,
		SecretHash:   m.SecretHash,
		Capabilities: caps,
		CrateScope:   m.CrateScope,
		CreatedAt:    m.CreatedAt,
	}

	if m.LastUsedAt.Valid {
		lastUsed := m.LastUsedAt.Time
		t.LastUsedAt = &lastUsed
	}

	if m.RevokedAt.Valid {
		revoked := m.RevokedAt.Time
		t.RevokedAt = &revoked
	}

	return t
}

// FromEntity populates a PostgreSQLModel from a Token, assigning a fresh ID
// when the Token hasn't been persisted yet.
func (m *PostgreSQLModel) FromEntity(t *Token) {
	id := t.ID
	if id == uuid.Nil {
		id = uuid.Must(uuid.NewV7())
	}

	caps := make(pq.StringArray, len(t.Capabilities))
	for i, c := range t.Capabilities {
		caps[i] = string(c)
	}

	*m = PostgreSQLModel{
		ID:           id.String(),
		UserID:       t.UserID.String(),
		Name:         t.Name,
		SecretPrefix: t.SecretPrefix,
		SecretHash:   t.SecretHash,
		Capabilities: caps,
		CrateScope:   pq.StringArray(t.CrateScope),
		CreatedAt:    t.CreatedAt,
	}

	if t.LastUsedAt != nil {
		m.LastUsedAt = sql.NullTime{Time: *t.LastUsedAt, Valid: true}
	}

	if t.RevokedAt != nil {
		m.RevokedAt = sql.NullTime{Time: *t.RevokedAt, Valid: true}
	}
}
