// Package crate holds the Crate aggregate.
package crate

import (
	"database/sql"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// NormalizeName lower-cases a crate name and folds '-'/'_' to a single
// separator for uniqueness comparisons.
func NormalizeName(name string) string {
	lowered := strings.ToLower(name)

	return strings.ReplaceAll(lowered, "_", "-")
}

// ValidName reports whether name is a well-formed crate name: ASCII,
// alphanumeric with '-'/'_' separators, starting with an alphanumeric.
func ValidName(name string) bool {
	return name != "" && len(name) <= 128 && namePattern.MatchString(name)
}

// Crate is the top-level named package a set of Versions belongs to.
type Crate struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	NormalizedName     string    `json:"-"`
	DeprecationNotice  *string   `json:"deprecationNotice,omitempty"`
	TargetRegistry     *string   `json:"targetRegistry,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// IsTrustedReExport reports whether this crate is configured to re-export
// versions from an upstream registry rather than accept direct publishes.
func (c *Crate) IsTrustedReExport() bool {
	return c.TargetRegistry != nil && *c.TargetRegistry != ""
}

// CreateInput is accepted implicitly on first publish.
type CreateInput struct {
	Name           string  `json:"name" validate:"required,max=128"`
	TargetRegistry *string `json:"targetRegistry,omitempty" validate:"omitempty,max=256"`
}

// PostgreSQLModel represents Crate in the Metadata DB's relational shape.
type PostgreSQLModel struct {
	ID                string
	Name              string
	NormalizedName    string
	DeprecationNotice sql.NullString
	TargetRegistry    sql.NullString
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ToEntity converts a PostgreSQLModel row into a Crate.
func (m *PostgreSQLModel) ToEntity() *Crate {
	c := &Crate{
		ID:             uuid.MustParse(m.ID),
		Name:           m.Name,
		NormalizedName: m.NormalizedName,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}

	if m.DeprecationNotice.Valid {
		notice := m.DeprecationNotice.String
		c.DeprecationNotice = &notice
	}

	if m.TargetRegistry.Valid {
		registry := m.TargetRegistry.String
		c.TargetRegistry = &registry
	}

	return c
}

// FromEntity populates a PostgreSQLModel from a Crate, assigning a fresh ID
// when the Crate hasn't been persisted yet.
func (m *PostgreSQLModel) FromEntity(c *Crate) {
	id := c.ID
	if id == uuid.Nil {
		id = uuid.Must(uuid.NewV7())
	}

	*m = PostgreSQLModel{
		ID:             id.String(),
		Name:           c.Name,
		NormalizedName: NormalizeName(c.Name),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}

	if c.DeprecationNotice != nil {
		m.DeprecationNotice = sql.NullString{String: *c.DeprecationNotice, Valid: true}
	}

	if c.TargetRegistry != nil {
		m.TargetRegistry = sql.NullString{String: *c.TargetRegistry, Valid: true}
	}
}
