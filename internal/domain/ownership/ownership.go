// Package ownership holds the Owner relation between a Crate and a User
//.
package ownership

import (
	"time"

	"github.com/google/uuid"
)

// Ownership is a single (Crate, User) ownership row.
type Ownership struct {
	CrateID   uuid.UUID `json:"crateId"`
	UserID    uuid.UUID `json:"userId"`
	GrantedAt time.Time `json:"grantedAt"`
}

// PostgreSQLModel represents Ownership in the Metadata DB's relational shape.
type PostgreSQLModel struct {
	CrateID   string
	UserID    string
	GrantedAt time.Time
}

// ToEntity converts a PostgreSQLModel row into an Ownership.
func (m *PostgreSQLModel) ToEntity() *Ownership {
	return &Ownership{
		CrateID:   uuid.MustParse(m.CrateID),
		UserID:    uuid.MustParse(m.UserID),
		GrantedAt: m.GrantedAt,
	}
}

// FromEntity populates a PostgreSQLModel from an Ownership.
func (m *PostgreSQLModel) FromEntity(o *Ownership) {
	*m = PostgreSQLModel{
		CrateID:   o.CrateID.String(),
		UserID:    o.UserID.String(),
		GrantedAt: o.GrantedAt,
	}
}
