// Package version holds the Version aggregate: a (crate, semver) pair with
// its docs-build state machine.
package version

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a Version.
type State string

const (
	StateActive State = "active"
	StateYanked State = "yanked"
)

// DocsState is the documentation-build state of a Version.
type DocsState string

const (
	DocsPending   DocsState = "pending"
	DocsRunning   DocsState = "running"
	DocsSucceeded DocsState = "succeeded"
	DocsFailed    DocsState = "failed"
)

// DependencyKind distinguishes normal, dev, and build dependencies.
type DependencyKind string

const (
	DependencyNormal DependencyKind = "normal"
	DependencyDev    DependencyKind = "dev"
	DependencyBuild  DependencyKind = "build"
)

// Dependency is one entry in a Version's declared dependency list.
type Dependency struct {
	Name            string         `json:"name"`
	VersionReq      string         `json:"req"`
	Optional        bool           `json:"optional"`
	DefaultFeatures bool           `json:"defaultFeatures"`
	Features        []string       `json:"features,omitempty"`
	Kind            DependencyKind `json:"kind"`
}

// Version is a published (crate, semver) pair.
type Version struct {
	ID                uuid.UUID           `json:"id"`
	CrateID           uuid.UUID           `json:"crateId"`
	Semver            string              `json:"vers"`
	UploadedAt        time.Time           `json:"uploadedAt"`
	UploaderID        uuid.UUID           `json:"uploaderId"`
	State             State               `json:"state"`
	ContentHash       string              `json:"cksum"`
	SizeBytes         int64               `json:"sizeBytes"`
	Dependencies      []Dependency        `json:"deps"`
	Features          map[string][]string `json:"features"`
	Links             *string             `json:"links,omitempty"`
	BinaryTargets     []string            `json:"binaryTargets,omitempty"`
	DocsState         DocsState           `json:"docsState"`
	DocsFailureReason *string             `json:"docsFailureReason,omitempty"`
}

// PostgreSQLModel represents Version in the Metadata DB's relational shape;
// the deps/features/binary-targets collections are stored as JSONB columns.
type PostgreSQLModel struct {
	ID                string
	CrateID           string
	Semver            string
	UploadedAt        time.Time
	UploaderID        string
	State             string
	ContentHash       string
	SizeBytes         int64
	Dependencies      []byte
	Features          []byte
	Links             sql.NullString
	BinaryTargets     []byte
	DocsState         string
	DocsFailureReason sql.NullString
}

// ToEntity converts a PostgreSQLModel row into a Version.
func (m *PostgreSQLModel) ToEntity() (*Version, error) {
	v := &Version{
		ID:          uuid.MustParse(m.ID),
		CrateID:     uuid.MustParse(m.CrateID),
		Semver:      m.Semver,
		UploadedAt:  m.UploadedAt,
		UploaderID:  uuid.MustParse(m.UploaderID),
		State:       State(m.State),
		ContentHash: m.ContentHash,
		SizeBytes:   m.SizeBytes,
		DocsState:   DocsState(m.DocsState),
	}

	if len(m.Dependencies) > 0 {
		if err := json.Unmarshal(m.Dependencies, &v.Dependencies); err != nil {
			return nil, err
		}
	}

	if len(m.Features) > 0 {
		if err := json.Unmarshal(m.Features, &v.Features); err != nil {
			return nil, err
		}
	}

	if len(m.BinaryTargets) > 0 {
		if err := json.Unmarshal(m.BinaryTargets, &v.BinaryTargets); err != nil {
			return nil, err
		}
	}

	if m.Links.Valid {
		links := m.Links.String
		v.Links = &links
	}

	if m.DocsFailureReason.Valid {
		reason := m.DocsFailureReason.String
		v.DocsFailureReason = &reason
	}

	return v, nil
}

// FromEntity populates a PostgreSQLModel from a Version, assigning a fresh ID
// when the Version hasn't been persisted yet.
func (m *PostgreSQLModel) FromEntity(v *Version) error {
	id := v.ID
	if id == uuid.Nil {
		id = uuid.Must(uuid.NewV7())
	}

	deps, err := json.Marshal(v.Dependencies)
	if err != nil {
		return err
	}

	features, err := json.Marshal(v.Features)
	if err != nil {
		return err
	}

	targets, err := json.Marshal(v.BinaryTargets)
	if err != nil {
		return err
	}

	*m = PostgreSQLModel{
		ID:            id.String(),
		CrateID:       v.CrateID.String(),
		Semver:        v.Semver,
		UploadedAt:    v.UploadedAt,
		UploaderID:    v.UploaderID.String(),
		State:         string(v.State),
		ContentHash:   v.ContentHash,
		SizeBytes:     v.SizeBytes,
		Dependencies:  deps,
		Features:      features,
		BinaryTargets: targets,
		DocsState:     string(v.DocsState),
	}

	if v.Links != nil {
		m.Links = sql.NullString{String: *v.Links, Valid: true}
	}

	if v.DocsFailureReason != nil {
		m.DocsFailureReason = sql.NullString{String: *v.DocsFailureReason, Valid: true}
	}

	return nil
}
