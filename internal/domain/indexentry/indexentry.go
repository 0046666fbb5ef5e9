// Package indexentry holds the wire-format projection of a Version written
// into the Index Repository's per-crate JSON-lines files. It is a derived projection, never the source of
// truth — the Metadata DB is authoritative.
package indexentry

import (
	"encoding/json"

	"github.com/cratery/cratery/internal/domain/version"
)

// Dependency is one dependency entry in the wire format, distinct in shape
// from version.Dependency (which is the Metadata DB's richer record).
type Dependency struct {
	Name            string   `json:"name"`
	Req             string   `json:"req"`
	Features        []string `json:"features"`
	Optional        bool     `json:"optional"`
	DefaultFeatures bool     `json:"default_features"`
	Target          *string  `json:"target,omitempty"`
	Kind            string   `json:"kind"`
}

// Entry is a single newline-delimited JSON record in a crate's index file.
type Entry struct {
	Name        string              `json:"name"`
	Vers        string              `json:"vers"`
	Deps        []Dependency        `json:"deps"`
	Cksum       string              `json:"cksum"`
	Features    map[string][]string `json:"features"`
	Yanked      bool                `json:"yanked"`
	Links       *string             `json:"links,omitempty"`
	SchemaVers  int                 `json:"v"`
	RustVersion *string             `json:"rust-version,omitempty"`
}

// FromVersion derives the wire-format Entry for a published Version.
func FromVersion(crateName string, v *version.Version) Entry {
	deps := make([]Dependency, len(v.Dependencies))
	for i, d := range v.Dependencies {
		deps[i] = Dependency{
			Name:            d.Name,
			Req:             d.VersionReq,
			Features:        d.Features,
			Optional:        d.Optional,
			DefaultFeatures: d.DefaultFeatures,
			Kind:            string(d.Kind),
		}
	}

	return Entry{
		Name:       crateName,
		Vers:       v.Semver,
		Deps:       deps,
		Cksum:      v.ContentHash,
		Features:   v.Features,
		Yanked:     v.State == version.StateYanked,
		Links:      v.Links,
		SchemaVers: 2,
	}
}

// MarshalLine renders the Entry as one newline-delimited-JSON line, including
// the trailing newline.
func (e Entry) MarshalLine() ([]byte, error) {
	line, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}

	return append(line, '\n'), nil
}
