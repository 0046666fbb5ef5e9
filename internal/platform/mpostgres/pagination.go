package mpostgres

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// ErrInvalidCursor reports a pagination token the server did not mint.
var ErrInvalidCursor = errors.New("invalid pagination cursor")

// Cursor is the opaque pagination token returned by keyset list queries:
// callers hand it back verbatim to resume a listing after the last row they
// saw. The encoding is deliberately not part of the API contract.
type Cursor struct {
	// LastName is the normalized name of the last row the previous page
	// returned; the next page starts strictly after it.
	LastName string `json:"lastName"`
}

// Encode serializes the cursor into its opaque wire form. The zero Cursor
// encodes to the empty string, meaning "start from the beginning".
func (c Cursor) Encode() string {
	if c.LastName == "" {
		return ""
	}

	raw, err := json.Marshal(c)
	if err != nil {
		return ""
	}

	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses an opaque token minted by Encode. The empty string
// decodes to the zero Cursor.
func DecodeCursor(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}

	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, ErrInvalidCursor
	}

	return c, nil
}
