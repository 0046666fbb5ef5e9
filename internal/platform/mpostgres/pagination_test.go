package mpostgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token := Cursor{LastName: "widgets"}.Encode()
	require.NotEmpty(t, token)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "widgets", decoded.LastName)
}

func TestZeroCursorEncodesEmpty(t *testing.T) {
	assert.Empty(t, Cursor{}.Encode())

	decoded, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Empty(t, decoded.LastName)
}

func TestDecodeCursorRejectsForeignToken(t *testing.T) {
	_, err := DecodeCursor("not a cursor")
	require.ErrorIs(t, err, ErrInvalidCursor)
}
