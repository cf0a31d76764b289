package dns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderMarshalRoundTrip(t *testing.T) {
	original := Header{
		ID:      0xABCD,
		Flags:   RDFlag,
		QDCount: 1,
	}

	b, err := original.Marshal()
	require.NoError(t, err)
	assert.Len(t, b, HeaderSize)

	off := 0
	parsed, err := ParseHeader(b, &off)
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
	assert.Equal(t, HeaderSize, off)
}

func TestParseHeaderTooShort(t *testing.T) {
	msg := []byte{0x12, 0x34, 0x81, 0x80}
	off := 0
	_, err := ParseHeader(msg, &off)
	assert.Error(t, err)
}

func TestParseHeaderAtOffset(t *testing.T) {
	msg := make([]byte, 5+HeaderSize)
	msg[5], msg[6] = 0xAB, 0xCD

	off := 5
	h, err := ParseHeader(msg, &off)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xABCD), h.ID)
	assert.Equal(t, 5+HeaderSize, off)
}

func TestRewriteID(t *testing.T) {
	h := Header{ID: 0x1111, Flags: RDFlag, QDCount: 1}
	b, err := h.Marshal()
	require.NoError(t, err)

	require.NoError(t, RewriteID(b, 0x2222))

	off := 0
	parsed, err := ParseHeader(b, &off)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x2222), parsed.ID)
}

func TestRewriteIDRejectsShortMessage(t *testing.T) {
	assert.Error(t, RewriteID([]byte{0x01}, 0x2222))
}
