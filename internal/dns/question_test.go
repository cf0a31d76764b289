package dns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionMarshalRoundTrip(t *testing.T) {
	original := Question{
		Name:  "example.com",
		Type:  uint16(TypeA),
		Class: uint16(ClassIN),
	}

	b, err := original.Marshal()
	require.NoError(t, err)

	off := 0
	parsed, err := ParseQuestion(b, &off)
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
	assert.Equal(t, len(b), off)
}

func TestQuestionMarshalRejectsInvalidName(t *testing.T) {
	longLabel := make([]byte, 70)
	for i := range longLabel {
		longLabel[i] = 'a'
	}
	q := Question{Name: string(longLabel) + ".com", Type: uint16(TypeA), Class: uint16(ClassIN)}

	_, err := q.Marshal()
	assert.Error(t, err)
}

func TestParseQuestionNormalizesCase(t *testing.T) {
	msg := []byte{
		3, 'W', 'W', 'W',
		7, 'E', 'x', 'a', 'm', 'p', 'l', 'e',
		3, 'C', 'O', 'M',
		0,
		0, 1, // type A
		0, 1, // class IN
	}

	off := 0
	q, err := ParseQuestion(msg, &off)
	require.NoError(t, err)
	assert.Equal(t, "www.example.com", q.Name)
	assert.Equal(t, len(msg), off)
}

func TestParseQuestionTruncated(t *testing.T) {
	msg := []byte{7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0}
	off := 0
	_, err := ParseQuestion(msg, &off)
	assert.Error(t, err)
}
