package tokens

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCounter_CountIsDeterministic(t *testing.T) {
	c, err := NewCounter("cl100k_base")
	require.NoError(t, err)

	first, err := c.Count("hello world, this is a token counting test")
	require.NoError(t, err)
	require.Greater(t, first, 0)

	for i := 0; i < 5; i++ {
		again, err := c.Count("hello world, this is a token counting test")
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestCounter_EmptyTextCountsZero(t *testing.T) {
	c, err := NewCounter("")
	require.NoError(t, err)

	n, err := c.Count("")
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestCounter_UnknownEncoding(t *testing.T) {
	_, err := NewCounter("not-a-real-encoding")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownEncoding))
}

func TestCounter_EncodeDecodeRoundTrip(t *testing.T) {
	c, err := NewCounter(DefaultEncoding)
	require.NoError(t, err)

	text := "The quick brown fox jumps over the lazy dog."
	ids, err := c.Encode(text)
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	back, err := c.Decode(ids)
	require.NoError(t, err)
	require.Equal(t, text, back)
}
