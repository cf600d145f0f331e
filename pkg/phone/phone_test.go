package phone

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rwanda(t *testing.T) Normalizer {
	t.Helper()
	n, err := NewNormalizer("250", 9)
	require.NoError(t, err)
	return n
}

func TestForSMS(t *testing.T) {
	t.Parallel()
	n := rwanda(t)
	cases := map[string]string{
		"250788123456":     "+250788123456",
		"0788123456":       "+250788123456",
		"788123456":        "+250788123456",
		"+250788123456":    "+250788123456",
		"00250788123456":   "+250788123456",
		"+250 788-123-456": "+250788123456",
		"(078) 812 3456":   "+250788123456",
		"+254712345678":    "+254712345678",
	}
	for in, want := range cases {
		got, err := n.ForSMS(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestForWhatsApp(t *testing.T) {
	t.Parallel()
	n := rwanda(t)
	cases := map[string]string{
		"250788123456":  "250788123456",
		"0788123456":    "250788123456",
		"788123456":     "250788123456",
		"+250788123456": "250788123456",
	}
	for in, want := range cases {
		got, err := n.ForWhatsApp(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestInvalidNumbers(t *testing.T) {
	t.Parallel()
	n := rwanda(t)
	for _, in := range []string{"", "   ", "12345", "07881234567", "+25078812345", "abc788123456", "+1234", "2507881234567",
		"٠٧٨٨١٢٣٤٥٦", "+٢٥٠٧٨٨١٢٣٤٥٦", "０７８８１２３４５６"} {
		_, err := n.ForSMS(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrInvalidNumber), in)
	}
}

func TestNewNormalizerValidation(t *testing.T) {
	t.Parallel()
	_, err := NewNormalizer("", 9)
	require.Error(t, err)
	_, err = NewNormalizer("25a", 9)
	require.Error(t, err)
	_, err = NewNormalizer("250", 0)
	require.Error(t, err)

	n, err := NewNormalizer("+250", 9)
	require.NoError(t, err)
	assert.Equal(t, "250", n.CountryCode)
}
