package qr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/qr-credential-service/internal/domain"
)

func TestParse_JSONEnvelope(t *testing.T) {
	result := Parse(`{"token":"QR-ABC123","type":"pass","timestamp":1700000000}`)

	require.True(t, result.Valid)
	assert.Equal(t, "QR-ABC123", result.Token)
	assert.Equal(t, domain.QRKindPass, result.Kind)
}

func TestParse_JSONEnvelopeUnknownKindDefaultsToTicket(t *testing.T) {
	result := Parse(`{"token":"QR-ABC123","type":"hashpass_qr"}`)

	require.True(t, result.Valid)
	assert.Equal(t, "QR-ABC123", result.Token)
	assert.Equal(t, domain.QRKindTicket, result.Kind)
}

func TestParse_JSONWithoutTokenFallsThrough(t *testing.T) {
	// Valid JSON but no token field; long enough for the raw heuristic.
	result := Parse(`{"type":"pass","payload":"x"}`)

	require.True(t, result.Valid)
	assert.Equal(t, `{"type":"pass","payload":"x"}`, result.Token)
}

func TestParse_URLTokenParameter(t *testing.T) {
	result := Parse("https://x/y?token=QR-ABC123")

	require.True(t, result.Valid)
	assert.Equal(t, "QR-ABC123", result.Token)
	assert.Equal(t, domain.QRKindTicket, result.Kind)
}

func TestParse_URLWithEmptyTokenRejected(t *testing.T) {
	result := Parse("https://x/y?token=")

	// Falls through to the length heuristic and is still accepted as raw.
	require.True(t, result.Valid)
	assert.Equal(t, "https://x/y?token=", result.Token)
}

func TestParse_LiteralPrefix(t *testing.T) {
	result := Parse("QR-ABC123")

	require.True(t, result.Valid)
	assert.Equal(t, "QR-ABC123", result.Token)
}

func TestParse_RawTokenHeuristic(t *testing.T) {
	result := Parse("abcdefghijk")

	require.True(t, result.Valid)
	assert.Equal(t, "abcdefghijk", result.Token)
}

func TestParse_RejectsShortInput(t *testing.T) {
	assert.False(t, Parse("short").Valid)
	assert.False(t, Parse("abcdefghij").Valid) // exactly at the floor
}

func TestParse_RejectsEmptyInput(t *testing.T) {
	assert.False(t, Parse("").Valid)
	assert.False(t, Parse("   ").Valid)
}

func TestParse_NeverPanicsOnGarbage(t *testing.T) {
	inputs := []string{
		"{", "}", `{"token":}`, "://bad-url?token=x",
		string([]byte{0xff, 0xfe, 0xfd}), "\x00\x00",
	}
	for _, input := range inputs {
		assert.NotPanics(t, func() { Parse(input) }, "input %q", input)
	}
}
