package identity_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-fin/custodia/internal/identity"
)

func TestParseRoundTrip(t *testing.T) {
	id, err := identity.Parse("0x00112233445566778899aabbccddeeff00112233")
	require.NoError(t, err)
	require.Equal(t, "0x00112233445566778899aabbccddeeff00112233", id.String())
	require.False(t, id.IsZero())
}

func TestParseRejectsBadInput(t *testing.T) {
	for _, input := range []string{"", "0x1234", "0xzz112233445566778899aabbccddeeff00112233", "00112233445566778899aabbccddeeff0011223344"} {
		_, err := identity.Parse(input)
		require.Error(t, err, "input %q", input)
	}
}

func TestParseAcceptsUnprefixedHex(t *testing.T) {
	id, err := identity.Parse("00112233445566778899aabbccddeeff00112233")
	require.NoError(t, err)
	require.Equal(t, "0x00112233445566778899aabbccddeeff00112233", id.String())
}

func TestZeroIdentity(t *testing.T) {
	require.True(t, identity.Zero.IsZero())
	require.Equal(t, "0x0000000000000000000000000000000000000000", identity.Zero.String())
}

func TestJSONRoundTrip(t *testing.T) {
	id := identity.MustParse("0xffeeddccbbaa99887766554433221100ffeeddcc")
	data, err := json.Marshal(id)
	require.NoError(t, err)

	var decoded identity.Identity
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, id, decoded)
}
