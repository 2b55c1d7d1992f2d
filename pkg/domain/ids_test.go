package domain

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "aidchain/pkg/domain-errors"
)

// TestParseAddress_Invariants validates the parsing invariant:
// "addresses are 0x-prefixed, 20-byte, non-zero"
func TestParseAddress_Invariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"missing prefix", "71C7656EC7ab88b098defB751B7401B5f6d8976F", true},
		{"short", "0x71C7656EC7ab88b098defB751B7401B5f6d89", true},
		{"non hex", "0xZZC7656EC7ab88b098defB751B7401B5f6d8976F", true},
		{"zero address", "0x0000000000000000000000000000000000000000", true},
		{"oversized", "0x" + strings.Repeat("a", 100), true},
		{"checksummed", "0x71C7656EC7ab88b098defB751B7401B5f6d8976F", false},
		{"lowercase", "0x71c7656ec7ab88b098defb751b7401b5f6d8976f", false},
		{"surrounding spaces", "  0x71c7656ec7ab88b098defb751b7401b5f6d8976f ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := ParseAddress(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, common.HexToAddress(strings.TrimSpace(tt.input)), addr)
		})
	}
}

// TestParseAddress_CaseInsensitiveIdentity verifies that the same account in different
// letter cases parses to one identity, so custodian checks never depend on casing.
func TestParseAddress_CaseInsensitiveIdentity(t *testing.T) {
	lower, err := ParseAddress("0x71c7656ec7ab88b098defb751b7401b5f6d8976f")
	require.NoError(t, err)
	mixed, err := ParseAddress("0x71C7656EC7ab88b098defB751B7401B5f6d8976F")
	require.NoError(t, err)
	assert.Equal(t, lower, mixed)
}

func TestParseUnitIDs(t *testing.T) {
	t.Run("keeps order and duplicates", func(t *testing.T) {
		ids, err := ParseUnitIDs("3, 0,3,1")
		require.NoError(t, err)
		assert.Equal(t, []UnitID{3, 0, 3, 1}, ids)
	})

	t.Run("rejects negative and garbage", func(t *testing.T) {
		for _, in := range []string{"", "-1", "1,,2", "a", "18446744073709551616"} {
			_, err := ParseUnitIDs(in)
			require.Error(t, err, in)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), in)
		}
	})
}

func TestParseWei(t *testing.T) {
	t.Run("accepts positive integers", func(t *testing.T) {
		v, err := ParseWei("400000000000000000")
		require.NoError(t, err)
		assert.Equal(t, MilliEther(400), v)
	})

	t.Run("rejects zero, negative, decimals and overflow", func(t *testing.T) {
		for _, in := range []string{"", "0", "-5", "0.4", "1e18", strings.Repeat("9", 79)} {
			_, err := ParseWei(in)
			require.Error(t, err, in)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), in)
		}
	})
}

func TestFormatEther(t *testing.T) {
	assert.Equal(t, "0.32", FormatEther(MilliEther(320)))
	assert.Equal(t, "1.6", FormatEther(MilliEther(1600)))
	assert.Equal(t, "0.08", FormatEther(MilliEther(80)))
	assert.Equal(t, "2", FormatEther(MilliEther(2000)))
	assert.Equal(t, "0", FormatEther(nil))
}
