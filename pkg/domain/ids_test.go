package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "claimreg/pkg/domain-errors"
)

func TestParseAccountID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Empty string", "", true},
		{"Whitespace only", "   ", true},
		{"Leading whitespace", " alice", true},
		{"Null byte injection", "ali\x00ce", true},
		{"Unicode zero-width space", "ali\u200Bce", true},
		{"Oversized input", strings.Repeat("a", MaxAccountIDLength+1), true},
		{"Invalid UTF-8", string([]byte{0xff, 0xfe}), true},

		{"Plain name", "alice", false},
		{"SS58-like address", "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY", false},
		{"Max length", strings.Repeat("a", MaxAccountIDLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAccountID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestParseFingerprint(t *testing.T) {
	t.Run("decodes hex with and without prefix", func(t *testing.T) {
		a, err := ParseFingerprint("616263")
		require.NoError(t, err)
		b, err := ParseFingerprint("0x616263")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Equal(t, []byte("abc"), a.Bytes())
		assert.Equal(t, "616263", a.String())
	})

	t.Run("uppercase hex decodes to the same bytes", func(t *testing.T) {
		f, err := ParseFingerprint("0XDEADBEEF")
		require.NoError(t, err)
		assert.Equal(t, "deadbeef", f.String())
	})

	t.Run("keeps arbitrary bytes", func(t *testing.T) {
		raw := []byte{0x00, 0xff, 0x10}
		f := FingerprintFromBytes(raw)
		parsed, err := ParseFingerprint(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, parsed)
	})

	for _, input := range []string{"", "0x", "xyz", "abc", "0x0xab", "0X0xab", "0x0Xab", strings.Repeat("00", MaxFingerprintBytes+1)} {
		t.Run("rejects "+input[:min(len(input), 8)], func(t *testing.T) {
			_, err := ParseFingerprint(input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestFingerprintJSON(t *testing.T) {
	type wrapper struct {
		Fingerprint Fingerprint `json:"fingerprint"`
	}
	raw := FingerprintFromBytes([]byte{0xde, 0xad, 0x00})

	body, err := json.Marshal(wrapper{Fingerprint: raw})
	require.NoError(t, err)
	assert.JSONEq(t, `{"fingerprint":"dead00"}`, string(body))

	var decoded wrapper
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, raw, decoded.Fingerprint)

	require.Error(t, json.Unmarshal([]byte(`{"fingerprint":"zz"}`), &decoded))
}
