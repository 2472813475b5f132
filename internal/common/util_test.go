package common

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString(t *testing.T) {
	s, err := MakeRandHexString(4)
	require.NoError(t, err)
	assert.Len(t, s, 8, "correlation ids are 4 bytes")

	_, err = hex.DecodeString(s)
	assert.NoError(t, err)

	empty, err := MakeRandHexString(0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMakeRandHexString_IsToken(t *testing.T) {
	a, err := MakeRandHexString(32)
	require.NoError(t, err)
	b, err := MakeRandHexString(32)
	require.NoError(t, err)

	assert.True(t, IsHexToken(a))
	assert.NotEqual(t, a, b)
}

func TestGenerateRandByteArray(t *testing.T) {
	key := GenerateRandByteArray(32)
	iv := GenerateRandByteArray(12)

	assert.Len(t, key, 32)
	assert.Len(t, iv, 12)
	assert.NotEqual(t, key[:12], iv)
}

func TestWipeByteArray(t *testing.T) {
	key := []byte{1, 2, 3, 4, 5}
	WipeByteArray(key)
	assert.Equal(t, []byte{0, 0, 0, 0, 0}, key)

	assert.NotPanics(t, func() { WipeByteArray(nil) })
}

func TestIsHexToken(t *testing.T) {
	valid := strings.Repeat("ab", RawTokenHexLength/2)

	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"valid", valid, true},
		{"upper case", strings.ToUpper(valid), true},
		{"short", valid[:RawTokenHexLength-1], false},
		{"long", valid + "a", false},
		{"not hex", "z" + valid[1:], false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsHexToken(tc.in))
		})
	}
}
