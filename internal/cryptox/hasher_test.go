package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap parameters keep the suite fast; Verify reads them from the hash.
var testParams = Params{Time: 1, MemoryKiB: 64, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestHasher_HashFormat(t *testing.T) {
	h := NewHasher(testParams)

	encoded, err := h.Hash("token")
	require.NoError(t, err)

	parts := strings.Split(encoded, "$")
	require.Len(t, parts, 6)
	assert.Equal(t, "argon2id", parts[1])
	assert.Equal(t, "v=19", parts[2])
	assert.Equal(t, "m=64,t=1,p=1", parts[3])
}

func TestHasher_DefaultParamsEncoded(t *testing.T) {
	if testing.Short() {
		t.Skip("default argon2 cost")
	}
	h := NewHasher(DefaultParams)

	encoded, err := h.Hash("token")
	require.NoError(t, err)
	assert.Contains(t, encoded, "$m=65536,t=3,p=4$")
	assert.True(t, h.Verify("token", encoded))
}

func TestHasher_Verify(t *testing.T) {
	h := NewHasher(testParams)
	encoded, err := h.Hash("correct")
	require.NoError(t, err)

	assert.True(t, h.Verify("correct", encoded))
	assert.False(t, h.Verify("wrong", encoded))
}

func TestHasher_SaltedHashesDiffer(t *testing.T) {
	h := NewHasher(testParams)
	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, h.Verify("same", a))
	assert.True(t, h.Verify("same", b))
}

func TestHasher_VerifyUsesStoredParams(t *testing.T) {
	other := NewHasher(Params{Time: 2, MemoryKiB: 128, Threads: 2, KeyLen: 16, SaltLen: 8})
	encoded, err := other.Hash("x")
	require.NoError(t, err)

	assert.True(t, NewHasher(testParams).Verify("x", encoded))
}

func TestHasher_VerifyMalformed(t *testing.T) {
	h := NewHasher(testParams)

	cases := []string{
		"",
		"plain",
		"$argon2i$v=19$m=64,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=64,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=99999999,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=64,t=1,p=1$!!!$aGFzaA",
		"$argon2id$v=19$m=64,t=1,p=1$c2FsdA$",
		"$argon2id$v=19$m=64,t=1,p=1$c2FsdA",
	}
	for _, c := range cases {
		assert.NotPanics(t, func() {
			assert.False(t, h.Verify("x", c), c)
		})
	}
}
