package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(MinIterations)

	stored, err := h.Hash("1234")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored, "SCRAM-SHA-256$4096:"))
	assert.NotContains(t, stored, "1234$")

	assert.NoError(t, h.Verify("1234", stored))
	assert.ErrorIs(t, h.Verify("4321", stored), ErrPasswordInvalid)
}

func TestHasher_SaltIsRandom(t *testing.T) {
	h := NewHasher(MinIterations)

	first, err := h.Hash("same-passcode")
	require.NoError(t, err)
	second, err := h.Hash("same-passcode")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.NoError(t, h.Verify("same-passcode", first))
	assert.NoError(t, h.Verify("same-passcode", second))
}

func TestHasher_VerifyUsesStoredIterations(t *testing.T) {
	stored, err := NewHasher(5000).Hash("pass")
	require.NoError(t, err)

	// A hasher configured differently still verifies older hashes.
	assert.NoError(t, NewHasher(MinIterations).Verify("pass", stored))
}

func TestHasher_Errors(t *testing.T) {
	h := NewHasher(MinIterations)

	_, err := h.Hash("")
	assert.ErrorIs(t, err, ErrEmptyPassword)

	_, err = NewHasher(10).Hash("pass")
	assert.Error(t, err)

	for _, stored := range []string{
		"",
		"plaintext",
		"SCRAM-SHA-1$4096:c2FsdA==$a2V5:a2V5",
		"SCRAM-SHA-256$abc:c2FsdA==$a2V5:a2V5",
		"SCRAM-SHA-256$0:c2FsdA==$a2V5:a2V5",
		"SCRAM-SHA-256$4096:$a2V5:a2V5",
		"SCRAM-SHA-256$4096:c2FsdA==$a:b",
		"SCRAM-SHA-256$4096:c2FsdA==$a2V5",
	} {
		assert.ErrorIs(t, h.Verify("pass", stored), ErrMalformedHash, stored)
	}

	stored, err := h.Hash("pass")
	require.NoError(t, err)
	assert.ErrorIs(t, h.Verify("", stored), ErrPasswordInvalid)
}

func TestHasher_ProhibitedCharacters(t *testing.T) {
	h := NewHasher(MinIterations)

	_, err := h.Hash("pass\aword")
	assert.ErrorIs(t, err, ErrInvalidPassword)
	assert.NotContains(t, err.Error(), "pass\aword")

	stored, err := h.Hash("password")
	require.NoError(t, err)
	err = h.Verify("pass\aword", stored)
	assert.ErrorIs(t, err, ErrPasswordInvalid)
	assert.ErrorIs(t, err, ErrInvalidPassword)
}
