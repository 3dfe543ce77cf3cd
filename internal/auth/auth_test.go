package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	id, ok := Static("alice").CurrentIdentity()
	assert.True(t, ok)
	assert.Equal(t, "alice", id)

	_, ok = Static("").CurrentIdentity()
	assert.False(t, ok)
}

func TestJWT(t *testing.T) {
	t.Run("Valid_JWT", func(t *testing.T) {
		tokenString, err := MakeJWT("alice", "validtokensecret", "conecta", 15*time.Second)
		require.NoError(t, err)

		got, err := ValidateJWT(tokenString, "validtokensecret", "conecta")
		require.NoError(t, err)
		assert.Equal(t, "alice", got)
	})

	t.Run("Incorrect_secret", func(t *testing.T) {
		tokenString, err := MakeJWT("alice", "validtokensecret", "", 15*time.Second)
		require.NoError(t, err)

		_, err = ValidateJWT(tokenString, "fakesecret", "")
		assert.Error(t, err)
	})

	t.Run("Wrong_issuer", func(t *testing.T) {
		tokenString, err := MakeJWT("alice", "validtokensecret", "someone-else", 15*time.Second)
		require.NoError(t, err)

		_, err = ValidateJWT(tokenString, "validtokensecret", "conecta")
		assert.Error(t, err)
	})

	t.Run("Expired_token", func(t *testing.T) {
		tokenString, err := MakeJWT("alice", "validtokensecret", "", -1*time.Second)
		require.NoError(t, err)

		_, err = ValidateJWT(tokenString, "validtokensecret", "")
		assert.Error(t, err)
	})

	t.Run("Corrupt_token", func(t *testing.T) {
		_, err := ValidateJWT("corrupttoken", "validtokensecret", "")
		assert.Error(t, err)
	})

	t.Run("Empty_subject", func(t *testing.T) {
		_, err := MakeJWT("", "validtokensecret", "", time.Minute)
		assert.Error(t, err)
	})
}

func TestJWTProvider(t *testing.T) {
	tokenString, err := MakeJWT("bob", "s3cret", "", time.Minute)
	require.NoError(t, err)

	id, ok := JWTProvider{Token: tokenString, Secret: "s3cret"}.CurrentIdentity()
	assert.True(t, ok)
	assert.Equal(t, "bob", id)

	_, ok = JWTProvider{Token: tokenString, Secret: "other"}.CurrentIdentity()
	assert.False(t, ok)

	_, ok = JWTProvider{}.CurrentIdentity()
	assert.False(t, ok)
}
