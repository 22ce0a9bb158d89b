package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestToken_SaveLoadDelete(t *testing.T) {
	keyring.MockInit()

	token, err := LoadToken()
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, SaveToken("signed.jwt.value"))
	token, err = LoadToken()
	require.NoError(t, err)
	assert.Equal(t, "signed.jwt.value", token)

	require.NoError(t, DeleteToken())
	require.NoError(t, DeleteToken())
	token, err = LoadToken()
	require.NoError(t, err)
	assert.Empty(t, token)
}
