package main

import (
	"testing"

	"github.com/Layr-Labs/gasless-go/pkg/authorizationManager"
	"github.com/Layr-Labs/gasless-go/pkg/gaslessSender"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCall(t *testing.T) {
	call, err := parseCall("0xAAAA000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, gaslessSender.GaslessCall{To: "0xAAAA000000000000000000000000000000000001"}, call)

	call, err = parseCall("0xAAAA000000000000000000000000000000000001:0.01:0xdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, "0.01", call.Value)
	assert.Equal(t, "0xdeadbeef", call.Data)

	_, err = parseCall(":1")
	assert.Error(t, err)
}

func TestParseExecutor(t *testing.T) {
	e, err := parseExecutor("self")
	require.NoError(t, err)
	assert.Equal(t, authorizationManager.ExecutorSelf, e)

	e, err = parseExecutor("")
	require.NoError(t, err)
	assert.Equal(t, authorizationManager.ExecutorSponsor, e)

	_, err = parseExecutor("relayer")
	assert.Error(t, err)
}
