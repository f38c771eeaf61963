// internal/room/settlement_test.go
package room

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitAmount(t *testing.T) {
	perPerson, amountHex, err := SplitAmount(40000, 4)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, perPerson)
	// 10000 * 524288 = 5242880000
	assert.Equal(t, "138800000", amountHex)

	again, againHex, err := SplitAmount(40000, 4)
	require.NoError(t, err)
	assert.Equal(t, perPerson, again)
	assert.Equal(t, amountHex, againHex)
}

func TestSplitAmountUneven(t *testing.T) {
	perPerson, amountHex, err := SplitAmount(10000, 3)
	require.NoError(t, err)
	assert.InDelta(t, 3333.333, perPerson, 0.001)
	assert.Equal(t, "682AAAAB", amountHex)
}

func TestSplitAmountRejectsBadInput(t *testing.T) {
	_, _, err := SplitAmount(40000, 0)
	assert.True(t, errors.Is(err, ErrInsufficientParticipants))

	_, _, err = SplitAmount(0, 2)
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestBuildDeeplink(t *testing.T) {
	assert.Equal(t, "https://pay.example/send/138800000", BuildDeeplink("https://pay.example/send/", "138800000"))
}
