package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirectKeyOrderIndependent(t *testing.T) {
	require.Equal(t, "a_b", DirectKey("b", "a"))
	require.Equal(t, DirectKey("a", "b"), DirectKey("b", "a"))
}

func TestDirectPeersRoundTrip(t *testing.T) {
	a, b, ok := DirectPeers(DirectKey("b", "a"))
	require.True(t, ok)
	require.Equal(t, "a", a)
	require.Equal(t, "b", b)

	_, _, ok = DirectPeers(RoomKey("r1"))
	require.False(t, ok)

	_, _, ok = DirectPeers("loneid")
	require.False(t, ok)
}
