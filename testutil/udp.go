package testutil

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// FreeUDPPort returns a loopback UDP port that was free when checked
func FreeUDPPort(t testing.TB) int {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}
