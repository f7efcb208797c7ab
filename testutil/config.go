package testutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/ed247/config"
)

// LoopbackYAML returns a configuration with one InOut channel on 127.0.0.1:port
// carrying an A429 stream (uid 1), a SERIAL stream (uid 2) and an ANALOG
// signal stream (uid 3).
func LoopbackYAML(port int) string {
	return fmt.Sprintf(`component_identifier: 42
name: loopback
channels:
  - name: Loop
    header:
      enable: true
    com_interface:
      udp_sockets:
        - dst_ip: 127.0.0.1
          dst_port: %d
    streams:
      - name: Label
        uid: 1
        type: A429
        direction: InOut
        sample_max_number: 4
      - name: Console
        uid: 2
        type: SERIAL
        direction: InOut
        sample_max_size_bytes: 32
        sample_max_number: 4
        data_timestamp:
          enable: true
          enable_sample_offset: true
      - name: Sensors
        uid: 3
        type: ANALOG
        direction: InOut
        signals:
          - name: Temperature
            type: ANALOG
            byte_offset: 0
          - name: Pressure
            type: ANALOG
            byte_offset: 4
`, port)
}

// LoopbackConfig loads LoopbackYAML
func LoopbackConfig(t testing.TB, port int) *config.Config {
	t.Helper()
	cfg, err := config.Load([]byte(LoopbackYAML(port)))
	require.NoError(t, err)
	return cfg
}

// PeerYAML returns two components exchanging over 127.0.0.1: the emitter sends
// the A429 stream "Label" to port, the receiver listens on it.
func PeerYAML(port int, direction config.Direction) string {
	return fmt.Sprintf(`component_identifier: %d
name: peer-%s
channels:
  - name: Link
    header:
      enable: true
      transport_timestamp: true
    com_interface:
      udp_sockets:
        - dst_ip: 127.0.0.1
          dst_port: %d
    streams:
      - name: Label
        uid: 1
        type: A429
        direction: %s
        sample_max_number: 8
`, int(direction), direction, port, direction)
}
