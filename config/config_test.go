package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ed247/errors"
)

const fullConfig = `
component_identifier: 42
name: fcs
channels:
  - name: Channel0
    header:
      enable: true
      transport_timestamp: true
    com_interface:
      udp_sockets:
        - dst_ip: 127.0.0.1
          dst_port: 2589
    streams:
      - name: A429Stream
        uid: 1
        type: A429
        direction: Out
        sample_max_number: 10
        data_timestamp:
          enable: true
          enable_sample_offset: true
      - name: A664Stream
        uid: 2
        type: a664
        direction: InOut
        sample_max_size_bytes: 1500
        enable_message_size: false
  - name: Channel1
    simple: true
    com_interface:
      udp_sockets:
        - dst_ip: 224.1.1.1
          dst_port: 6000
          mc_interface_ip: 127.0.0.1
          direction: In
    streams:
      - name: NadStream
        uid: 3
        type: NAD
        direction: In
        signals:
          - {name: Speed, type: NAD, byte_offset: 4, nad_type: float32}
          - {name: Matrix, type: NAD, byte_offset: 0, nad_type: uint16, dimensions: [2]}
`

func TestLoad_FullConfig(t *testing.T) {
	cfg, err := Load([]byte(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, uint16(42), cfg.ComponentIdentifier)
	assert.Equal(t, StandardRevisionA, cfg.StandardRevision)
	require.Len(t, cfg.Channels, 2)

	ch0 := cfg.Channels[0]
	assert.Equal(t, MaxFrameSize, ch0.FrameMaxSize)
	assert.Equal(t, 12, ch0.HeaderSize())
	assert.Equal(t, DirectionInOut, ch0.ComInterface.UDPSockets[0].Direction)

	a429 := ch0.Streams[0]
	assert.Equal(t, StreamA429, a429.Type)
	assert.Equal(t, A429SampleSize, a429.SampleMaxSizeBytes)
	assert.Equal(t, 0, a429.SizePrefixWidth())
	// first sample carries a full timestamp, the nine others an offset
	assert.Equal(t, 4+8+9*(4+4), a429.MaxPayloadSize())

	a664 := ch0.Streams[1]
	assert.Equal(t, StreamA664, a664.Type)
	assert.False(t, a664.MessageSizeEnabled())
	assert.Equal(t, 0, a664.SizePrefixWidth())
	assert.Equal(t, DefaultSampleMaxNumber, a664.SampleMaxNumber)

	ch1 := cfg.Channels[1]
	assert.True(t, ch1.Simple)
	assert.Equal(t, 0, ch1.HeaderSize())
	sock := ch1.ComInterface.UDPSockets[0]
	assert.True(t, sock.IsMulticast())
	assert.Equal(t, DefaultMulticastTTL, sock.MulticastTTL)

	nad := ch1.Streams[0]
	assert.Equal(t, 8, nad.SampleMaxSizeBytes)
	require.Len(t, nad.Signals, 2)
	assert.Equal(t, "Matrix", nad.Signals[0].Name)
	assert.Equal(t, 0, nad.Signals[0].Index)
	assert.Equal(t, "Speed", nad.Signals[1].Name)
	assert.Equal(t, 1, nad.Signals[1].Index)
}

func TestLoad_JSONContent(t *testing.T) {
	content := `{
		"component_identifier": 1,
		"name": "json",
		"channels": [{
			"name": "Ch",
			"com_interface": {"udp_sockets": [{"dst_ip": "127.0.0.1", "dst_port": 1234}]},
			"streams": [{"name": "S", "uid": 7, "type": "A825", "direction": "In", "sample_max_size_bytes": 69}]
		}]
	}`

	cfg, err := Load([]byte(content))
	require.NoError(t, err)
	assert.Equal(t, StreamA825, cfg.Channels[0].Streams[0].Type)
	assert.Equal(t, 1, cfg.Channels[0].Streams[0].SizePrefixWidth())
	assert.Equal(t, DirectionIn, cfg.Channels[0].ComInterface.UDPSockets[0].Direction)
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	content := `
name: x
unknown_field: true
channels: []
`
	_, err := Load([]byte(content))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
	assert.True(t, errors.IsInvalid(err))
}

func TestLoad_Empty(t *testing.T) {
	_, err := Load(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingConfig))
}

func TestLoad_NADTypeRequired(t *testing.T) {
	content := strings.Replace(fullConfig, "byte_offset: 4, nad_type: float32", "byte_offset: 4", 1)
	_, err := Load([]byte(content))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), `NAD signal "Speed" requires nad_type`)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ecic.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fcs", cfg.Name)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingConfig))
}

func TestConfig_MarshalRoundTrip(t *testing.T) {
	cfg, err := Load([]byte(fullConfig))
	require.NoError(t, err)

	data, err := cfg.Marshal()
	require.NoError(t, err)

	again, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, cfg.Channels[1].Streams[0].Signals[1].Name, again.Channels[1].Streams[0].Signals[1].Name)
	assert.Equal(t, cfg.Channels[0].Streams[1].Type, again.Channels[0].Streams[1].Type)
}

func TestEnums_UnmarshalText(t *testing.T) {
	var st StreamType
	require.NoError(t, st.UnmarshalText([]byte("serial")))
	assert.Equal(t, StreamSerial, st)
	assert.Error(t, st.UnmarshalText([]byte("A999")))

	var d Direction
	require.NoError(t, d.UnmarshalText([]byte("inout")))
	assert.True(t, d.IsIn())
	assert.True(t, d.IsOut())
	assert.Error(t, d.UnmarshalText([]byte("sideways")))

	var nt NADType
	require.NoError(t, nt.UnmarshalText([]byte("FLOAT64")))
	assert.Equal(t, 8, nt.Size())
	assert.Error(t, nt.UnmarshalText([]byte("int128")))
}
