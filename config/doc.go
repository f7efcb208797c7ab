// Package config provides the validated configuration tree consumed by the ED247
// protocol stack.
//
// A configuration describes one component: its identifier, its channels, the UDP
// sockets of every channel, the streams multiplexed in each channel and the
// signals laid out inside DISCRETE, ANALOG, NAD and VNAD streams.
//
// # Loading
//
// Configurations are YAML documents decoded strictly (unknown fields are
// rejected). JSON content is valid YAML and loads the same way.
//
//	cfg, err := config.LoadFile("ecic.yaml")
//	if err != nil {
//		return err
//	}
//
// # Validation
//
// Load always runs Validate, which applies defaults and derives the values the
// protocol stack relies on:
//
//   - stream names are unique in the component, UIDs are unique in their channel
//   - simple channels contain exactly one stream
//   - A429 samples are 4 bytes, size prefixed samples fit their prefix width
//   - signals are sorted by byte offset (position for VNAD), must tile the sample
//     with no gap or overlap, and receive their scratch Index in that order
//   - sample_max_size_bytes of signal streams is derived from the layout when omitted
//   - socket directions default to the union of the channel's stream directions
//
// Every validation failure wraps errors.ErrInvalidConfig (or ErrUnsupportedConfig
// for a foreign standard revision) and is classified as invalid.
//
// # Example
//
//	component_identifier: 12
//	name: fcs
//	channels:
//	  - name: Channel0
//	    header: {enable: true, transport_timestamp: true}
//	    com_interface:
//	      udp_sockets:
//	        - {dst_ip: 224.1.1.1, dst_port: 2589, mc_interface_ip: 192.168.1.10}
//	    streams:
//	      - name: Stream0
//	        uid: 1
//	        type: A429
//	        direction: Out
//	        sample_max_number: 10
//	        data_timestamp: {enable: true, enable_sample_offset: true}
package config
