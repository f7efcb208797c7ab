// Package channel implements ED247 channels: the framing of several streams into
// one UDP datagram and the demultiplexing of received datagrams by stream UID.
//
// A frame is laid out as:
//
//	[frame header][u16 uid][u16 size][stream payload]...
//
// The frame header (component identifier, sequence number and optional
// transport timestamp) is present when enabled. Simple channels carry exactly
// one stream and omit the uid/size block header.
package channel
