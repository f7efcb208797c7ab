// Package testutil provides helpers shared by the ED247 package tests.
//
// Configurations:
//
// LoopbackYAML describes one component sending to and receiving from a
// single 127.0.0.1 port, carrying an A429, a SERIAL and an ANALOG signal
// stream. PeerYAML describes an emitter and a receiver exchanging the A429
// stream "Label" over a shared port.
//
//	port := testutil.FreeUDPPort(t)
//	ctx, err := ed247.LoadContent([]byte(testutil.LoopbackYAML(port)))
//
// NATS:
//
// MockNATSConn records published messages and delivers messages to channel
// subscriptions without a server. Under the integration build tag,
// StartNATSServer runs a real server in a container through testcontainers-go.
package testutil
