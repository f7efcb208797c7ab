// Package bridge connects an ED247 component to NATS and WebSocket clients.
//
// Received samples of the selected input streams are published as JSON
// SampleEvents on <prefix>.in.<stream> and broadcast to WebSocket clients.
// Messages published on <prefix>.out.<stream> are pushed as raw samples into
// the output stream of that name and emitted on the next send.
//
// The ED247 context is not safe for concurrent use, so Run owns it: NATS
// deliveries are queued on a channel and drained between frame waits.
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	b, err := bridge.New(ed, bridge.DefaultConfig(),
//		bridge.WithSink(bridge.NewNATSSink(nc, "ed247")),
//		bridge.WithNATSInput(nc))
//	if err != nil {
//		return err
//	}
//	return b.Run(ctx)
package bridge
