// Package transport owns the UDP sockets of an ED247 context.
//
// A Factory creates sockets from the channel com interfaces and shares them by
// bind address, so several channels may send through or receive on the same
// socket. Multicast destinations join their group once per socket and
// interface, output sockets carry the multicast TTL, interface and loopback
// options.
//
// A ReceiverSet runs the blocking wait: a single select(2) over every input
// socket, a non-blocking drain of each readable socket, and the dispatch of
// every datagram to all channels receiving on that socket.
//
// # Usage
//
//	factory := transport.NewFactory(transport.WithLogger(logger))
//	defer factory.Close()
//	if err := factory.Register(ch); err != nil {
//	    return err
//	}
//	set := transport.NewReceiverSet(factory.InputSockets())
//	err := set.WaitFrame(100 * time.Millisecond)
//
// The package is not safe for concurrent waits: one goroutine owns the
// receiver set, as with the rest of the context.
package transport
