// Package ed247 implements the ED247 avionics interconnect protocol: typed
// signals mapped into streams, streams framed into channels and channels
// exchanged over unicast or multicast UDP.
//
// # Layers
//
// The module is organized leaf-first:
//
//   - pkg/buffer: fixed capacity samples and drop-oldest rings
//   - config: the validated component configuration (channels, streams, signals, sockets)
//   - stream: per-type sample codecs, signals and the signal assistant
//   - channel: frame header, framing of several streams into one datagram, demultiplexing by UID
//   - transport: shared UDP sockets, multicast membership, the select based receiver set
//   - ed247 (this package): the Context tying everything together
//
// # Usage
//
//	ctx, err := ed247.LoadFile("component.yaml", ed247.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer ctx.Close()
//
//	out, _ := ctx.Stream("Label")
//	if _, err := out.PushSample([]byte{0x01, 0x02, 0x03, 0x04}, nil); err != nil {
//	    return err
//	}
//	if err := ctx.SendPushedSamples(); err != nil {
//	    logger.Warn("send failed", "error", err)
//	}
//
//	switch ed247.StatusOf(ctx.WaitFrame(100 * time.Millisecond)) {
//	case ed247.StatusSuccess:
//	    in, _ := ctx.Stream("Feedback")
//	    for {
//	        sample, empty, err := in.PopSample()
//	        if err != nil {
//	            break
//	        }
//	        handle(sample.Bytes())
//	        if empty {
//	            break
//	        }
//	    }
//	case ed247.StatusTimeout:
//	    // nothing arrived
//	}
//
// # Concurrency
//
// A Context is driven by one goroutine. WaitFrame and WaitDuring are the only
// blocking calls; pushing samples and SendPushedSamples never block.
// Receive callbacks run on the goroutine calling WaitFrame.
package ed247
