// Package retry provides exponential backoff for the operations of the ED247
// tools that talk to external services, such as the bridge connecting to its
// NATS server.
//
// Errors marked with NonRetryable, and errors classified invalid or fatal by
// the errors package, stop the retries immediately: a bad configuration or a
// socket that cannot be bound will not fix itself.
//
//	nc, err := retry.DoWithResult(ctx, retry.Quick(), func() (*nats.Conn, error) {
//	    return nats.Connect(url)
//	})
//
// Presets:
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay
//   - Quick(): 10 attempts, 50ms-1s delay
//   - Persistent(): 30 attempts, 200ms-10s delay
//
// OnRetry lets the caller log every failed attempt before the backoff sleep.
package retry
