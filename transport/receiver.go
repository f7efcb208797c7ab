package transport

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/c360/ed247/errors"
	"github.com/c360/ed247/metric"
)

// Wait outcomes recorded in the wait duration histogram
const (
	waitSuccess = "success"
	waitTimeout = "timeout"
	waitFailure = "failure"
	waitNoData  = "nodata"
)

// ReceiverSetOption configures a ReceiverSet
type ReceiverSetOption func(*ReceiverSet)

// WithReceiverLogger sets the receiver set logger
func WithReceiverLogger(logger *slog.Logger) ReceiverSetOption {
	return func(r *ReceiverSet) { r.logger = logger }
}

// WithReceiverMetrics records wait durations in the core metrics
func WithReceiverMetrics(metrics *metric.Metrics) ReceiverSetOption {
	return func(r *ReceiverSet) { r.metrics = metrics }
}

// WithSleep replaces the sleep used when there is no input socket
func WithSleep(sleep func(time.Duration)) ReceiverSetOption {
	return func(r *ReceiverSet) { r.sleep = sleep }
}

// ReceiverSet waits on every input socket at once and dispatches the received
// datagrams.
type ReceiverSet struct {
	sockets []*Socket
	fds     unix.FdSet
	maxFD   int

	sleep   func(time.Duration)
	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewReceiverSet builds the select set over the given input sockets
func NewReceiverSet(sockets []*Socket, opts ...ReceiverSetOption) (*ReceiverSet, error) {
	r := &ReceiverSet{sleep: time.Sleep, maxFD: -1}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "receiver-set")

	r.fds.Zero()
	for _, s := range sockets {
		if s.FD() < 0 || s.FD() >= unix.FD_SETSIZE {
			return nil, errors.WrapFatal(fmt.Errorf("%w: descriptor %d out of select range", errors.ErrSocket, s.FD()),
				"ReceiverSet", "New", "add socket")
		}
		r.fds.Set(s.FD())
		if s.FD() > r.maxFD {
			r.maxFD = s.FD()
		}
		r.sockets = append(r.sockets, s)
	}
	return r, nil
}

// Len returns the number of input sockets
func (r *ReceiverSet) Len() int { return len(r.sockets) }

// WaitFrame blocks until at least one datagram was received and dispatched,
// or the timeout elapsed. A negative timeout waits forever, except without
// input sockets where nothing could ever arrive: it returns ErrTimeout at once.
//
// Once a first batch has been read the remaining timeout drops to zero: the
// next select only collects datagrams already queued, so WaitFrame returns
// right after the first burst instead of waiting out the whole timeout.
//
// It returns nil on reception, ErrTimeout (transient) when nothing arrived and
// an ErrSocket (fatal) error when select or a read failed.
func (r *ReceiverSet) WaitFrame(timeout time.Duration) error {
	start := time.Now()
	err := r.waitFrame(timeout)
	r.recordWait(err, time.Since(start))
	return err
}

func (r *ReceiverSet) waitFrame(timeout time.Duration) error {
	if len(r.sockets) == 0 {
		if timeout > 0 {
			r.sleep(timeout)
		}
		return timeoutError("no input socket")
	}

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	received := false

	for {
		var tv *unix.Timeval
		switch {
		case received:
			tv = &unix.Timeval{}
		case timeout >= 0:
			remaining := time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
			t := unix.NsecToTimeval(remaining.Nanoseconds())
			tv = &t
		}

		ready := r.fds
		n, err := unix.Select(r.maxFD+1, &ready, nil, nil, tv)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.WrapFatal(fmt.Errorf("%w: select: %v", errors.ErrSocket, err),
				"ReceiverSet", "WaitFrame", "select")
		}
		if n == 0 {
			if received {
				return nil
			}
			return timeoutError(fmt.Sprintf("nothing received within %v", timeout))
		}

		for _, s := range r.sockets {
			if !ready.IsSet(s.FD()) {
				continue
			}
			count, err := s.Recv()
			if err != nil {
				r.logger.Error("Failed to receive", "socket", s.Key().String(), "error", err)
				return err
			}
			if count > 0 {
				received = true
			}
		}
	}
}

// WaitDuring keeps waiting for frames until the duration elapsed. It returns
// nil if at least one wait received data, ErrNoData (transient) if nothing
// arrived, and the first failure otherwise. A non-positive duration polls once.
func (r *ReceiverSet) WaitDuring(duration time.Duration) error {
	deadline := time.Now().Add(duration)
	received := false
	for {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		err := r.WaitFrame(remaining)
		switch {
		case err == nil:
			received = true
		case errors.Is(err, errors.ErrTimeout):
		default:
			return err
		}
		if remaining == 0 || !time.Now().Before(deadline) {
			break
		}
	}
	if !received {
		if r.metrics != nil {
			r.metrics.RecordWait(waitNoData, duration)
		}
		return errors.WrapTransient(fmt.Errorf("%w: nothing received during %v", errors.ErrNoData, duration),
			"ReceiverSet", "WaitDuring", "wait")
	}
	return nil
}

func (r *ReceiverSet) recordWait(err error, d time.Duration) {
	if r.metrics == nil {
		return
	}
	switch {
	case err == nil:
		r.metrics.RecordWait(waitSuccess, d)
	case errors.Is(err, errors.ErrTimeout):
		r.metrics.RecordWait(waitTimeout, d)
	default:
		r.metrics.RecordWait(waitFailure, d)
	}
}

func timeoutError(reason string) error {
	return errors.WrapTransient(fmt.Errorf("%w: %s", errors.ErrTimeout, reason), "ReceiverSet", "WaitFrame", "wait")
}
