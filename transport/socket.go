package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/c360/ed247/errors"
	"github.com/c360/ed247/metric"
)

// maxDatagramSize is the largest UDP payload a socket may receive
const maxDatagramSize = 65536

// Receiver decodes the frames received on a socket. Channels implement it.
type Receiver interface {
	Name() string
	Decode(frame []byte) error
}

// Key identifies a socket by its bind address
type Key struct {
	IP   string
	Port int
}

func (k Key) String() string {
	return net.JoinHostPort(k.IP, strconv.Itoa(k.Port))
}

// Socket is a bound UDP socket shared by every channel using its bind address.
type Socket struct {
	key  Key
	conn *net.UDPConn
	raw  syscall.RawConn
	pc   *ipv4.PacketConn
	fd   int

	refs      int
	receivers []Receiver
	groups    map[string]struct{}
	multicast bool

	buf     []byte
	hooks   *hooks
	logger  *slog.Logger
	metrics *metric.Metrics
}

func openSocket(key Key, h *hooks, logger *slog.Logger, metrics *metric.Metrics) (*Socket, error) {
	ip := net.ParseIP(key.IP)
	if ip == nil || ip.To4() == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: bad bind address %q", errors.ErrInvalidConfig, key.IP),
			"Socket", "open", "parse bind address")
	}

	lc := net.ListenConfig{Control: reuseAddr}
	packetConn, err := lc.ListenPacket(context.Background(), "udp4", key.String())
	if err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: bind %s: %v", errors.ErrSocket, key, err),
			"Socket", "open", "bind socket")
	}
	conn := packetConn.(*net.UDPConn)

	raw, err := conn.SyscallConn()
	if err != nil {
		_ = conn.Close()
		return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrSocket, err), "Socket", "open", "get raw conn")
	}
	s := &Socket{
		key:     key,
		conn:    conn,
		raw:     raw,
		pc:      ipv4.NewPacketConn(conn),
		fd:      -1,
		groups:  make(map[string]struct{}),
		buf:     make([]byte, maxDatagramSize),
		hooks:   h,
		logger:  logger.With("socket", key.String()),
		metrics: metrics,
	}
	if err := raw.Control(func(fd uintptr) { s.fd = int(fd) }); err != nil {
		_ = conn.Close()
		return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrSocket, err), "Socket", "open", "get descriptor")
	}
	return s, nil
}

func reuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// Key returns the socket bind address
func (s *Socket) Key() Key { return s.key }

// LocalAddr returns the address the socket is actually bound to
func (s *Socket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// FD returns the socket file descriptor
func (s *Socket) FD() int { return s.fd }

// Receivers returns the number of channels receiving on the socket
func (s *Socket) Receivers() int { return len(s.receivers) }

// IsInput reports whether at least one channel receives on the socket
func (s *Socket) IsInput() bool { return len(s.receivers) > 0 }

func (s *Socket) addReceiver(r Receiver) {
	for _, existing := range s.receivers {
		if existing == r {
			return
		}
	}
	s.receivers = append(s.receivers, r)
}

func (s *Socket) removeReceiver(r Receiver) {
	for i, existing := range s.receivers {
		if existing == r {
			s.receivers = append(s.receivers[:i], s.receivers[i+1:]...)
			return
		}
	}
}

// setMulticastOptions configures the socket for multicast emission
func (s *Socket) setMulticastOptions(ttl int, ifi *net.Interface) error {
	if s.multicast {
		return nil
	}
	if err := s.pc.SetMulticastTTL(ttl); err != nil {
		return errors.WrapFatal(fmt.Errorf("%w: multicast ttl: %v", errors.ErrSocket, err),
			"Socket", "setMulticastOptions", "set ttl")
	}
	if err := s.pc.SetMulticastLoopback(true); err != nil {
		return errors.WrapFatal(fmt.Errorf("%w: multicast loopback: %v", errors.ErrSocket, err),
			"Socket", "setMulticastOptions", "set loopback")
	}
	if ifi != nil {
		if err := s.pc.SetMulticastInterface(ifi); err != nil {
			return errors.WrapFatal(fmt.Errorf("%w: multicast interface %s: %v", errors.ErrSocket, ifi.Name, err),
				"Socket", "setMulticastOptions", "set interface")
		}
	}
	s.multicast = true
	return nil
}

// join adds the socket to a multicast group unless it is already a member
// on that interface. It reports whether a join actually happened.
func (s *Socket) join(group net.IP, ifi *net.Interface, joinFn JoinFunc) (bool, error) {
	key := group.String()
	if ifi != nil {
		key += "%" + ifi.Name
	}
	if _, joined := s.groups[key]; joined {
		return false, nil
	}
	if err := joinFn(s.pc, ifi, group); err != nil {
		return false, errors.WrapFatal(fmt.Errorf("%w: join %s: %v", errors.ErrSocket, key, err),
			"Socket", "join", "join multicast group")
	}
	s.groups[key] = struct{}{}
	s.logger.Debug("Joined multicast group", "group", key)
	return true, nil
}

// sendTo emits one datagram per destination. Short or failed sends are
// reported but never retried.
func (s *Socket) sendTo(frame []byte, dsts []*net.UDPAddr) error {
	s.hooks.runSend(s.key.String(), frame)

	var firstErr error
	for _, dst := range dsts {
		n, err := s.conn.WriteToUDP(frame, dst)
		if err == nil && n != len(frame) {
			err = fmt.Errorf("short write of %d/%d bytes", n, len(frame))
		}
		if err != nil {
			if s.metrics != nil {
				s.metrics.RecordSendError(s.key.String())
			}
			if firstErr == nil {
				firstErr = errors.WrapTransient(fmt.Errorf("%w: send to %s: %v", errors.ErrSocket, dst, err),
					"Socket", "sendTo", "send datagram")
			}
		}
	}
	return firstErr
}

// Recv drains every pending datagram without blocking and hands each one to
// all receivers of the socket. It returns the number of datagrams read.
func (s *Socket) Recv() (int, error) {
	count := 0
	for {
		var (
			n       int
			recvErr error
		)
		err := s.raw.Read(func(fd uintptr) bool {
			n, _, recvErr = unix.Recvfrom(int(fd), s.buf, unix.MSG_DONTWAIT)
			return true
		})
		if err != nil {
			return count, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrSocket, err), "Socket", "Recv", "read socket")
		}
		if recvErr != nil {
			if recvErr == unix.EAGAIN || recvErr == unix.EWOULDBLOCK {
				return count, nil
			}
			if recvErr == unix.EINTR {
				continue
			}
			return count, errors.WrapFatal(fmt.Errorf("%w: recvfrom: %v", errors.ErrSocket, recvErr),
				"Socket", "Recv", "read datagram")
		}

		count++
		frame := s.buf[:n]
		if s.metrics != nil {
			s.metrics.RecordDatagram(s.key.String(), n)
		}
		s.hooks.runRecv(s.key.String(), frame)
		for _, r := range s.receivers {
			if err := r.Decode(frame); err != nil {
				s.logger.Warn("Rejected frame", "channel", r.Name(), "size", n, "error", err)
			}
		}
	}
}

func (s *Socket) close() error {
	return s.conn.Close()
}
