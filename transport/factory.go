package transport

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/net/ipv4"

	"github.com/c360/ed247/channel"
	"github.com/c360/ed247/config"
	"github.com/c360/ed247/errors"
	"github.com/c360/ed247/metric"
)

// JoinFunc adds a socket to a multicast group on an interface (nil for the default one)
type JoinFunc func(pc *ipv4.PacketConn, ifi *net.Interface, group net.IP) error

func joinGroup(pc *ipv4.PacketConn, ifi *net.Interface, group net.IP) error {
	return pc.JoinGroup(ifi, &net.UDPAddr{IP: group})
}

// Option configures a Factory
type Option func(*Factory)

// WithLogger sets the factory logger
func WithLogger(logger *slog.Logger) Option {
	return func(f *Factory) { f.logger = logger }
}

// WithMetrics records socket counters in the core metrics
func WithMetrics(metrics *metric.Metrics) Option {
	return func(f *Factory) { f.metrics = metrics }
}

// WithJoinFunc replaces the multicast group join
func WithJoinFunc(fn JoinFunc) Option {
	return func(f *Factory) { f.join = fn }
}

// Route sends the frames of one channel through one socket to that channel's
// destinations on the socket.
type Route struct {
	socket  *Socket
	channel string
	dsts    []*net.UDPAddr
}

var _ channel.FrameSender = (*Route)(nil)

// SendFrame emits the frame once per destination
func (r *Route) SendFrame(frame []byte) error {
	return r.socket.sendTo(frame, r.dsts)
}

// Socket returns the socket the route sends through
func (r *Route) Socket() *Socket { return r.socket }

// Destinations returns the route destination addresses
func (r *Route) Destinations() []*net.UDPAddr {
	out := make([]*net.UDPAddr, len(r.dsts))
	copy(out, r.dsts)
	return out
}

func (r *Route) addDestination(dst *net.UDPAddr) {
	for _, d := range r.dsts {
		if d.IP.Equal(dst.IP) && d.Port == dst.Port {
			return
		}
	}
	r.dsts = append(r.dsts, dst)
}

type registration struct {
	ch      *channel.Channel
	sockets []Key
	routes  []*Route
}

// Factory creates the sockets of the registered channels and shares them by
// bind address. A socket is closed once no channel references it.
type Factory struct {
	mu       sync.Mutex
	sockets  map[Key]*Socket
	order    []Key
	channels map[string]*registration

	hooks   *hooks
	join    JoinFunc
	isLocal func(net.IP) bool
	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewFactory creates an empty socket factory
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		sockets:  make(map[Key]*Socket),
		channels: make(map[string]*registration),
		hooks:    &hooks{},
		join:     joinGroup,
		isLocal:  isLocalAddress,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	f.logger = f.logger.With("component", "transport")
	return f
}

// Register opens or reuses the sockets of a channel com interface, registers
// the channel as receiver on its input sockets and adds its send routes.
func (f *Factory) Register(ch *channel.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, dup := f.channels[ch.Name()]; dup {
		return errors.WrapInvalid(fmt.Errorf("%w: channel %q already registered", errors.ErrInvalidConfig, ch.Name()),
			"Factory", "Register", "register channel")
	}
	reg := &registration{ch: ch}
	routes := make(map[Key]*Route)

	for _, sc := range ch.Config().ComInterface.UDPSockets {
		if err := f.registerSocket(reg, routes, sc); err != nil {
			f.release(reg)
			return err
		}
	}

	for _, route := range reg.routes {
		ch.AddSender(route)
	}
	f.channels[ch.Name()] = reg
	f.logger.Debug("Registered channel", "channel", ch.Name(), "sockets", len(reg.sockets), "routes", len(reg.routes))
	return nil
}

func (f *Factory) registerSocket(reg *registration, routes map[Key]*Route, sc config.UDPSocketConfig) error {
	dstIP := net.ParseIP(sc.DstIP).To4()
	if dstIP == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: bad destination address %q", errors.ErrInvalidConfig, sc.DstIP),
			"Factory", "Register", "parse destination")
	}
	dst := &net.UDPAddr{IP: dstIP, Port: sc.DstPort}
	multicast := dstIP.IsMulticast()

	var ifi *net.Interface
	if sc.MulticastIfIP != "" {
		var err error
		if ifi, err = interfaceByIP(net.ParseIP(sc.MulticastIfIP)); err != nil {
			return err
		}
	}

	if sc.Direction.IsIn() {
		switch {
		case multicast:
			s, err := f.acquire(reg, Key{IP: dstIP.String(), Port: sc.DstPort})
			if err != nil {
				return err
			}
			if _, err := s.join(dstIP, ifi, f.join); err != nil {
				return err
			}
			s.addReceiver(reg.ch)
		case f.isLocal(dstIP):
			s, err := f.acquire(reg, Key{IP: dstIP.String(), Port: sc.DstPort})
			if err != nil {
				return err
			}
			s.addReceiver(reg.ch)
		default:
			f.logger.Debug("Not receiving on a remote address", "channel", reg.ch.Name(), "address", dst)
		}
	}

	if sc.Direction.IsOut() {
		key := Key{IP: "0.0.0.0", Port: sc.SrcPort}
		if srcIP := net.ParseIP(sc.SrcIP); srcIP != nil && f.isLocal(srcIP) {
			key.IP = srcIP.String()
		} else if multicast && ifi != nil {
			key.IP = net.ParseIP(sc.MulticastIfIP).String()
		}
		s, err := f.acquire(reg, key)
		if err != nil {
			return err
		}
		if multicast {
			ttl := sc.MulticastTTL
			if ttl <= 0 {
				ttl = config.DefaultMulticastTTL
			}
			if err := s.setMulticastOptions(ttl, ifi); err != nil {
				return err
			}
		}
		route, ok := routes[key]
		if !ok {
			route = &Route{socket: s, channel: reg.ch.Name()}
			routes[key] = route
			reg.routes = append(reg.routes, route)
		}
		route.addDestination(dst)
	}
	return nil
}

// acquire finds or opens the socket bound to key, counting one reference per channel
func (f *Factory) acquire(reg *registration, key Key) (*Socket, error) {
	s, ok := f.sockets[key]
	if !ok {
		var err error
		s, err = openSocket(key, f.hooks, f.logger, f.metrics)
		if err != nil {
			return nil, err
		}
		f.sockets[key] = s
		f.order = append(f.order, key)
		f.logger.Debug("Opened socket", "socket", key, "local", s.LocalAddr())
	}
	for _, k := range reg.sockets {
		if k == key {
			return s, nil
		}
	}
	s.refs++
	reg.sockets = append(reg.sockets, key)
	return s, nil
}

// Unregister detaches a channel from its sockets, closing the ones no other
// channel references.
func (f *Factory) Unregister(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	reg, ok := f.channels[name]
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: channel %q", errors.ErrNotFound, name),
			"Factory", "Unregister", "find channel")
	}
	delete(f.channels, name)
	return f.release(reg)
}

func (f *Factory) release(reg *registration) error {
	var firstErr error
	for _, key := range reg.sockets {
		s := f.sockets[key]
		s.removeReceiver(reg.ch)
		s.refs--
		if s.refs > 0 {
			continue
		}
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(f.sockets, key)
		for i, k := range f.order {
			if k == key {
				f.order = append(f.order[:i], f.order[i+1:]...)
				break
			}
		}
	}
	reg.sockets = nil
	return firstErr
}

// Socket returns the socket bound to key
func (f *Factory) Socket(key Key) (*Socket, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sockets[key]
	return s, ok
}

// Sockets returns every open socket in creation order
func (f *Factory) Sockets() []*Socket {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Socket, 0, len(f.order))
	for _, key := range f.order {
		out = append(out, f.sockets[key])
	}
	return out
}

// InputSockets returns the sockets at least one channel receives on
func (f *Factory) InputSockets() []*Socket {
	var out []*Socket
	for _, s := range f.Sockets() {
		if s.IsInput() {
			out = append(out, s)
		}
	}
	return out
}

// OnSend registers a hook called before every frame emission
func (f *Factory) OnSend(fn ComHook) HookID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hooks.add(&f.hooks.send, fn)
}

// OnRecv registers a hook called for every received datagram, before decode
func (f *Factory) OnRecv(fn ComHook) HookID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hooks.add(&f.hooks.recv, fn)
}

// RemoveHook unregisters a com hook
func (f *Factory) RemoveHook(id HookID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hooks.remove(id)
}

// Close closes every socket
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for _, key := range f.order {
		if err := f.sockets[key].close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "Factory", "Close", "close socket "+key.String())
		}
	}
	f.sockets = make(map[Key]*Socket)
	f.order = nil
	f.channels = make(map[string]*registration)
	return firstErr
}

func isLocalAddress(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() {
		return true
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.Equal(ip) {
			return true
		}
	}
	return false
}

func interfaceByIP(ip net.IP) (*net.Interface, error) {
	if ip == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: bad multicast interface address", errors.ErrInvalidConfig),
			"Factory", "Register", "parse interface address")
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: list interfaces: %v", errors.ErrSocket, err),
			"Factory", "Register", "list interfaces")
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.Equal(ip) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, errors.WrapInvalid(fmt.Errorf("%w: no interface with address %s", errors.ErrInvalidConfig, ip),
		"Factory", "Register", "find interface")
}
