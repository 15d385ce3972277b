package http

import (
	"net"
	"strconv"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/chmicro/chmicro/core/ioloop"
	"github.com/chmicro/chmicro/core/logging"
)

// ListenAddress is where a server binds.
type ListenAddress struct {
	Host string
	Port int
}

func (a ListenAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Server owns one listening socket and spawns a session per accepted
// connection. Each session is pinned to one loop of the pool; the acceptor
// itself lives on a loop chosen at Start.
type Server struct {
	pool   *ioloop.Pool
	addr   ListenAddress
	router *Router

	running    atomic.Bool
	lfd        int
	port       int
	acceptLoop *ioloop.Loop
}

// NewServer creates a server. The router must be fully built; the server
// reads it without locking for its whole lifetime.
func NewServer(pool *ioloop.Pool, addr ListenAddress, router *Router) *Server {
	return &Server{pool: pool, addr: addr, router: router, lfd: -1}
}

// Start binds and listens. It is idempotent via a compare-and-set on the
// running flag. Bind and listen failures are logged and leave the server
// stopped; nothing is thrown at the caller.
func (s *Server) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}

	ip := net.ParseIP(s.addr.Host)
	if ip == nil {
		logging.Error("http: invalid listen address", "host", s.addr.Host)
		s.running.Store(false)
		return
	}

	fd, sa, err := listenSocket(ip, s.addr.Port)
	if err != nil {
		logging.Error("http: bind/listen failed", "addr", s.addr.String(), "error", err)
		s.running.Store(false)
		return
	}
	s.lfd = fd
	s.port = boundPort(fd, sa, s.addr.Port)

	s.acceptLoop = s.pool.Next()
	if err := s.acceptLoop.Register(fd, s.onAcceptable); err != nil {
		logging.Error("http: acceptor registration failed", "error", err)
		unix.Close(fd)
		s.lfd = -1
		s.running.Store(false)
		return
	}

	logging.Info("HTTP server listening", "host", s.addr.Host, "port", s.port)
}

// Stop cancels and closes the acceptor. Sessions already accepted finish
// their in-flight exchange; loop shutdown aborts whatever remains. A second
// call is a no-op.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if s.lfd >= 0 {
		s.acceptLoop.Deregister(s.lfd)
		unix.Close(s.lfd)
		s.lfd = -1
	}
}

// Port returns the bound port, which differs from the configured one when
// the server was asked to listen on port 0.
func (s *Server) Port() int { return s.port }

func (s *Server) onAcceptable(ioloop.Event) {
	for {
		nfd, _, err := unix.Accept(s.lfd)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			// Keep accepting while running; stay silent once stopped.
			if s.running.Load() {
				logging.Warn("http: accept failed", "error", err)
			}
			return
		}

		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			continue
		}
		unix.CloseOnExec(nfd)
		unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

		loop := s.pool.Next()
		if err := newSession(s, loop, nfd); err != nil {
			logging.Warn("http: session registration failed", "error", err)
			unix.Close(nfd)
		}
	}
}

// listenSocket creates a nonblocking listener with SO_REUSEADDR.
func listenSocket(ip net.IP, port int) (int, unix.Sockaddr, error) {
	var (
		family int
		sa     unix.Sockaddr
	)
	if ip4 := ip.To4(); ip4 != nil {
		family = unix.AF_INET
		a := &unix.SockaddrInet4{Port: port}
		copy(a.Addr[:], ip4)
		sa = a
	} else {
		family = unix.AF_INET6
		a := &unix.SockaddrInet6{Port: port}
		copy(a.Addr[:], ip.To16())
		sa = a
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	unix.CloseOnExec(fd)
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	return fd, sa, nil
}

func boundPort(fd int, _ unix.Sockaddr, configured int) int {
	if configured != 0 {
		return configured
	}
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return configured
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return a.Port
	case *unix.SockaddrInet6:
		return a.Port
	}
	return configured
}
