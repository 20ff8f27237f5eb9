// Package listener implements the TLS accept loop and per-connection
// scheduler shared by CAPF and TVS (spec.md §4.6): bind, accept,
// handshake, spawn one goroutine per connection, enforce an optional
// concurrent-client cap, and stop the accept loop (without cancelling
// in-flight sessions) on SIGINT/SIGQUIT/SIGTERM.
package listener

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/usecallmanagernz/daemons/internal/apperr"
)

// Handler processes one accepted, TLS-handshaken connection to
// completion. It must not retain conn past return.
type Handler interface {
	HandleConn(ctx context.Context, conn net.Conn)
}

// Config configures a Server.
type Config struct {
	BindAddress   string
	BindPort      uint16
	SocketTimeout time.Duration
	MaxClients    int // 0 = unlimited
	TLSConfig     *tls.Config
	Logger        *slog.Logger
}

// Server runs the accept loop for one daemon (CAPF or TVS).
type Server struct {
	cfg         Config
	handler     Handler
	activeConns atomic.Int64
}

// New returns a Server ready to Serve.
func New(cfg Config, handler Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Server{cfg: cfg, handler: handler}
}

// Serve binds the listener and runs the accept loop until ctx is
// canceled or a termination signal arrives; in-flight sessions are
// allowed to finish (best-effort, not forcibly canceled). Serve
// returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.BindPort)

	tcpLn, err := net.Listen("tcp", addr)
	if err != nil {
		return apperr.NewTLSError(fmt.Errorf("listen on %s: %w", addr, err))
	}

	tlsLn := tls.NewListener(tcpLn, s.cfg.TLSConfig)
	defer tlsLn.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	defer signal.Stop(sigCh)

	stopCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			s.cfg.Logger.Info("received signal, stopping accept loop", "signal", sig.String())
		case <-ctx.Done():
		}

		close(stopCh)
		tlsLn.Close()
	}()

	for {
		conn, err := tlsLn.Accept()
		if err != nil {
			select {
			case <-stopCh:
				return nil
			default:
				return apperr.NewTLSError(err)
			}
		}

		s.acceptOne(ctx, conn)
	}
}

func (s *Server) acceptOne(ctx context.Context, conn net.Conn) {
	active := s.activeConns.Add(1)

	go func() {
		defer s.activeConns.Add(-1)
		defer conn.Close()
		defer func() {
			if r := recover(); r != nil {
				s.cfg.Logger.Error("session panicked", "peer", conn.RemoteAddr(), "panic", r)
			}
		}()

		wrapped := &deadlineConn{Conn: conn, timeout: s.cfg.SocketTimeout}

		if tlsConn, ok := conn.(*tls.Conn); ok {
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				if !errors.Is(err, net.ErrClosed) {
					s.cfg.Logger.Warn("TLS handshake failed", "peer", conn.RemoteAddr(), "error", err)
				}

				return
			}
		}

		if s.cfg.MaxClients > 0 && active > int64(s.cfg.MaxClients) {
			s.cfg.Logger.Warn("connection limit reached, closing connection",
				"peer", conn.RemoteAddr(), "limit", s.cfg.MaxClients)

			return
		}

		s.handler.HandleConn(ctx, wrapped)
	}()
}

// ActiveConnections reports the current live-connection count.
func (s *Server) ActiveConnections() int64 {
	return s.activeConns.Load()
}

// deadlineConn resets the read deadline before every Read so each
// blocking read, not just the connection as a whole, is bounded by
// the configured socket timeout.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (d *deadlineConn) Read(b []byte) (int, error) {
	if d.timeout > 0 {
		_ = d.Conn.SetReadDeadline(time.Now().Add(d.timeout))
	}

	return d.Conn.Read(b)
}

func (d *deadlineConn) Write(b []byte) (int, error) {
	return d.Conn.Write(b)
}
