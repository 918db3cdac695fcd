// Package tcp accepts chat connections and hands each one to a session handler.
package tcp

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/runtime"
	"chat-relay/transport"
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

const acceptRetryDelay = 50 * time.Millisecond

type Server struct {
	log             *slog.Logger
	address         string
	handler         contract.SessionHandler
	maxLineLength   int
	shutdownTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	sessions sync.WaitGroup
}

func NewServer(log *slog.Logger, address string, handler contract.SessionHandler,
	maxLineLength int, shutdownTimeout time.Duration) *Server {
	return &Server{
		log:             log,
		address:         address,
		handler:         handler,
		maxLineLength:   maxLineLength,
		shutdownTimeout: shutdownTimeout,
		conns:           make(map[net.Conn]struct{}),
	}
}

// Listen binds the listening socket. Serve calls it when needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	s.listener = listener
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled.
// On shutdown the listener and every open connection are closed, then Serve
// waits for the running sessions, at most the shutdown timeout.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = listener.Close()
		s.closeConnections()
	})
	defer stop()

	s.log.Info("Listening", "address", listener.Addr().String())
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || goerrors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Warn("Failed to accept connection", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(acceptRetryDelay):
			}
			continue
		}
		if !s.track(conn) {
			_ = conn.Close()
			break
		}
		s.sessions.Add(1)
		go s.handle(ctx, conn)
	}

	// Accept may have failed before AfterFunc ran
	_ = listener.Close()
	s.closeConnections()
	return s.wait()
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer s.sessions.Done()
	defer s.untrack(conn)

	id := domain.PeerIDFromAddr(conn.RemoteAddr())
	s.log.Info("Accepted connection", "peer", id)
	err := s.handler.Handle(ctx, id, transport.NewLineConn(conn, s.maxLineLength))
	switch {
	case err == nil:
	case runtime.IsDisconnect(err):
		s.log.Debug("Session ended", "peer", id, "error", err)
	default:
		s.log.Warn("Failed to handle client", "peer", id, "error", err)
	}
	s.log.Debug("Connection closed", "peer", id)
}

// track returns false once the server is shutting down.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns != nil {
		delete(s.conns, conn)
	}
	_ = conn.Close()
}

func (s *Server) closeConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for conn := range conns {
		_ = conn.Close()
	}
}

func (s *Server) wait() error {
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("All sessions closed")
		return nil
	case <-time.After(s.shutdownTimeout):
		return fmt.Errorf("sessions still running after %s", s.shutdownTimeout)
	}
}

// ConnCount returns the number of connections currently open.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
