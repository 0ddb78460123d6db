package transport

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"logflow/pkg/apperror"
	"logflow/pkg/logger"
)

// Handler processes one frame received from a connection. It is called
// synchronously from that connection's read loop, so a slow handler backs
// up only its own connection, not the whole server.
type Handler func(ctx context.Context, connID, remoteAddr string, frame []byte)

// ConnectionInfo is a read-only snapshot of one active connection.
type ConnectionInfo struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time
}

// Server accepts many long-lived client connections, reading CRLF-delimited
// frames off each and dispatching them to a Handler. One goroutine per
// connection; Shutdown waits for all of them to drain.
type Server struct {
	addr        string
	handler     Handler
	readTimeout time.Duration

	listener net.Listener
	wg       sync.WaitGroup

	mu    sync.RWMutex
	conns map[string]*trackedConn

	nextID  atomic.Uint64
	closing atomic.Bool
}

type trackedConn struct {
	conn        net.Conn
	remoteAddr  string
	connectedAt time.Time
}

// NewServer builds a Server listening on addr. readTimeout, if nonzero, is
// applied as a per-read deadline so a silent client doesn't pin a goroutine
// forever; zero disables the deadline.
func NewServer(addr string, handler Handler, readTimeout time.Duration) *Server {
	return &Server{
		addr:        addr,
		handler:     handler,
		readTimeout: readTimeout,
		conns:       make(map[string]*trackedConn),
	}
}

// Start binds the listener and begins accepting connections in the
// background. It returns once the listener is bound; Accept errors after
// that point are logged, not returned.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeListenFailed, "failed to bind transport listener").
			WithDetails("addr", s.addr)
	}
	s.listener = lis

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	logger.Log.Info("transport server listening", "addr", s.addr)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closing.Load() {
				return
			}
			logger.Log.Warn("transport accept failed", "error", err)
			continue
		}

		id := strconv.FormatUint(s.nextID.Add(1), 10)
		tc := &trackedConn{conn: conn, remoteAddr: conn.RemoteAddr().String(), connectedAt: time.Now()}

		s.mu.Lock()
		s.conns[id] = tc
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(ctx, id, tc)
	}
}

func (s *Server) serve(ctx context.Context, id string, tc *trackedConn) {
	defer s.wg.Done()
	defer func() {
		_ = tc.conn.Close()
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
	}()

	if s.readTimeout > 0 {
		_ = tc.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	scanner := NewFrameScanner(tc.conn)
	for scanner.Scan() {
		if s.readTimeout > 0 {
			_ = tc.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		frame := make([]byte, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())
		s.handler(ctx, id, tc.remoteAddr, frame)
	}
	if err := scanner.Err(); err != nil {
		logger.Log.Debug("transport connection read error", "conn_id", id, "error", err)
	}
}

// Connections returns a snapshot of currently open connections.
func (s *Server) Connections() []ConnectionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ConnectionInfo, 0, len(s.conns))
	for id, tc := range s.conns {
		out = append(out, ConnectionInfo{ID: id, RemoteAddr: tc.remoteAddr, ConnectedAt: tc.connectedAt})
	}
	return out
}

// Shutdown stops accepting new connections, closes all open ones, and waits
// for their read loops to exit or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)
	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.mu.Lock()
	for _, tc := range s.conns {
		_ = tc.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
