package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HandlerFunc answers one request. The returned value is encoded as the
// response's res field.
type HandlerFunc func(ctx context.Context, args RawMessage) (any, error)

// Server publishes exposed values on a Unix socket. Clients keep their
// connection open and may send any number of requests over it.
type Server struct {
	path     string
	id       string
	logger   *slog.Logger
	listener net.Listener
	lock     *os.File

	mu     sync.RWMutex
	values map[string]string

	handlers map[string]HandlerFunc

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	ctx    context.Context
	cancel context.CancelFunc

	activeConnections sync.WaitGroup
	closeOnce         sync.Once
	done              chan struct{}
}

// errLocked reports that another server holds the address lock.
var errLocked = errors.New("address lock held")

// LockPath is the lock file guarding the socket at socketPath.
func LockPath(socketPath string) string { return socketPath + ".lock" }

// Listen starts serving address. It fails with ErrAddressInUse when
// another server already owns the same address, and with
// ErrServerStartTimeout when the socket cannot be bound in time. A stale
// socket file left by a dead server is removed.
//
// Ownership is an exclusive lock on LockPath, held until Close, so two
// servers racing for one address cannot both remove and rebind the socket.
// The lock file itself is left in place.
func Listen(ctx context.Context, address string, opts Options) (*Server, error) {
	path := SocketPath(opts.Dir, address)
	logger := opts.logger().With("socket", path)

	ctx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	lock, err := lockFile(LockPath(path))
	if err != nil {
		if errors.Is(err, errLocked) {
			return nil, fmt.Errorf("%w: %s", ErrAddressInUse, path)
		}
		return nil, err
	}

	listener, err := bind(ctx, path)
	if err != nil {
		unlockFile(lock)
		return nil, err
	}

	serveCtx, serveCancel := context.WithCancel(context.Background())
	s := &Server{
		path:     path,
		id:       uuid.NewString(),
		logger:   logger,
		listener: listener,
		lock:     lock,
		values:   make(map[string]string),
		handlers: make(map[string]HandlerFunc),
		conns:    make(map[net.Conn]struct{}),
		ctx:      serveCtx,
		cancel:   serveCancel,
		done:     make(chan struct{}),
	}
	s.handlers[RequestGetVar] = s.getVar
	s.handlers[RequestHello] = s.hello

	go s.serve()
	logger.Debug("exchange server listening", "id", s.id)
	return s, nil
}

func bind(ctx context.Context, path string) (net.Listener, error) {
	// A server that predates the lock file may still be answering.
	if alive(ctx, path) {
		return nil, fmt.Errorf("%w: %s", ErrAddressInUse, path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "unix", path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrServerStartTimeout
		}
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	return listener, nil
}

// alive reports whether something accepts connections on path.
func alive(ctx context.Context, path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Handle registers an extra request handler. It must be called before any
// client connects.
func (s *Server) Handle(name string, h HandlerFunc) {
	if _, exists := s.handlers[name]; exists {
		panic(fmt.Sprintf("exchange.Server: duplicate handler for request %q", name))
	}
	s.handlers[name] = h
}

// Set upserts an exposed value.
func (s *Server) Set(name, value string) {
	s.mu.Lock()
	s.values[name] = value
	s.mu.Unlock()
	s.logger.Debug("exposed", "name", name)
}

// Get returns an exposed value.
func (s *Server) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// ID is a random identifier chosen when the server started.
func (s *Server) ID() string { return s.id }

// Path is the socket path the server listens on.
func (s *Server) Path() string { return s.path }

// Done is closed once the server has shut down.
func (s *Server) Done() <-chan struct{} { return s.done }

// Close stops accepting connections, drops connected clients, waits for
// their handlers, removes the socket file and releases the address lock.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.listener.Close()
		s.connMu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.connMu.Unlock()
		<-s.done
		if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = rmErr
		}
		if unlockErr := unlockFile(s.lock); unlockErr != nil && err == nil {
			err = unlockErr
		}
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}

func (s *Server) serve() {
	defer close(s.done)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.connMu.Lock()
		if s.ctx.Err() != nil {
			s.connMu.Unlock()
			conn.Close()
			break
		}
		s.conns[conn] = struct{}{}
		s.connMu.Unlock()

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(conn)
		}()
	}
	s.activeConnections.Wait()
}

// writeTimeout is how long a response may take to reach the client.
const writeTimeout = 10 * time.Second

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		s.connMu.Lock()
		delete(s.conns, conn)
		s.connMu.Unlock()
		conn.Close()
	}()

	dec := newDecoder(conn)
	enc := newEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && s.ctx.Err() == nil {
				s.logger.Debug("invalid request", "error", err)
			}
			return
		}

		resp := s.dispatch(req)
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := enc.Encode(resp); err != nil {
			s.logger.Debug("failed to write response", "request", req.Name, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{Seq: req.Seq, Name: req.Name}

	handler, ok := s.handlers[req.Name]
	if !ok {
		resp.Err = unknownRequest(req.Name).Error()
		return resp
	}

	result, err := handler(s.ctx, req.Args)
	if err != nil {
		s.logger.Debug("request failed", "request", req.Name, "error", err)
		resp.Err = err.Error()
		return resp
	}
	if result != nil {
		data, err := marshal(result)
		if err != nil {
			resp.Err = fmt.Sprintf("internal: marshaling response: %v", err)
			return resp
		}
		resp.Res = data
	}
	return resp
}

func (s *Server) getVar(_ context.Context, raw RawMessage) (any, error) {
	var args GetVarArgs
	if len(raw) > 0 {
		if err := unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid getvar args: %w", err)
		}
	}
	res := GetVarResult{Key: args.Key}
	if v, ok := s.Get(args.Key); ok {
		res.Val = &v
	}
	return res, nil
}

func (s *Server) hello(context.Context, RawMessage) (any, error) {
	return HelloResult{ID: s.id}, nil
}
