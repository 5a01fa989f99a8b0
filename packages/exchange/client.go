package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// dialInterval paces connection attempts while a server is coming up.
const dialInterval = 50 * time.Millisecond

type result struct {
	resp Response
	err  error
}

// Client holds one connection to a server. Requests may be sent
// concurrently; responses are matched to requests by sequence number.
type Client struct {
	conn   net.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	seq     uint64
	pending map[uint64]chan result
	err     error

	done chan struct{}
}

// Dial connects to the server for address. Attempts are retried until
// opts.Timeout elapses, after which ErrConnectTimeout is returned.
func Dial(ctx context.Context, address string, opts Options) (*Client, error) {
	path := SocketPath(opts.Dir, address)
	logger := opts.logger().With("socket", path)

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(dialInterval), 1)
	var d net.Dialer
	var lastErr error
	for {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		conn, err := d.DialContext(ctx, "unix", path)
		if err == nil {
			c := &Client{
				conn:    conn,
				logger:  logger,
				pending: make(map[uint64]chan result),
				done:    make(chan struct{}),
			}
			go c.readLoop()
			return c, nil
		}
		lastErr = err
		logger.Debug("connect attempt failed", "error", err)
	}

	if err := parent.Err(); err != nil {
		return nil, err
	}
	if lastErr != nil {
		logger.Debug("giving up", "error", lastErr)
	}
	return nil, ErrConnectTimeout
}

// Send issues a request and decodes the response's result into out when
// out is non-nil. Errors reported by the server are returned as
// *RemoteError.
func (c *Client) Send(ctx context.Context, name string, args any, out any) error {
	req := Request{Name: name}
	if args != nil {
		data, err := marshal(args)
		if err != nil {
			return fmt.Errorf("encoding %s args: %w", name, err)
		}
		req.Args = data
	}

	ch := make(chan result, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.seq++
	req.Seq = c.seq
	c.pending[req.Seq] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := newEncoder(c.conn).Encode(req)
	c.writeMu.Unlock()
	if err != nil {
		c.fail(fmt.Errorf("%w: writing request: %v", ErrClosed, err))
	}

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.Seq)
		c.mu.Unlock()
		return ctx.Err()
	}
	if r.err != nil {
		return r.err
	}
	if r.resp.Err != "" {
		return &RemoteError{Request: name, Message: r.resp.Err}
	}
	if out != nil && len(r.resp.Res) > 0 {
		if err := unmarshal(r.resp.Res, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", name, err)
		}
	}
	return nil
}

// GetVar asks for an exposed value. The boolean is false when the server
// has no value for key.
func (c *Client) GetVar(ctx context.Context, key string) (string, bool, error) {
	var res GetVarResult
	if err := c.Send(ctx, RequestGetVar, GetVarArgs{Key: key}, &res); err != nil {
		return "", false, err
	}
	if res.Val == nil {
		return "", false, nil
	}
	return *res.Val, true, nil
}

// Hello returns the server's id.
func (c *Client) Hello(ctx context.Context) (string, error) {
	var res HelloResult
	if err := c.Send(ctx, RequestHello, nil, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

// Close disconnects. Pending requests fail with ErrClosed.
func (c *Client) Close() error {
	c.fail(ErrClosed)
	err := c.conn.Close()
	<-c.done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)
	dec := newDecoder(c.conn)
	for {
		var resp Response
		if err := dec.Decode(&resp); err != nil {
			c.fail(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.Seq]
		delete(c.pending, resp.Seq)
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("response without pending request", "seq", resp.Seq, "request", resp.Name)
			continue
		}
		ch <- result{resp: resp}
	}
}

// fail rejects every pending request with err. The first failure sticks.
func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
	for seq, ch := range c.pending {
		ch <- result{err: c.err}
		delete(c.pending, seq)
	}
}
