package exchange

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Request names understood by every server.
const (
	RequestGetVar = "getvar"
	RequestHello  = "hello"
)

// DefaultTimeout bounds server startup and client connection.
const DefaultTimeout = 5 * time.Second

var (
	ErrUnknownRequest     = errors.New("unknown request")
	ErrServerStartTimeout = errors.New("server start timeout")
	ErrConnectTimeout     = errors.New("client connect timeout")
	ErrAddressInUse       = errors.New("exchange address already served")
	ErrClosed             = errors.New("exchange connection closed")
)

// Options configures servers and clients.
type Options struct {
	// Dir holds the socket files. Empty means DefaultDir.
	Dir string
	// Timeout bounds startup for servers and connecting for clients.
	// Zero means DefaultTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// Request is sent by a client. Seq increases with every request on a
// connection.
type Request struct {
	Seq  uint64     `cbor:"seq"`
	Name string     `cbor:"name"`
	Args RawMessage `cbor:"args,omitempty"`
}

// Response echoes the Seq and Name of its request and carries either Res or
// Err.
type Response struct {
	Seq  uint64     `cbor:"seq"`
	Name string     `cbor:"name"`
	Res  RawMessage `cbor:"res,omitempty"`
	Err  string     `cbor:"err,omitempty"`
}

// GetVarArgs are the arguments of a getvar request.
type GetVarArgs struct {
	Key string `cbor:"key"`
}

// GetVarResult answers getvar. Val is nil when the key was never exposed.
type GetVarResult struct {
	Key string  `cbor:"key"`
	Val *string `cbor:"val"`
}

// HelloResult identifies a running server.
type HelloResult struct {
	ID string `cbor:"id"`
}

// RemoteError is an error reported by the server for one request.
type RemoteError struct {
	Request string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	if strings.HasPrefix(e.Message, ErrUnknownRequest.Error()+": ") {
		return ErrUnknownRequest
	}
	return nil
}

func unknownRequest(name string) error {
	return fmt.Errorf("%w: %s", ErrUnknownRequest, name)
}
