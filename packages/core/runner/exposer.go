package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"sync"

	"github.com/abdul-hamid-achik/envex/packages/core/env"
	"github.com/abdul-hamid-achik/envex/packages/exchange"
	"github.com/abdul-hamid-achik/envex/packages/expose"
)

// Exposer publishes values produced by expose rules.
type Exposer interface {
	Expose(values expose.Values)
	Close() error
}

// starter is implemented by exposers that claim a resource before the child
// runs, so a conflict is reported before any work is done.
type starter interface {
	Start(ctx context.Context) error
}

// ServerExposer serves values over the exchange protocol. The server is
// bound by Start, or on the first Expose call when Start was never called.
type ServerExposer struct {
	address string
	opts    exchange.Options

	mu       sync.Mutex
	server   *exchange.Server
	err      error
	reported bool
}

// NewServerExposer returns an exposer for address.
func NewServerExposer(address string, opts exchange.Options) *ServerExposer {
	return &ServerExposer{address: address, opts: opts}
}

// Start binds the server. A second Start returns the first outcome. The
// error returned here is not reported again by Close.
func (e *ServerExposer) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listen(ctx)
	e.reported = true
	return e.err
}

func (e *ServerExposer) listen(ctx context.Context) {
	if e.server != nil || e.err != nil {
		return
	}
	e.server, e.err = exchange.Listen(ctx, e.address, e.opts)
}

func (e *ServerExposer) Expose(values expose.Values) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.server == nil && e.err == nil {
		e.listen(context.Background())
		if e.err != nil && e.opts.Logger != nil {
			e.opts.Logger.Error("exchange server failed to start", "error", e.err)
		}
	}
	if e.server == nil {
		return
	}
	for k, v := range values {
		e.server.Set(k, v)
	}
}

// Server returns the running server, or nil before the first Expose.
func (e *ServerExposer) Server() *exchange.Server {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.server
}

// Close stops the server. A startup failure not already returned by Start
// is reported here.
func (e *ServerExposer) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.server != nil {
		return e.server.Close()
	}
	if e.reported {
		return nil
	}
	return e.err
}

// FileExposer collects values and writes them as an env file on Close.
type FileExposer struct {
	path      string
	overwrite bool

	mu     sync.Mutex
	values map[string]string
}

// NewFileExposer returns an exposer writing to path.
func NewFileExposer(path string, overwrite bool) (*FileExposer, error) {
	if path == "" {
		return nil, errors.New("Missing file path")
	}
	return &FileExposer{path: path, overwrite: overwrite, values: map[string]string{}}, nil
}

func (e *FileExposer) Expose(values expose.Values) {
	e.mu.Lock()
	maps.Copy(e.values, values)
	e.mu.Unlock()
}

// Close writes the collected values. An existing file is only replaced
// when overwrite was requested.
func (e *FileExposer) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := os.Stat(e.path); err == nil && !e.overwrite {
		return fmt.Errorf("Existing file (use --overwrite flag?): %s", e.path)
	}
	return env.WriteFile(e.path, env.MapToPairs(e.values))
}

// MultiExposer fans values out to several exposers.
type MultiExposer []Exposer

func (m MultiExposer) Expose(values expose.Values) {
	for _, e := range m {
		e.Expose(values)
	}
}

// Start starts every exposer that needs it, stopping at the first failure.
func (m MultiExposer) Start(ctx context.Context) error {
	for _, e := range m {
		if err := startExposer(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every exposer and joins their errors.
func (m MultiExposer) Close() error {
	var errs []error
	for _, e := range m {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func startExposer(ctx context.Context, e Exposer) error {
	if st, ok := e.(starter); ok {
		return st.Start(ctx)
	}
	return nil
}

// combine adds next to current, flattening nested MultiExposers.
func combine(current, next Exposer) Exposer {
	switch {
	case current == nil:
		return next
	case next == nil:
		return current
	}
	if m, ok := current.(MultiExposer); ok {
		return append(m, next)
	}
	return MultiExposer{current, next}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
