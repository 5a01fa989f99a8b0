package env

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/abdul-hamid-achik/envex/packages/core/parser"
)

// CommandRunner evaluates a $(...) substitution. profile is empty unless the
// command carried a [profile] prefix.
type CommandRunner func(ctx context.Context, command, profile string) (string, error)

// Context collects env definitions layered over a frozen parent environment
// and resolves them into concrete values.
//
// Extend only queues work. The queue is drained in call order, one item at a
// time, the next time Resolve or Definitions runs.
type Context struct {
	parent map[string]string
	logger *slog.Logger

	// drainMu makes the queue single-consumer.
	drainMu sync.Mutex

	mu    sync.Mutex
	queue []Config
	err   error
	defs  []*Definition
	index map[string]*Definition
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger used for debug tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewContext creates a context over a snapshot of parent. Later changes to
// parent are not observed.
func NewContext(parent map[string]string, opts ...Option) *Context {
	c := &Context{
		parent: maps.Clone(parent),
		logger: slog.New(slog.DiscardHandler),
		index:  make(map[string]*Definition),
	}
	if c.parent == nil {
		c.parent = make(map[string]string)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extend queues a definition config. A later definition of the same name
// merges onto the earlier one. A name already present in the parent
// environment is skipped unless its key carries the override marker.
func (c *Context) Extend(cfg Config) {
	if cfg == nil {
		return
	}
	c.mu.Lock()
	c.queue = append(c.queue, cfg)
	c.mu.Unlock()
}

// Definitions drains the queue and returns a copy of the definition table in
// table order.
func (c *Context) Definitions(ctx context.Context) ([]Definition, error) {
	if err := c.drain(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Definition, len(c.defs))
	for i, d := range c.defs {
		out[i] = *d
	}
	return out, nil
}

// drain applies queued configs strictly in order. A failed application
// sticks: every later call reports the same error.
func (c *Context) drain(ctx context.Context) error {
	c.drainMu.Lock()
	defer c.drainMu.Unlock()

	for {
		c.mu.Lock()
		if c.err != nil {
			err := c.err
			c.mu.Unlock()
			return err
		}
		if len(c.queue) == 0 {
			c.mu.Unlock()
			return nil
		}
		cfg := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		if err := c.apply(ctx, cfg); err != nil {
			c.mu.Lock()
			c.err = err
			c.queue = nil
			c.mu.Unlock()
			return err
		}
	}
}

func (c *Context) apply(ctx context.Context, cfg Config) error {
	switch v := cfg.(type) {
	case nil:
		return nil
	case Ref:
		return c.applyMap(Map{{Key: string(v), Value: Explicit{}}})
	case Map:
		return c.applyMap(v)
	case Func:
		if v == nil {
			return nil
		}
		out, err := v(ctx, c.scope(nil))
		if err != nil {
			return err
		}
		return c.apply(ctx, out)
	case List:
		return c.applyList(ctx, v)
	default:
		return fmt.Errorf("unsupported env config type %T", cfg)
	}
}

// applyList runs the list's Func members concurrently, then applies every
// member in list order.
func (c *Context) applyList(ctx context.Context, list List) error {
	items := make([]Config, len(list))
	errs := make([]error, len(list))

	var wg sync.WaitGroup
	scope := c.scope(nil)
	for i, item := range list {
		fn, ok := item.(Func)
		if !ok || fn == nil {
			items[i] = item
			continue
		}
		wg.Add(1)
		go func(i int, fn Func) {
			defer wg.Done()
			items[i], errs[i] = fn(ctx, scope)
		}(i, fn)
	}
	wg.Wait()

	for i := range items {
		if errs[i] != nil {
			return errs[i]
		}
	}
	for _, item := range items {
		if err := c.apply(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) applyMap(m Map) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range m {
		key, err := parser.ParseKey(entry.Key)
		if err != nil {
			return err
		}

		def := patch{required: key.Required}
		if key.Override {
			def.override = Bool(true)
		}
		def.assign(entry.Value)

		if existing, ok := c.index[key.Name]; ok {
			def.mergeInto(existing)
			continue
		}
		if !def.isOverride() {
			if _, inherited := c.parent[key.Name]; inherited {
				c.logger.Debug("definition skipped, inherited from parent", "name", key.Name)
				continue
			}
		}

		d := &Definition{Name: key.Name}
		def.mergeInto(d)
		c.defs = append(c.defs, d)
		c.index[key.Name] = d
	}
	return nil
}

// patch is a partially specified definition produced by one map entry.
type patch struct {
	required bool
	override *bool
	value    Value
}

func (p *patch) assign(v Value) {
	switch val := v.(type) {
	case nil:
	case Explicit:
		if val.Required != nil {
			p.required = *val.Required
		}
		if val.Override != nil {
			p.override = Bool(*val.Override)
		}
		p.assign(val.Value)
	default:
		p.required = true
		p.value = v
	}
}

func (p *patch) isOverride() bool {
	return p.override != nil && *p.override
}

func (p *patch) mergeInto(d *Definition) {
	d.Required = p.required
	if p.override != nil {
		d.Override = *p.override
	}
	if p.value != nil {
		d.Value = p.value
	}
}

func (c *Context) has(name string) bool {
	if _, ok := c.parent[name]; ok {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[name]
	return ok
}

func (c *Context) scope(resolve func(context.Context, string) (string, error)) *Scope {
	return &Scope{env: c.parent, has: c.has, resolve: resolve}
}

// Resolve drains the queue and resolves every definition that has a value.
// The result holds only names defined in this context; parent entries are
// not echoed back. Independent variables resolve concurrently. runner may
// be nil, in which case any $(...) substitution fails.
func (c *Context) Resolve(ctx context.Context, runner CommandRunner) (map[string]string, error) {
	if err := c.drain(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defs := make([]Definition, len(c.defs))
	for i, d := range c.defs {
		defs[i] = *d
	}
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &resolution{
		ctx:     c,
		runner:  runner,
		table:   make(map[string]*Definition, len(defs)),
		waiters: make(map[string]*waiter, len(defs)),
		graph:   newDepGraph(),
	}
	return r.run(ctx, defs)
}
