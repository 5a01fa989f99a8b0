package expose

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/abdul-hamid-achik/envex/packages/tap"
)

// BufferCap is how much unmatched tap output a regex rule keeps around so
// that a match split across writes is still found.
const BufferCap = 4096

// rule is one queued expose action.
type rule struct {
	name  string
	apply func(ctx context.Context, a *applyState) error
}

type applyState struct {
	env    map[string]string
	tap    *tap.Tap
	expose ExposeFunc
}

func (a *applyState) scope() Scope {
	return Scope{Env: a.env, Tap: a.tap}
}

// Context holds expose rules and applies them to a run.
type Context struct {
	logger *slog.Logger

	mu    sync.Mutex
	rules []rule

	watchers sync.WaitGroup
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

// NewContext returns an empty expose context.
func NewContext(opts ...Option) *Context {
	c := &Context{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extend appends the rules of cfg in order. Regex patterns are compiled
// here so a bad pattern fails before anything runs.
func (c *Context) Extend(cfg Config) error {
	rules, err := c.compile(cfg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.rules = append(c.rules, rules...)
	c.mu.Unlock()
	return nil
}

// Len is the number of registered rules.
func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rules)
}

// Names lists the names of the registered rules in order. Func rules
// have no name and are left out.
func (c *Context) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for _, r := range c.rules {
		if r.name != "" {
			names = append(names, r.name)
		}
	}
	return names
}

func (c *Context) compile(cfg Config) ([]rule, error) {
	switch v := cfg.(type) {
	case nil:
		return nil, nil
	case List:
		var out []rule
		for _, item := range v {
			rules, err := c.compile(item)
			if err != nil {
				return nil, err
			}
			out = append(out, rules...)
		}
		return out, nil
	case Ref:
		name := string(v)
		return []rule{{name: name, apply: func(ctx context.Context, a *applyState) error {
			if val, ok := a.env[name]; ok {
				a.expose(Values{name: val})
			} else {
				c.logger.Debug("expose skipped, not in env", "name", name)
			}
			return nil
		}}}, nil
	case Func:
		if v == nil {
			return nil, nil
		}
		return []rule{{apply: func(ctx context.Context, a *applyState) error {
			vals, err := v(ctx, a.scope(), a.expose)
			if err != nil {
				return err
			}
			if len(vals) > 0 {
				a.expose(vals)
			}
			return nil
		}}}, nil
	case Map:
		out := make([]rule, 0, len(v))
		for _, entry := range v {
			r, err := c.compileEntry(entry)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported expose config type %T", cfg)
	}
}

func (c *Context) compileEntry(entry Entry) (rule, error) {
	name := entry.Name
	switch v := entry.Value.(type) {
	case Literal:
		return rule{name: name, apply: func(ctx context.Context, a *applyState) error {
			a.expose(Values{name: string(v)})
			return nil
		}}, nil
	case Producer:
		return rule{name: name, apply: func(ctx context.Context, a *applyState) error {
			single := func(val string) { a.expose(Values{name: val}) }
			val, err := v(ctx, a.scope(), single)
			if err != nil {
				return fmt.Errorf("expose %s: %w", name, err)
			}
			if val != "" {
				single(val)
			}
			return nil
		}}, nil
	case Regex:
		re, err := v.Compile()
		if err != nil {
			return rule{}, err
		}
		return rule{name: name, apply: func(ctx context.Context, a *applyState) error {
			c.watch(ctx, name, re, a)
			return nil
		}}, nil
	case nil:
		return rule{}, fmt.Errorf("expose %s: missing value", name)
	default:
		return rule{}, fmt.Errorf("expose %s: unsupported value type %T", name, entry.Value)
	}
}

// Apply runs every rule once in registration order. Literal, Ref, Producer
// and Func rules run to completion one after another. Regex rules subscribe
// to the tap and keep exposing matches until the tap closes or ctx ends;
// Wait blocks until they have finished.
//
// A nil tap behaves like an already ended one. A nil expose discards values.
func (c *Context) Apply(ctx context.Context, env map[string]string, t *tap.Tap, expose ExposeFunc) error {
	if env == nil {
		env = map[string]string{}
	}
	if t == nil {
		t = tap.Ended()
	}
	if expose == nil {
		expose = func(Values) {}
	}
	a := &applyState{env: env, tap: t, expose: expose}

	c.mu.Lock()
	rules := append([]rule(nil), c.rules...)
	c.mu.Unlock()

	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.apply(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks until every regex watcher started by Apply has drained its
// tap subscription.
func (c *Context) Wait() {
	c.watchers.Wait()
}

func (c *Context) watch(ctx context.Context, name string, re *regexp.Regexp, a *applyState) {
	r := a.tap.Subscribe()
	stop := context.AfterFunc(ctx, func() { r.Close() })

	c.watchers.Add(1)
	go func() {
		defer c.watchers.Done()
		defer stop()

		w := &watcher{name: name, re: re, expose: a.expose, logger: c.logger}
		chunk := make([]byte, 4096)
		for {
			n, err := r.Read(chunk)
			if n > 0 {
				w.feed(chunk[:n])
			}
			if err != nil {
				return
			}
		}
	}()
}
