package env

import (
	"context"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/envex/packages/core/parser"
)

// waiter tracks one variable during a resolve pass.
type waiter struct {
	name    string
	future  *future
	defined bool
	def     *Definition
}

// resolution is the state of one Resolve call.
type resolution struct {
	ctx    *Context
	runner CommandRunner

	// table and waiters are filled before any goroutine starts and are
	// read-only afterwards.
	table   map[string]*Definition
	waiters map[string]*waiter
	order   []*waiter

	graph *depGraph
}

func (r *resolution) run(ctx context.Context, defs []Definition) (map[string]string, error) {
	for i := range defs {
		d := &defs[i]
		r.table[d.Name] = d
		w := &waiter{name: d.Name, future: newFuture(), def: d}
		r.waiters[d.Name] = w

		if !d.HasValue() {
			if d.Required {
				return nil, missingRequired(d.Name)
			}
			continue
		}
		w.defined = true
		r.order = append(r.order, w)
	}

	// Literal templates reveal their dependencies up front, so cycles among
	// them are rejected before anything starts waiting.
	for _, w := range r.order {
		lit, ok := w.def.Value.(Literal)
		if !ok {
			continue
		}
		for _, dep := range parser.References(string(lit)) {
			if _, local := r.table[dep]; local && dep != w.name {
				r.graph.add(w.name, dep)
			}
		}
	}

	for _, d := range defs {
		if w := r.waiters[d.Name]; !w.defined {
			w.future.reject(undefined(d.Name))
		}
	}
	for _, w := range r.order {
		if r.graph.cyclic(w.name) {
			r.ctx.logger.Debug("dependency cycle", "name", w.name, "deps", r.graph.deps(w.name))
			w.future.reject(circular(w.name))
		}
	}

	for _, w := range r.order {
		if w.future.Settled() {
			continue
		}
		go r.process(ctx, w)
	}

	out := make(map[string]string, len(r.order))
	for _, w := range r.order {
		val, err := w.future.Await(ctx)
		if err != nil {
			return nil, err
		}
		out[w.name] = val
	}
	return out, nil
}

func (r *resolution) process(ctx context.Context, w *waiter) {
	expand := func(ctx context.Context, s string) (string, error) {
		return r.expand(ctx, w.name, s)
	}

	var raw string
	switch v := w.def.Value.(type) {
	case Literal:
		raw = string(v)
	case Producer:
		out, err := v(ctx, r.ctx.scope(expand))
		if err != nil {
			w.future.reject(err)
			return
		}
		raw = out
	default:
		w.future.reject(undefined(w.name))
		return
	}

	val, err := expand(ctx, raw)
	if err != nil {
		w.future.reject(err)
		return
	}
	r.ctx.logger.Debug("variable resolved", "name", w.name)
	w.future.resolve(val)
}

// expand resolves the references in s on behalf of the variable named from.
// A reference to a local definition waits on that definition, except a
// self-reference, which reads the parent environment instead.
func (r *resolution) expand(ctx context.Context, from, s string) (string, error) {
	segs := parser.Parse(s)
	parts := make([]string, len(segs))
	pending := make([]func() (string, error), len(segs))

	for i, seg := range segs {
		switch seg.Type {
		case parser.SegmentLiteral:
			parts[i] = seg.Text
		case parser.SegmentVariable:
			if _, local := r.table[seg.Name]; local && seg.Name != from {
				if err := r.graph.link(from, seg.Name); err != nil {
					return "", err
				}
				dep := r.waiters[seg.Name]
				pending[i] = func() (string, error) { return dep.future.Await(ctx) }
			} else if val, ok := r.ctx.parent[seg.Name]; ok {
				parts[i] = val
			} else {
				return "", undefined(seg.Name)
			}
		case parser.SegmentCommand:
			if r.runner == nil {
				return "", &ResolveError{Kind: ErrNoCommandRunner, Name: seg.Text}
			}
			command, profile := seg.Text, seg.Profile
			pending[i] = func() (string, error) {
				r.ctx.logger.Debug("running command substitution", "variable", from, "command", command, "profile", profile)
				return r.runner(ctx, command, profile)
			}
		}
	}

	errs := make([]error, len(segs))
	var wg sync.WaitGroup
	for i, fn := range pending {
		if fn == nil {
			continue
		}
		wg.Add(1)
		go func(i int, fn func() (string, error)) {
			defer wg.Done()
			parts[i], errs[i] = fn()
		}(i, fn)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return "", err
		}
	}
	return strings.Join(parts, ""), nil
}
