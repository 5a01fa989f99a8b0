package env

import (
	"context"
	"fmt"
	"maps"
	"sort"
)

// Config is an env definition configuration accepted by Context.Extend.
// It is one of Map, List, Func or Ref.
type Config interface {
	envConfig()
}

// Entry is one key of a Map. The key carries the suffix grammar parsed by
// parser.ParseKey.
type Entry struct {
	Key   string
	Value Value
}

// Map is an ordered set of definitions. Order matters: it is the table order
// used when reporting errors and awaiting results.
type Map []Entry

// List is applied member by member. Func members run concurrently; their
// results are applied in list order.
type List []Config

// Func produces a Config when the context applies it.
type Func func(ctx context.Context, s *Scope) (Config, error)

// Ref declares a required variable without a value, equivalent to
// Map{{Key: name, Value: Explicit{}}}.
type Ref string

func (Map) envConfig()  {}
func (List) envConfig() {}
func (Func) envConfig() {}
func (Ref) envConfig()  {}

// Value is the right-hand side of a definition: Literal, Producer or Explicit.
type Value interface {
	envValue()
}

// Literal is a template string.
type Literal string

// Producer computes a template string at resolve time. The scope's Resolve
// method expands templates on behalf of the variable being produced, so
// references made through it count as dependencies.
type Producer func(ctx context.Context, s *Scope) (string, error)

// Explicit sets definition fields directly. Nil fields leave the current
// setting untouched; a nil Value declares the variable without a value.
type Explicit struct {
	Required *bool
	Override *bool
	Value    Value
}

func (Literal) envValue()  {}
func (Producer) envValue() {}
func (Explicit) envValue() {}

// Definition is one entry of the definition table.
type Definition struct {
	Name     string
	Required bool
	Override bool
	Value    Value
}

// HasValue reports whether the definition carries a usable value.
func (d Definition) HasValue() bool {
	return d.Value != nil
}

// FromMap converts a plain map into a Map with keys in sorted order.
func FromMap(m map[string]string) Map {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Map, 0, len(keys))
	for _, k := range keys {
		out = append(out, Entry{Key: k, Value: Literal(m[k])})
	}
	return out
}

// Bool returns a pointer to b, for Explicit fields.
func Bool(b bool) *bool {
	return &b
}

// Scope is handed to Func and Producer callbacks.
type Scope struct {
	env     map[string]string
	has     func(name string) bool
	resolve func(ctx context.Context, s string) (string, error)
}

// Lookup returns the parent environment's value for name.
func (s *Scope) Lookup(name string) (string, bool) {
	v, ok := s.env[name]
	return v, ok
}

// Env returns a copy of the parent environment.
func (s *Scope) Env() map[string]string {
	return maps.Clone(s.env)
}

// Has reports whether name is present in the parent environment or has been
// defined in the context so far.
func (s *Scope) Has(name string) bool {
	return s.has(name)
}

// Resolve expands a template string. It is only available to producers
// running during Context.Resolve.
func (s *Scope) Resolve(ctx context.Context, str string) (string, error) {
	if s.resolve == nil {
		return "", fmt.Errorf("resolving %q: %w", str, ErrNotResolving)
	}
	return s.resolve(ctx, str)
}
