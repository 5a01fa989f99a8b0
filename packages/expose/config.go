package expose

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/envex/packages/tap"
)

// Values maps exposed names to values.
type Values map[string]string

// ExposeFunc publishes values. It may be called from several goroutines.
type ExposeFunc func(Values)

// Scope is handed to Func and Producer rules.
type Scope struct {
	Env map[string]string
	Tap *tap.Tap
}

// Config is an expose configuration accepted by Context.Extend.
// It is one of Map, List, Func or Ref.
type Config interface {
	exposeConfig()
}

// Entry is one named rule of a Map.
type Entry struct {
	Name  string
	Value Value
}

// Map is an ordered set of named rules.
type Map []Entry

// List extends each member in order.
type List []Config

// Func is invoked once per Apply. It may expose values through the callback
// (any number of times, from any goroutine, for as long as the tap lives)
// and may also return values to expose.
type Func func(ctx context.Context, s Scope, expose ExposeFunc) (Values, error)

// Ref exposes the resolved env value of the same name.
type Ref string

func (Map) exposeConfig()  {}
func (List) exposeConfig() {}
func (Func) exposeConfig() {}
func (Ref) exposeConfig()  {}

// Value is the right-hand side of a named rule: Literal, Producer or Regex.
type Value interface {
	exposeValue()
}

// Literal exposes a fixed string.
type Literal string

// Producer computes the value for its rule's name. The callback exposes a
// value immediately; a non-empty return value is exposed as well.
type Producer func(ctx context.Context, s Scope, expose func(string)) (string, error)

// Regex watches the tap. Each match exposes capture group 1, or the whole
// match when the pattern has no groups. Flags is a subset of "imsU" applied
// as inline flags.
//
// Output is matched as it arrives, so a pattern matches as soon as the text
// read so far satisfies it. A value the child writes in several chunks is
// only captured whole when the pattern ends with a terminator the value
// cannot contain: `port (\d+)\n` waits for the end of the line, while
// `port (\d+)` may expose "30" when "3000" arrives as "30" then "00". A
// trailing \b is not enough because it also matches at the end of the
// buffered text.
type Regex struct {
	Pattern string
	Flags   string
}

func (Literal) exposeValue()  {}
func (Producer) exposeValue() {}
func (Regex) exposeValue()    {}

// Compile builds the regular expression for r.
func (r Regex) Compile() (*regexp.Regexp, error) {
	pattern := r.Pattern
	if r.Flags != "" {
		if strings.Trim(r.Flags, "imsU") != "" {
			return nil, fmt.Errorf("Invalid regex value: %s (flags %q)", r.Pattern, r.Flags)
		}
		pattern = "(?" + r.Flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil || r.Pattern == "" {
		return nil, fmt.Errorf("Invalid regex value: %s", r.Pattern)
	}
	return re, nil
}
