package env

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolve(t *testing.T, c *Context, runner CommandRunner) (map[string]string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Resolve(ctx, runner)
}

func TestResolve_UnknownVar(t *testing.T) {
	c := NewContext(nil)
	c.Extend(Map{{Key: "A", Value: Literal("$B")}})

	_, err := resolve(t, c, nil)
	require.Error(t, err)
	assert.EqualError(t, err, "Undefined env var: B")
	assert.ErrorIs(t, err, ErrUndefined)
}

func TestResolve_Simple(t *testing.T) {
	c := NewContext(nil)
	c.Extend(Map{
		{Key: "A", Value: Literal("abc")},
		{Key: "B", Value: Producer(func(ctx context.Context, s *Scope) (string, error) {
			return s.Resolve(ctx, "$A")
		})},
	})

	env, err := resolve(t, c, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "abc", "B": "abc"}, env)
}

func TestResolve_ProducerExpansion(t *testing.T) {
	c := NewContext(nil)
	c.Extend(Map{
		{Key: "A", Value: Producer(func(ctx context.Context, s *Scope) (string, error) {
			time.Sleep(10 * time.Millisecond)
			return "abc", nil
		})},
		{Key: "B", Value: Literal("$A")},
	})

	env, err := resolve(t, c, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", env["A"])
	assert.Equal(t, "abc", env["B"])
}

func TestResolve_ProducerResultIsExpanded(t *testing.T) {
	c := NewContext(map[string]string{"HOST": "localhost"})
	c.Extend(Map{
		{Key: "URL", Value: Producer(func(ctx context.Context, s *Scope) (string, error) {
			return "http://$HOST/", nil
		})},
	})

	env, err := resolve(t, c, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/", env["URL"])
}

func TestResolve_CircularProducers(t *testing.T) {
	c := NewContext(nil)
	c.Extend(Map{
		{Key: "A", Value: Producer(func(ctx context.Context, s *Scope) (string, error) {
			return s.Resolve(ctx, "$B")
		})},
		{Key: "B", Value: Producer(func(ctx context.Context, s *Scope) (string, error) {
			return s.Resolve(ctx, "$A")
		})},
	})

	_, err := resolve(t, c, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircular)
	assert.Contains(t, err.Error(), "Circular dependency: ")
}

func TestResolve_CircularTemplates(t *testing.T) {
	c := NewContext(nil)
	c.Extend(Map{
		{Key: "A", Value: Literal("$E")},
		{Key: "B", Value: Literal("$C")},
		{Key: "C", Value: Literal("$D")},
		{Key: "D", Value: Literal("$B")},
		{Key: "E", Value: Literal("abc")},
	})

	_, err := resolve(t, c, nil)
	require.Error(t, err)
	assert.EqualError(t, err, "Circular dependency: B")
}

func TestResolve_TwoNodeCycle(t *testing.T) {
	c := NewContext(nil)
	c.Extend(Map{
		{Key: "A", Value: Literal("$B")},
		{Key: "B", Value: Literal("$A")},
	})

	_, err := resolve(t, c, nil)
	require.Error(t, err)
	assert.EqualError(t, err, "Circular dependency: A")
}

func TestResolve_MixedCycle(t *testing.T) {
	c := NewContext(nil)
	c.Extend(Map{
		{Key: "A", Value: Producer(func(ctx context.Context, s *Scope) (string, error) {
			return s.Resolve(ctx, "x$B")
		})},
		{Key: "B", Value: Literal("$A")},
	})

	_, err := resolve(t, c, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircular)
}

func TestResolve_DiamondIsNotCycle(t *testing.T) {
	c := NewContext(nil)
	c.Extend(Map{
		{Key: "A", Value: Literal("$B+$C")},
		{Key: "B", Value: Literal("b$D")},
		{Key: "C", Value: Literal("c$D")},
		{Key: "D", Value: Literal("d")},
	})

	env, err := resolve(t, c, nil)
	require.NoError(t, err)
	assert.Equal(t, "bd+cd", env["A"])
}

func TestResolve_LongChain(t *testing.T) {
	c := NewContext(nil)
	c.Extend(Map{
		{Key: "A", Value: Literal("$B-A")},
		{Key: "B", Value: Literal("$C-B")},
		{Key: "C", Value: Literal("$D-C")},
		{Key: "D", Value: Literal("$E-D")},
		{Key: "E", Value: Literal("abc-E")},
	})

	env, err := resolve(t, c, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"A": "abc-E-D-C-B-A",
		"B": "abc-E-D-C-B",
		"C": "abc-E-D-C",
		"D": "abc-E-D",
		"E": "abc-E",
	}, env)
}

func TestResolve_Inheritance(t *testing.T) {
	tests := []struct {
		name     string
		parent   map[string]string
		config   Map
		expected map[string]string
	}{
		{
			name:     "inherit var",
			parent:   map[string]string{"PORT": "80"},
			config:   Map{{Key: "MYPORT", Value: Literal("${PORT}")}},
			expected: map[string]string{"MYPORT": "80"},
		},
		{
			name:     "parent wins without override",
			parent:   map[string]string{"PATH": "/bin"},
			config:   Map{{Key: "PATH", Value: Literal("/usr/local/bin")}},
			expected: map[string]string{},
		},
		{
			name:     "override extends parent value",
			parent:   map[string]string{"PATH": "/bin"},
			config:   Map{{Key: "PATH!", Value: Literal("${PATH}:/usr/local/bin")}},
			expected: map[string]string{"PATH": "/bin:/usr/local/bin"},
		},
		{
			name:   "explicit override",
			parent: map[string]string{"PATH": "/bin"},
			config: Map{{Key: "PATH", Value: Explicit{Override: Bool(true), Value: Literal("/opt")}}},
			expected: map[string]string{"PATH": "/opt"},
		},
		{
			name:   "parent value is not re-expanded",
			parent: map[string]string{"API_URL": "https://${API_HOST}/"},
			config: Map{
				{Key: "MY_API_URL", Value: Literal("$API_URL")},
				{Key: "API_HOST", Value: Literal("abc")},
			},
			expected: map[string]string{"MY_API_URL": "https://${API_HOST}/", "API_HOST": "abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewContext(tt.parent)
			c.Extend(tt.config)

			env, err := resolve(t, c, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, env)
		})
	}
}

func TestResolve_ParentIsSnapshot(t *testing.T) {
	parent := map[string]string{"A": "1"}
	c := NewContext(parent)
	parent["A"] = "2"
	c.Extend(Map{{Key: "B", Value: Literal("$A")}})

	env, err := resolve(t, c, nil)
	require.NoError(t, err)
	assert.Equal(t, "1", env["B"])
}

func TestResolve_SelfReferenceWithoutParent(t *testing.T) {
	c := NewContext(nil)
	c.Extend(Map{{Key: "A", Value: Literal("$A")}})

	_, err := resolve(t, c, nil)
	assert.EqualError(t, err, "Undefined env var: A")
}

func TestResolve_MissingRequired(t *testing.T) {
	c := NewContext(nil)
	c.Extend(Ref("TOKEN"))

	_, err := resolve(t, c, nil)
	require.Error(t, err)
	assert.EqualError(t, err, "Missing required env: TOKEN")
	assert.ErrorIs(t, err, ErrMissingRequired)
}

func TestResolve_RefSatisfiedByLaterExtend(t *testing.T) {
	c := NewContext(nil)
	c.Extend(List{Ref("TOKEN")})
	c.Extend(Map{{Key: "TOKEN", Value: Literal("t0k3n")}})

	env, err := resolve(t, c, nil)
	require.NoError(t, err)
	assert.Equal(t, "t0k3n", env["TOKEN"])
}

func TestResolve_OptionalWithoutValue(t *testing.T) {
	c := NewContext(nil)
	c.Extend(Map{
		{Key: "DEBUG?", Value: Explicit{}},
		{Key: "[VERBOSE]", Value: nil},
		{Key: "A", Value: Literal("a")},
	})

	env, err := resolve(t, c, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "a"}, env)
}

func TestResolve_ReferenceToOptionalWithoutValue(t *testing.T) {
	c := NewContext(nil)
	c.Extend(Map{
		{Key: "DEBUG?", Value: Explicit{}},
		{Key: "A", Value: Literal("x$DEBUG")},
	})

	_, err := resolve(t, c, nil)
	assert.EqualError(t, err, "Undefined env var: DEBUG")
}

func TestResolve_EmptyKey(t *testing.T) {
	c := NewContext(nil)
	c.Extend(Map{{Key: "!", Value: Literal("x")}})

	_, err := resolve(t, c, nil)
	assert.EqualError(t, err, "Empty environment variable name")
}

func TestResolve_CommandSubstitution(t *testing.T) {
	var calls atomic.Int32
	runner := func(ctx context.Context, command, profile string) (string, error) {
		calls.Add(1)
		return fmt.Sprintf("<%s|%s>", command, profile), nil
	}

	c := NewContext(nil)
	c.Extend(Map{
		{Key: "A", Value: Literal("a=$(echo hi)")},
		{Key: "B", Value: Literal(`$([other] printf \)) $A`)},
	})

	env, err := resolve(t, c, runner)
	require.NoError(t, err)
	assert.Equal(t, "a=<echo hi|>", env["A"])
	assert.Equal(t, "<printf )|other> a=<echo hi|>", env["B"])
	assert.Equal(t, int32(2), calls.Load())
}

func TestResolve_NoCommandRunner(t *testing.T) {
	c := NewContext(nil)
	c.Extend(Map{{Key: "A", Value: Literal("$(date)")}})

	_, err := resolve(t, c, nil)
	assert.EqualError(t, err, "No command runner to resolve: $(date)")
	assert.ErrorIs(t, err, ErrNoCommandRunner)
}

func TestResolve_CommandError(t *testing.T) {
	boom := errors.New("Process exit code (1) is non-zero: false")
	runner := func(ctx context.Context, command, profile string) (string, error) {
		return "", boom
	}

	c := NewContext(nil)
	c.Extend(Map{
		{Key: "A", Value: Literal("$(false)")},
		{Key: "B", Value: Literal("$A")},
	})

	_, err := resolve(t, c, runner)
	assert.ErrorIs(t, err, boom)
}

func TestResolve_ConcurrentCommands(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int32
	runner := func(ctx context.Context, command, profile string) (string, error) {
		if started.Add(1) == 2 {
			close(release)
		}
		select {
		case <-release:
			return command, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	c := NewContext(nil)
	c.Extend(Map{
		{Key: "A", Value: Literal("$(a)")},
		{Key: "B", Value: Literal("$(b)")},
	})

	env, err := resolve(t, c, runner)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "a", "B": "b"}, env)
}

func TestExtend_MergesDefinitions(t *testing.T) {
	c := NewContext(nil)
	c.Extend(Map{{Key: "A?", Value: Explicit{}}})
	c.Extend(Map{{Key: "A", Value: Explicit{Value: Literal("1")}}})

	defs, err := c.Definitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "A", defs[0].Name)
	assert.True(t, defs[0].Required)
	assert.Equal(t, Literal("1"), defs[0].Value)
}

func TestExtend_FuncAndListOrder(t *testing.T) {
	c := NewContext(map[string]string{"BASE": "b"})
	c.Extend(List{
		Func(func(ctx context.Context, s *Scope) (Config, error) {
			time.Sleep(20 * time.Millisecond)
			return Map{{Key: "X", Value: Literal("first")}}, nil
		}),
		Map{{Key: "X", Value: Literal("second")}},
		Func(func(ctx context.Context, s *Scope) (Config, error) {
			base, _ := s.Lookup("BASE")
			return Map{{Key: "Y", Value: Literal(base)}}, nil
		}),
	})

	env, err := resolve(t, c, nil)
	require.NoError(t, err)
	assert.Equal(t, "second", env["X"])
	assert.Equal(t, "b", env["Y"])
}

func TestExtend_FuncSeesEarlierDefinitions(t *testing.T) {
	c := NewContext(nil)
	c.Extend(Map{{Key: "A", Value: Literal("1")}})
	c.Extend(Func(func(ctx context.Context, s *Scope) (Config, error) {
		if s.Has("A") {
			return Map{{Key: "HAS_A", Value: Literal("yes")}}, nil
		}
		return Map{{Key: "HAS_A", Value: Literal("no")}}, nil
	}))

	env, err := resolve(t, c, nil)
	require.NoError(t, err)
	assert.Equal(t, "yes", env["HAS_A"])
}

func TestExtend_FuncErrorSticks(t *testing.T) {
	boom := errors.New("boom")
	c := NewContext(nil)
	c.Extend(Func(func(ctx context.Context, s *Scope) (Config, error) {
		return nil, boom
	}))
	c.Extend(Map{{Key: "A", Value: Literal("1")}})

	_, err := resolve(t, c, nil)
	assert.ErrorIs(t, err, boom)
	_, err = resolve(t, c, nil)
	assert.ErrorIs(t, err, boom)
}

func TestScope_ResolveOutsideResolution(t *testing.T) {
	c := NewContext(nil)
	var scopeErr error
	c.Extend(Func(func(ctx context.Context, s *Scope) (Config, error) {
		_, scopeErr = s.Resolve(ctx, "$A")
		return nil, nil
	}))

	_, err := resolve(t, c, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, scopeErr, ErrNotResolving)
}

func TestResolve_ContextCancelled(t *testing.T) {
	c := NewContext(nil)
	c.Extend(Map{{Key: "A", Value: Literal("$(sleep)")}})

	ctx, cancel := context.WithCancel(context.Background())
	runner := func(ctx context.Context, command, profile string) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	}

	_, err := c.Resolve(ctx, runner)
	assert.ErrorIs(t, err, context.Canceled)
}
