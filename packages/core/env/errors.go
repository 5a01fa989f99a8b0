package env

import "errors"

// Resolution error kinds. Use errors.Is against a *ResolveError to branch on
// the kind without parsing messages.
var (
	ErrMissingRequired = errors.New("missing required env")
	ErrUndefined       = errors.New("undefined env var")
	ErrCircular        = errors.New("circular dependency")
	ErrNoCommandRunner = errors.New("no command runner")
	ErrNotResolving    = errors.New("resolve is only available while the context is resolving")
)

// ResolveError reports a failure tied to one variable (or, for
// ErrNoCommandRunner, one command).
type ResolveError struct {
	Kind error
	Name string
}

func (e *ResolveError) Error() string {
	switch e.Kind {
	case ErrMissingRequired:
		return "Missing required env: " + e.Name
	case ErrUndefined:
		return "Undefined env var: " + e.Name
	case ErrCircular:
		return "Circular dependency: " + e.Name
	case ErrNoCommandRunner:
		return "No command runner to resolve: $(" + e.Name + ")"
	default:
		return e.Kind.Error() + ": " + e.Name
	}
}

func (e *ResolveError) Unwrap() error {
	return e.Kind
}

func missingRequired(name string) error {
	return &ResolveError{Kind: ErrMissingRequired, Name: name}
}

func undefined(name string) error {
	return &ResolveError{Kind: ErrUndefined, Name: name}
}

func circular(name string) error {
	return &ResolveError{Kind: ErrCircular, Name: name}
}
