package parser

import "errors"

// ErrEmptyName is returned by ParseKey when no name remains after the
// decorations are removed.
var ErrEmptyName = errors.New("Empty environment variable name")

// Key is a definition key with its decorations decoded.
type Key struct {
	Name     string
	Required bool
	Override bool
}

// ParseKey decodes the suffix grammar of a definition key:
//
//	NAME     required
//	NAME?    optional
//	[NAME]   optional
//	NAME!    required, replaces a value inherited from the parent environment
//
// Only one decoration is recognised; "A!?" is the optional variable "A!".
func ParseKey(key string) (Key, error) {
	k := Key{Name: key, Required: true}
	switch n := len(k.Name); {
	case n > 1 && k.Name[0] == '[' && k.Name[n-1] == ']':
		k.Name = k.Name[1 : n-1]
		k.Required = false
	case n > 0 && k.Name[n-1] == '?':
		k.Name = k.Name[:n-1]
		k.Required = false
	case n > 0 && k.Name[n-1] == '!':
		k.Name = k.Name[:n-1]
		k.Override = true
	}
	if k.Name == "" {
		return Key{}, ErrEmptyName
	}
	return k, nil
}
