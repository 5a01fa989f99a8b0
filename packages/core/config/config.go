package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/envex/packages/core/env"
	"github.com/abdul-hamid-achik/envex/packages/expose"
)

var (
	ErrNotFound        = errors.New("Unable to find a valid envex config file")
	ErrInvalid         = errors.New("invalid envex config")
	ErrUnknownProfile  = errors.New("unknown profile")
	ErrCircularProfile = errors.New("circular profile reference")
)

// ProfileError reports a profile that cannot be resolved.
type ProfileError struct {
	Kind error
	Name string
}

func (e *ProfileError) Error() string {
	switch e.Kind {
	case ErrUnknownProfile:
		return "Unknown profile: " + e.Name
	case ErrCircularProfile:
		return "Circular reference for profile: " + e.Name
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Name)
}

func (e *ProfileError) Unwrap() error {
	return e.Kind
}

// ConfigBaseName is the file name searched for, without extension.
const ConfigBaseName = ".envexrc"

// ConfigExtensions are tried in order when no extension is given.
var ConfigExtensions = []string{".json", ".yaml", ".yml"}

// Profile is a fully resolved profile: parents and imports have been folded
// into its env and expose lists.
type Profile struct {
	Name    string
	Parents []string
	Cwd     string
	Env     env.List
	Expose  expose.List
}

// File is a loaded config file.
type File struct {
	// Path is the absolute path of the file. It identifies the config when
	// deriving exchange addresses.
	Path string

	logger   *slog.Logger
	root     *node
	profiles map[string]*node
	order    []string

	mu       sync.Mutex
	resolved map[string]*Profile
}

// Option configures loading.
type Option func(*File)

// WithLogger sets the logger used for debug tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(f *File) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Load finds the config file for path and parses it. See FindConfigFile.
func Load(path string, opts ...Option) (*File, error) {
	configPath, err := FindConfigFile(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	}
	return Parse(configPath, data, opts...)
}

// Parse decodes and validates config data. The format follows the file
// extension of path; unknown extensions are read as JSON when the data
// starts with '{' and as YAML otherwise.
func Parse(path string, data []byte, opts ...Option) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	var root *node
	if isJSON(abs, data) {
		root, err = parseJSON(data)
	} else {
		root, err = parseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrInvalid, abs, err)
	}
	if err := validate(abs, root); err != nil {
		return nil, err
	}

	f := &File{
		Path:     abs,
		logger:   slog.New(slog.DiscardHandler),
		root:     root,
		profiles: make(map[string]*node),
		resolved: make(map[string]*Profile),
	}
	for _, opt := range opts {
		opt(f)
	}
	if profiles := root.get("profiles"); profiles != nil {
		for _, p := range profiles.fields {
			if _, dup := f.profiles[p.key]; !dup {
				f.order = append(f.order, p.key)
			}
			f.profiles[p.key] = p.value
		}
	}
	return f, nil
}

func isJSON(path string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return true
	case ".yaml", ".yml":
		return false
	}
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// FindConfigFile locates a config file. path may name a directory (which
// is searched for .envexrc with each of ConfigExtensions), a base path
// without extension (each extension is tried) or an exact file.
func FindConfigFile(path string) (string, error) {
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	info, statErr := os.Stat(abs)
	if statErr == nil && info.Mode().IsRegular() {
		return abs, nil
	}

	dir, base := filepath.Dir(abs), filepath.Base(abs)
	if statErr == nil && info.IsDir() {
		dir, base = abs, ConfigBaseName
	}

	var candidates []string
	if ext := filepath.Ext(base); ext != base && slices.Contains(ConfigExtensions, strings.ToLower(ext)) {
		candidates = []string{filepath.Join(dir, base)}
	} else {
		for _, ext := range ConfigExtensions {
			candidates = append(candidates, filepath.Join(dir, base+ext))
		}
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
	}
	return "", ErrNotFound
}

// Dir is the directory holding the config file. Imports and relative cwd
// values are resolved against it.
func (f *File) Dir() string {
	return filepath.Dir(f.Path)
}

// ProfileNames lists the profiles in document order.
func (f *File) ProfileNames() []string {
	return slices.Clone(f.order)
}

// HasProfile reports whether name is defined.
func (f *File) HasProfile(name string) bool {
	_, ok := f.profiles[name]
	return ok
}

// Parents returns the profiles name inherits from directly.
func (f *File) Parents(name string) []string {
	return f.profiles[name].get("profile").strings()
}

// Profile resolves name with its parents and imports. Results are cached.
func (f *File) Profile(name string) (*Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profile(name, map[string]bool{})
}

func (f *File) profile(name string, resolving map[string]bool) (*Profile, error) {
	if p, ok := f.resolved[name]; ok {
		return p, nil
	}
	raw, ok := f.profiles[name]
	if !ok {
		return nil, &ProfileError{Kind: ErrUnknownProfile, Name: name}
	}
	if resolving[name] {
		return nil, &ProfileError{Kind: ErrCircularProfile, Name: name}
	}
	resolving[name] = true
	defer delete(resolving, name)

	p := &Profile{Name: name, Parents: raw.get("profile").strings()}
	for _, parent := range p.Parents {
		base, err := f.profile(parent, resolving)
		if err != nil {
			return nil, err
		}
		if len(base.Env) > 0 {
			p.Env = append(p.Env, base.Env)
		}
		if len(base.Expose) > 0 {
			p.Expose = append(p.Expose, base.Expose)
		}
		p.extend(nil, nil, base.Cwd)
	}

	for _, imp := range raw.get("imports").strings() {
		path := imp
		if !filepath.IsAbs(path) {
			path = filepath.Join(f.Dir(), path)
		}
		pairs, err := env.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("profile %s: import %s: %w", name, imp, err)
		}
		p.extend(env.PairsToConfig(pairs), nil, "")
	}

	envCfg, err := toEnvConfig(raw.get("env"))
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", name, err)
	}
	exposeCfg, err := toExposeConfig(raw.get("expose"))
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", name, err)
	}
	cwd := ""
	if c := raw.get("cwd"); c != nil && c.kind == kindString && c.text != "" {
		cwd = c.text
		if !filepath.IsAbs(cwd) {
			cwd = filepath.Join(f.Dir(), cwd)
		}
	}
	p.extend(envCfg, exposeCfg, cwd)

	f.logger.Debug("profile resolved", "profile", name, "parents", p.Parents, "env", len(p.Env), "expose", len(p.Expose))
	f.resolved[name] = p
	return p, nil
}

func (p *Profile) extend(envCfg env.Config, exposeCfg expose.Config, cwd string) {
	if envCfg != nil {
		p.Env = append(p.Env, envCfg)
	}
	if exposeCfg != nil {
		p.Expose = append(p.Expose, exposeCfg)
	}
	if cwd != "" {
		p.Cwd = cwd
	}
}
