package env

import (
	"os"
	"sort"
	"strings"
)

// Environ returns the current process environment as a map.
func Environ() map[string]string {
	return ParseEnviron(os.Environ())
}

// ParseEnviron converts KEY=VALUE strings to a map. Entries without '=' are
// ignored; the first '=' separates key and value.
func ParseEnviron(environ []string) map[string]string {
	result := make(map[string]string, len(environ))
	for _, e := range environ {
		key, value, found := strings.Cut(e, "=")
		if !found || key == "" {
			continue
		}
		result[key] = value
	}
	return result
}

// Merge layers maps left to right; later sources win.
func Merge(sources ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, src := range sources {
		for k, v := range src {
			result[k] = v
		}
	}
	return result
}

// FormatEnviron formats m as sorted KEY=VALUE strings for exec.Cmd.Env.
func FormatEnviron(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + m[k]
	}
	return out
}
