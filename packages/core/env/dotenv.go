package env

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Pair is one KEY=VALUE line of an env file.
type Pair struct {
	Key   string
	Value string
}

var (
	envLinePattern    = regexp.MustCompile(`^\s*([\w.-]+)\s*=\s*(.*)?\s*$`)
	envCommentPattern = regexp.MustCompile(`^\s*#`)
	envEmptyPattern   = regexp.MustCompile(`^\s*$`)
)

// Read parses env-file lines from r.
// Supports: KEY=value, KEY="double quoted" (\n decodes to a newline and
// \\ to a backslash), KEY='single quoted' (no escapes), # comments and blank
// lines. Any other line is an error.
func Read(r io.Reader) ([]Pair, error) {
	var pairs []Pair
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		m := envLinePattern.FindStringSubmatch(line)
		if m == nil {
			if envCommentPattern.MatchString(line) || envEmptyPattern.MatchString(line) {
				continue
			}
			return nil, fmt.Errorf("Cannot parse env line: %s", line)
		}

		pairs = append(pairs, Pair{Key: m[1], Value: unquote(strings.TrimSpace(m[2]))})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}
	return pairs, nil
}

var (
	doubleQuoteDecoder = strings.NewReplacer(`\\`, `\`, `\n`, "\n")
	doubleQuoteEncoder = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
)

func unquote(val string) string {
	if len(val) < 2 {
		return val
	}
	switch {
	case val[0] == '"' && val[len(val)-1] == '"':
		return doubleQuoteDecoder.Replace(val[1 : len(val)-1])
	case val[0] == '\'' && val[len(val)-1] == '\'':
		return val[1 : len(val)-1]
	}
	return val
}

// ReadFile parses the env file at path.
func ReadFile(path string) ([]Pair, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open env file: %w", err)
	}
	defer file.Close()

	return Read(file)
}

// LoadFile parses the env file at path into a map. Later duplicates win.
func LoadFile(path string) (map[string]string, error) {
	pairs, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return PairsToMap(pairs), nil
}

// Write writes pairs in env-file format so that Read returns the same
// values. Values that Read would alter when bare are double-quoted with
// backslashes and newlines escaped: anything containing a newline, anything
// with leading or trailing whitespace and anything already wrapped in quotes.
// Everything else is written bare, so a literal \n outside quotes stays
// literal.
func Write(w io.Writer, pairs []Pair) error {
	bw := bufio.NewWriter(w)
	for _, p := range pairs {
		value := p.Value
		if needsQuoting(value) {
			value = `"` + doubleQuoteEncoder.Replace(value) + `"`
		}
		if _, err := fmt.Fprintf(bw, "%s=%s\n", p.Key, value); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func needsQuoting(value string) bool {
	if strings.Contains(value, "\n") || strings.TrimSpace(value) != value {
		return true
	}
	if len(value) < 2 {
		return false
	}
	first, last := value[0], value[len(value)-1]
	return (first == '"' || first == '\'') && first == last
}

// WriteFile writes pairs to path. The file is written to a temporary name in
// the same directory and renamed into place.
func WriteFile(path string, pairs []Pair) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")

	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating env file: %w", err)
	}
	if err := Write(file, pairs); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing env file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing env file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing env file: %w", err)
	}
	return nil
}

// MapToPairs converts m to pairs sorted by key.
func MapToPairs(m map[string]string) []Pair {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]Pair, len(keys))
	for i, k := range keys {
		pairs[i] = Pair{Key: k, Value: m[k]}
	}
	return pairs
}

// PairsToMap converts pairs to a map. Later duplicates win.
func PairsToMap(pairs []Pair) map[string]string {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		m[p.Key] = p.Value
	}
	return m
}

// PairsToConfig turns pairs into a definition Map, preserving file order.
func PairsToConfig(pairs []Pair) Map {
	out := make(Map, len(pairs))
	for i, p := range pairs {
		out[i] = Entry{Key: p.Key, Value: Literal(p.Value)}
	}
	return out
}
