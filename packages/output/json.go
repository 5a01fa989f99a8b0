package output

import (
	"encoding/json"
	"io"
	"os"
	"time"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	File       string             `json:"file,omitempty"`
	Valid      *bool              `json:"valid,omitempty"`
	Profiles   []JSONProfile      `json:"profiles,omitempty"`
	Validation []JSONProfileCheck `json:"validation,omitempty"`
	Errors     []string           `json:"errors,omitempty"`
	Time       string             `json:"time"`
}

// JSONProfile represents a listed profile
type JSONProfile struct {
	Name    string   `json:"name"`
	Parents []string `json:"parents,omitempty"`
	Cwd     string   `json:"cwd,omitempty"`
	Env     []string `json:"env,omitempty"`
	Expose  []string `json:"expose,omitempty"`
	Address string   `json:"address,omitempty"`
}

// JSONProfileCheck represents a profile validation result
type JSONProfileCheck struct {
	Name  string `json:"name"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// JSONFormatter accumulates output and writes a single JSON document on Flush.
type JSONFormatter struct {
	writer io.Writer
	out    JSONOutput
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatProfiles(file string, profiles []ProfileInfo) {
	f.out.File = file
	for _, p := range profiles {
		f.out.Profiles = append(f.out.Profiles, JSONProfile{
			Name:    p.Name,
			Parents: p.Parents,
			Cwd:     p.Cwd,
			Env:     p.Env,
			Expose:  p.Expose,
			Address: p.Address,
		})
	}
}

func (f *JSONFormatter) FormatValidation(v *Validation) {
	f.out.File = v.File
	valid := v.Valid()
	f.out.Valid = &valid
	if v.Err != nil {
		f.out.Errors = append(f.out.Errors, v.Err.Error())
	}
	for _, p := range v.Profiles {
		check := JSONProfileCheck{Name: p.Name, Valid: p.Err == nil}
		if p.Err != nil {
			check.Error = p.Err.Error()
		}
		f.out.Validation = append(f.out.Validation, check)
	}
}

func (f *JSONFormatter) FormatError(err error) {
	f.out.Errors = append(f.out.Errors, err.Error())
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush() error {
	f.out.Time = time.Now().Format(time.RFC3339)
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(f.out)
}
