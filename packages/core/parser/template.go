package parser

import (
	"regexp"
	"strings"
)

// SegmentType identifies the kind of a template segment.
type SegmentType int

const (
	SegmentLiteral SegmentType = iota
	SegmentVariable
	SegmentCommand
)

func (t SegmentType) String() string {
	switch t {
	case SegmentLiteral:
		return "literal"
	case SegmentVariable:
		return "variable"
	case SegmentCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Segment is one piece of a parsed template string.
//
// For SegmentLiteral, Text holds the raw text. For SegmentVariable, Name holds
// the referenced variable. For SegmentCommand, Text holds the command line with
// escaped close-parens decoded, and Profile holds the optional [profile] prefix.
type Segment struct {
	Type    SegmentType
	Text    string
	Name    string
	Profile string
}

// IsLiteral reports whether the segment is plain text.
func (s Segment) IsLiteral() bool {
	return s.Type == SegmentLiteral
}

// Raw returns the segment in template syntax.
func (s Segment) Raw() string {
	switch s.Type {
	case SegmentVariable:
		return "${" + s.Name + "}"
	case SegmentCommand:
		cmd := strings.ReplaceAll(s.Text, ")", `\)`)
		if s.Profile != "" {
			return "$([" + s.Profile + "] " + cmd + ")"
		}
		return "$(" + cmd + ")"
	default:
		return s.Text
	}
}

var (
	referencePattern = regexp.MustCompile(`(?i)\$\{([^${}]*)\}|\$([a-z0-9_]+)|\$\(((?:\\\)|[^)])*)\)`)
	profilePattern   = regexp.MustCompile(`^\[([^\]]*)\]\s*`)
)

// Parse splits s into literal, variable reference and command substitution
// segments. Recognised forms are ${NAME}, $NAME and $(COMMAND). Adjacent
// literal text is merged into one segment. Parse never fails: anything that is
// not a reference is literal text.
func Parse(s string) []Segment {
	var segments []Segment
	var literal strings.Builder

	flush := func() {
		if literal.Len() > 0 {
			segments = append(segments, Segment{Type: SegmentLiteral, Text: literal.String()})
			literal.Reset()
		}
	}

	pos := 0
	for _, m := range referencePattern.FindAllStringSubmatchIndex(s, -1) {
		literal.WriteString(s[pos:m[0]])
		pos = m[1]

		switch {
		case m[2] >= 0 && m[3] > m[2]:
			flush()
			segments = append(segments, Segment{Type: SegmentVariable, Name: s[m[2]:m[3]]})
		case m[4] >= 0:
			flush()
			segments = append(segments, Segment{Type: SegmentVariable, Name: s[m[4]:m[5]]})
		case m[6] >= 0 && m[7] > m[6]:
			flush()
			segments = append(segments, parseCommand(s[m[6]:m[7]]))
		default:
			// ${} and $() carry no name or command
			literal.WriteString(s[m[0]:m[1]])
		}
	}
	literal.WriteString(s[pos:])
	flush()

	return segments
}

func parseCommand(body string) Segment {
	cmd := strings.ReplaceAll(body, `\)`, ")")
	seg := Segment{Type: SegmentCommand}
	if m := profilePattern.FindStringSubmatch(cmd); m != nil {
		seg.Profile = m[1]
		cmd = cmd[len(m[0]):]
	}
	seg.Text = cmd
	return seg
}

// References returns the distinct variable names referenced by s, in order
// of first appearance.
func References(s string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, seg := range Parse(s) {
		if seg.Type == SegmentVariable && !seen[seg.Name] {
			seen[seg.Name] = true
			names = append(names, seg.Name)
		}
	}
	return names
}

// HasReferences reports whether s contains any variable reference or command
// substitution.
func HasReferences(s string) bool {
	for _, seg := range Parse(s) {
		if seg.Type != SegmentLiteral {
			return true
		}
	}
	return false
}
