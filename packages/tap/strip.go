package tap

import (
	"io"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

// MaxPending bounds how many trailing bytes of an unfinished escape sequence
// are held back waiting for the next write. A longer candidate is released
// as text.
const MaxPending = 4096

// StripWriter removes terminal escape sequences from the bytes written to it
// and forwards everything else to the underlying writer.
//
// An escape sequence (or multi-byte character) cut off at the end of a write
// is held until the next write completes it. Flush releases whatever is still
// held as plain text.
type StripWriter struct {
	w       io.Writer
	pending []byte
}

// NewStripWriter returns a StripWriter forwarding to w.
func NewStripWriter(w io.Writer) *StripWriter {
	return &StripWriter{w: w}
}

// Write strips p and forwards the result. It always reports len(p) bytes
// consumed unless the underlying writer fails.
func (s *StripWriter) Write(p []byte) (int, error) {
	out := s.strip(p, false)
	if len(out) > 0 {
		if _, err := s.w.Write(out); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush forwards any held bytes as plain text.
func (s *StripWriter) Flush() error {
	out := s.strip(nil, true)
	if len(out) == 0 {
		return nil
	}
	_, err := s.w.Write(out)
	return err
}

// Pending returns the number of bytes currently held back.
func (s *StripWriter) Pending() int {
	return len(s.pending)
}

// Strip removes escape sequences from b in one pass. An unfinished trailing
// sequence is kept as text.
func Strip(b []byte) []byte {
	var s StripWriter
	return s.strip(b, true)
}

func (s *StripWriter) strip(p []byte, final bool) []byte {
	buf := p
	if len(s.pending) > 0 {
		buf = append(s.pending, p...)
		s.pending = nil
	}

	out := make([]byte, 0, len(buf))
	for i := 0; i < len(buf); {
		c := buf[i]

		if isIntroducer(c) {
			_, _, n, state := ansi.DecodeSequence(buf[i:], ansi.NormalState, nil)
			if state != ansi.NormalState {
				rest := buf[i:]
				if !final && len(rest) <= MaxPending {
					s.pending = append([]byte(nil), rest...)
					return out
				}
				return append(out, rest...)
			}
			if n <= 0 {
				out = append(out, c)
				n = 1
			}
			i += n
			continue
		}

		if c < utf8.RuneSelf {
			out = append(out, c)
			i++
			continue
		}

		r, size := utf8.DecodeRune(buf[i:])
		if r == utf8.RuneError && size == 1 && !final && !utf8.FullRune(buf[i:]) {
			s.pending = append([]byte(nil), buf[i:]...)
			return out
		}
		out = append(out, buf[i:i+size]...)
		i += size
	}
	return out
}

// isIntroducer reports whether c starts an escape sequence: ESC or one of
// the 8-bit C1 introducers. 8-bit introducers only count at a character
// boundary, so UTF-8 continuation bytes never reach here.
func isIntroducer(c byte) bool {
	switch c {
	case ansi.ESC, ansi.CSI, ansi.DCS, ansi.OSC, ansi.APC, ansi.SOS, ansi.PM:
		return true
	}
	return false
}
