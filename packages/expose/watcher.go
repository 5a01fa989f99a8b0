package expose

import (
	"log/slog"
	"regexp"
)

// watcher scans tap output for one regex rule. Text before the end of the
// last match is dropped so each occurrence is exposed once.
type watcher struct {
	name   string
	re     *regexp.Regexp
	expose ExposeFunc
	logger *slog.Logger
	buf    []byte
}

func (w *watcher) feed(p []byte) {
	w.buf = append(w.buf, p...)

	for len(w.buf) > 0 {
		loc := w.re.FindSubmatchIndex(w.buf)
		if loc == nil {
			break
		}
		if val, ok := w.value(loc); ok {
			w.logger.Debug("expose matched", "name", w.name, "value", val)
			w.expose(Values{w.name: val})
		}
		end := loc[1]
		if loc[1] == loc[0] {
			end++
		}
		if end > len(w.buf) {
			end = len(w.buf)
		}
		w.buf = w.buf[end:]
	}

	if len(w.buf) > BufferCap {
		w.buf = append([]byte(nil), w.buf[len(w.buf)-BufferCap:]...)
	}
}

func (w *watcher) value(loc []int) (string, bool) {
	if len(loc) < 4 {
		return string(w.buf[loc[0]:loc[1]]), true
	}
	if loc[2] < 0 {
		return "", false
	}
	return string(w.buf[loc[2]:loc[3]]), true
}
