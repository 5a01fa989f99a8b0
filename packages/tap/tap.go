package tap

import (
	"bytes"
	"io"
	"sync"
)

// Tap is a live copy of a process's output with escape sequences removed.
// Any number of readers can subscribe; each receives everything written
// after it subscribed. Writes never block on slow readers.
type Tap struct {
	mu     sync.Mutex
	strip  *StripWriter
	subs   []*Reader
	closed bool
	done   chan struct{}
	total  int64
}

// New returns an open tap.
func New() *Tap {
	t := &Tap{done: make(chan struct{})}
	t.strip = NewStripWriter(broadcaster{t})
	return t
}

// Ended returns a tap that is already closed. Readers subscribed to it see
// EOF immediately.
func Ended() *Tap {
	t := New()
	t.Close()
	return t
}

// Write strips p and hands the result to every subscriber. Writes after
// Close are discarded.
func (t *Tap) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return len(p), nil
	}
	return t.strip.Write(p)
}

// Subscribe returns a reader of the stripped stream.
func (t *Tap) Subscribe() *Reader {
	r := newReader()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		r.finish()
		return r
	}
	t.subs = append(t.subs, r)
	return r
}

// Close flushes held bytes and ends every subscriber's stream.
func (t *Tap) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	err := t.strip.Flush()
	t.closed = true
	for _, r := range t.subs {
		r.finish()
	}
	t.subs = nil
	close(t.done)
	return err
}

// Done is closed once the tap is closed.
func (t *Tap) Done() <-chan struct{} {
	return t.done
}

// Written returns the number of stripped bytes delivered so far.
func (t *Tap) Written() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// broadcaster receives stripped bytes. It runs with t.mu held.
type broadcaster struct {
	t *Tap
}

func (b broadcaster) Write(p []byte) (int, error) {
	b.t.total += int64(len(p))
	for _, r := range b.t.subs {
		r.push(p)
	}
	return len(p), nil
}

// Reader is one subscriber's view of a Tap. It buffers without limit so the
// writer never waits.
type Reader struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      bytes.Buffer
	finished bool
	detached bool
}

func newReader() *Reader {
	r := &Reader{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *Reader) push(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return
	}
	r.buf.Write(p)
	r.cond.Broadcast()
}

func (r *Reader) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = true
	r.cond.Broadcast()
}

// Read blocks until data is available or the tap is closed.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.buf.Len() == 0 && !r.finished && !r.detached {
		r.cond.Wait()
	}
	if r.detached {
		return 0, io.ErrClosedPipe
	}
	if r.buf.Len() == 0 {
		return 0, io.EOF
	}
	return r.buf.Read(p)
}

// Close detaches the reader. Pending data is dropped and blocked reads
// return.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = true
	r.buf.Reset()
	r.cond.Broadcast()
	return nil
}
