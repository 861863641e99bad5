package gpio

import (
	"errors"
	"sync"
)

// Fake is a test double with scripted input levels and recorded writes.
type Fake struct {
	// LevelError, if set, is returned by Level.
	LevelError error

	// SetLevelError, if set, is returned by SetLevel.
	SetLevelError error

	// EdgeError, if set, is returned by SetEdgeHandler when installing a handler.
	EdgeError error

	mu       sync.Mutex
	levels   map[int]bool
	scripts  map[int][]bool
	writes   map[int][]bool
	handlers map[int]fakeWatch
	closed   bool
}

type fakeWatch struct {
	edge    Edge
	handler func()
}

// NewFake creates a Fake with all lines low and no handlers installed.
func NewFake() *Fake {
	return &Fake{
		levels:   map[int]bool{},
		scripts:  map[int][]bool{},
		writes:   map[int][]bool{},
		handlers: map[int]fakeWatch{},
	}
}

// SetInput sets the level returned for line and drops any script.
func (f *Fake) SetInput(line int, level bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scripts, line)
	f.levels[line] = level
}

// Script queues levels for line. Each Level call consumes one entry;
// once exhausted the last entry repeats.
func (f *Fake) Script(line int, levels ...bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[line] = append(f.scripts[line], levels...)
}

// Level returns the next scripted level for line, or its set level.
func (f *Fake) Level(line int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LevelError != nil {
		return false, f.LevelError
	}
	if q := f.scripts[line]; len(q) > 0 {
		l := q[0]
		if len(q) > 1 {
			f.scripts[line] = q[1:]
		} else {
			delete(f.scripts, line)
			f.levels[line] = l
		}
		return l, nil
	}
	return f.levels[line], nil
}

// SetLevel records the write and updates the line level.
func (f *Fake) SetLevel(line int, level bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetLevelError != nil {
		return f.SetLevelError
	}
	f.writes[line] = append(f.writes[line], level)
	f.levels[line] = level
	return nil
}

// SetEdgeHandler installs or removes the handler for line.
func (f *Fake) SetEdgeHandler(line int, edge Edge, handler func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("gpio: closed")
	}
	if handler == nil {
		delete(f.handlers, line)
		return nil
	}
	if f.EdgeError != nil {
		return f.EdgeError
	}
	f.handlers[line] = fakeWatch{edge: edge, handler: handler}
	return nil
}

// Trigger invokes the edge handler installed on line, if any.
// It reports whether a handler ran.
func (f *Fake) Trigger(line int) bool {
	f.mu.Lock()
	w, ok := f.handlers[line]
	f.mu.Unlock()
	if !ok {
		return false
	}
	w.handler()
	return true
}

// HasHandler reports whether an edge handler is installed on line.
func (f *Fake) HasHandler(line int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[line]
	return ok
}

// WatchedEdge returns the edge kind the handler on line was installed with.
func (f *Fake) WatchedEdge(line int) Edge {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[line].edge
}

// Writes returns a copy of all levels written to line, in order.
func (f *Fake) Writes(line int) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.writes[line]...)
}

// LastWrite returns the most recent level written to line.
func (f *Fake) LastWrite(line int) (level bool, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.writes[line]
	if len(w) == 0 {
		return false, false
	}
	return w[len(w)-1], true
}

// ClearWrites forgets recorded writes on all lines.
func (f *Fake) ClearWrites() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = map[int][]bool{}
}

// Close removes all handlers and marks the fake closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = map[int]fakeWatch{}
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
