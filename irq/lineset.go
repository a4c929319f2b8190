package irq

import (
	"errors"
	"fmt"
	"sync"
)

// NrIRQs is the number of lines of a legacy PIC pair.
const NrIRQs = 16

var errLineNotRequested = errors.New("interrupt line not requested")

type registration struct {
	name    string
	handler Handler
}

// LineSet is an in-process dispatcher with exclusive lines.
type LineSet struct {
	mu    sync.Mutex
	nr    int
	lines map[int]registration
	level map[int]bool
}

// NewLineSet returns a dispatcher serving lines [0, nr).
func NewLineSet(nr int) *LineSet {
	return &LineSet{
		nr:    nr,
		lines: make(map[int]registration),
		level: make(map[int]bool),
	}
}

func (l *LineSet) Request(line int, name string, h Handler) error {
	if line < 0 || line >= l.nr {
		return fmt.Errorf("irq %d: no such line: %w", line, ErrInterruptUnavailable)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if owner, ok := l.lines[line]; ok {
		return fmt.Errorf("irq %d owned by %q: %w", line, owner.name, ErrInterruptUnavailable)
	}

	l.lines[line] = registration{name: name, handler: h}

	return nil
}

func (l *LineSet) Free(line int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.lines[line]; !ok {
		return fmt.Errorf("irq %d: %w", line, errLineNotRequested)
	}

	delete(l.lines, line)

	return nil
}

// Owner returns the name that requested line.
func (l *LineSet) Owner(line int) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.lines[line]

	return r.name, ok
}

// Fire delivers line to its handler. An unowned line is not handled.
func (l *LineSet) Fire(line int) Result {
	return l.Deliver(line, line)
}

// Deliver runs the handler registered on line, passing it delivered as the
// line number. This is how a shared handler observes a foreign line.
func (l *LineSet) Deliver(line, delivered int) Result {
	l.mu.Lock()
	r, ok := l.lines[line]
	l.mu.Unlock()

	if !ok {
		return None
	}

	return r.handler(delivered)
}

// SetIRQ is the level callback for simulated devices. A rising edge fires
// the line.
func (l *LineSet) SetIRQ(irq, level uint32) {
	line := int(irq)
	high := level != 0

	l.mu.Lock()
	rising := high && !l.level[line]
	l.level[line] = high
	l.mu.Unlock()

	if rising {
		l.Fire(line)
	}
}
