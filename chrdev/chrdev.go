// Package chrdev binds character device operations to a major number and
// hands callers serialized nodes for them.
package chrdev

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bobuhiro11/goshort/errdefs"
)

// Dynamic majors are handed out from the top of this window downwards.
const (
	MaxMajor       = 511
	dynamicMajorHi = 254
	dynamicMajorLo = 234
)

var (
	// ErrMajorBusy is returned when a major is taken or none is left.
	ErrMajorBusy = fmt.Errorf("major number busy: %w", errdefs.ErrRegistration)

	errNoDevice = errors.New("no such device")
)

// Operations is the file operation table of a character device.
type Operations interface {
	Open() error
	Release() error
	Read(buf []byte, off int64) (int, error)
	Write(p []byte) (int, error)
}

type entry struct {
	name string
	ops  Operations
	mu   *sync.Mutex
}

// Table is the registry of character devices.
type Table struct {
	mu   sync.Mutex
	devs map[int]entry
}

func NewTable() *Table {
	return &Table{
		devs: make(map[int]entry),
	}
}

// Register binds ops to major, or to a free dynamic major when major is 0.
// It returns the major in use.
func (t *Table) Register(major int, name string, ops Operations) (int, error) {
	if major < 0 || major > MaxMajor {
		return 0, fmt.Errorf("%s: major %d out of range: %w", name, major, errdefs.ErrRegistration)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if major == 0 {
		for m := dynamicMajorHi; m >= dynamicMajorLo; m-- {
			if _, ok := t.devs[m]; !ok {
				major = m

				break
			}
		}

		if major == 0 {
			return 0, fmt.Errorf("%s: no dynamic major left: %w", name, ErrMajorBusy)
		}
	}

	if owner, ok := t.devs[major]; ok {
		return 0, fmt.Errorf("%s: major %d held by %q: %w", name, major, owner.name, ErrMajorBusy)
	}

	t.devs[major] = entry{name: name, ops: ops, mu: &sync.Mutex{}}

	return major, nil
}

func (t *Table) Unregister(major int, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.devs[major]
	if !ok || e.name != name {
		return fmt.Errorf("%s: major %d: %w", name, major, errNoDevice)
	}

	delete(t.devs, major)

	return nil
}

// Lookup returns the name bound to major.
func (t *Table) Lookup(major int) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.devs[major]

	return e.name, ok
}

// OpenNode opens the device bound to major.
func (t *Table) OpenNode(major int) (*Node, error) {
	t.mu.Lock()
	e, ok := t.devs[major]
	t.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("major %d: %w", major, errNoDevice)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ops.Open(); err != nil {
		return nil, err
	}

	return &Node{ops: e.ops, mu: e.mu}, nil
}

// Node is an open file on a character device. All nodes of one device share
// a lock, so the operations only ever see a single caller.
type Node struct {
	mu     *sync.Mutex
	ops    Operations
	closed bool
}

// Read reads from file position 0. The position never advances, so a zero
// count reports io.EOF.
func (n *Node) Read(p []byte) (int, error) {
	return n.ReadOffset(p, 0)
}

// ReadOffset reads with an explicit file position.
func (n *Node) ReadOffset(p []byte, off int64) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return 0, io.ErrClosedPipe
	}

	c, err := n.ops.Read(p, off)
	if err != nil {
		return 0, err
	}

	if c == 0 && len(p) > 0 {
		return 0, io.EOF
	}

	return c, nil
}

func (n *Node) Write(p []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return 0, io.ErrClosedPipe
	}

	return n.ops.Write(p)
}

// Close releases the file. Later calls return nil.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}

	n.closed = true

	return n.ops.Release()
}
