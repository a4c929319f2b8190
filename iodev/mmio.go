package iodev

import (
	"errors"
	"fmt"
)

var errEmptyWindow = errors.New("empty mmio window")

// MMIO is the memory mapped backend. Transfers target the first byte of
// the mapped window.
type MMIO struct {
	window []byte
	base   uint64
	fence  Fence
}

// NewMMIO wraps a mapped window whose physical address is base.
func NewMMIO(window []byte, base uint64, fence Fence) (*MMIO, error) {
	if len(window) == 0 {
		return nil, errEmptyWindow
	}

	if fence == nil {
		fence = CPUFence
	}

	return &MMIO{
		window: window,
		base:   base,
		fence:  fence,
	}, nil
}

// ReadByte is ioread8 followed by a read barrier.
func (m *MMIO) ReadByte() (byte, error) {
	v := read8(&m.window[0])
	m.fence.Read()

	return v, nil
}

// WriteByte is iowrite8 followed by a write barrier.
func (m *MMIO) WriteByte(b byte) error {
	write8(&m.window[0], b)
	m.fence.Write()

	return nil
}

func (m *MMIO) String() string {
	return fmt.Sprintf("mmio %#x", m.base)
}

// The accessors stay out of line so the compiler cannot merge or drop
// repeated accesses to the same byte.

//go:noinline
func read8(p *uint8) uint8 {
	return *p
}

//go:noinline
func write8(p *uint8, v uint8) {
	*p = v
}
