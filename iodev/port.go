package iodev

import (
	"errors"
	"fmt"
)

var errDataLenInvalid = errors.New("invalid data size on port")

// PortBus is the port I/O address space.
type PortBus interface {
	In(port uint64, data []byte) error
	Out(port uint64, data []byte) error
}

// Port is the port mapped backend. The port is the range base itself;
// there is no mapping step.
type Port struct {
	bus   PortBus
	port  uint64
	fence Fence
}

func NewPort(bus PortBus, base uint64, fence Fence) *Port {
	if fence == nil {
		fence = CPUFence
	}

	return &Port{
		bus:   bus,
		port:  base,
		fence: fence,
	}
}

// ReadByte is inb followed by a read barrier.
func (p *Port) ReadByte() (byte, error) {
	var data [1]byte

	if err := p.bus.In(p.port, data[:]); err != nil {
		return 0, fmt.Errorf("%w: inb %#x: %w", ErrTransfer, p.port, err)
	}

	p.fence.Read()

	return data[0], nil
}

// WriteByte is outb followed by a write barrier.
func (p *Port) WriteByte(b byte) error {
	data := [1]byte{b}

	if err := p.bus.Out(p.port, data[:]); err != nil {
		return fmt.Errorf("%w: outb %#x: %w", ErrTransfer, p.port, err)
	}

	p.fence.Write()

	return nil
}

func (p *Port) String() string {
	return fmt.Sprintf("port %#x", p.port)
}
