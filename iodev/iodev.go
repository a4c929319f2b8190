// Package iodev implements single byte transfers against a claimed port
// or memory range. Every transfer is followed by the barrier for its
// direction before the next one may start.
package iodev

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
)

// ErrTransfer wraps a host error raised while moving a byte over the bus.
var ErrTransfer = errors.New("bus transfer failed")

// Backend moves one byte at a time to or from the device.
type Backend interface {
	io.ByteReader
	io.ByteWriter
	fmt.Stringer
}

// Fence orders bus transfers against program order.
type Fence interface {
	// Read runs after a read transfer.
	Read()
	// Write runs after a write transfer.
	Write()
}

// CPUFence is the hardware fence. Locked read-modify-write operations are
// full barriers on every architecture Go supports.
var CPUFence Fence = cpuFence{}

var fenceWord uint32

type cpuFence struct{}

func (cpuFence) Read() {
	atomic.AddUint32(&fenceWord, 0)
}

func (cpuFence) Write() {
	atomic.AddUint32(&fenceWord, 0)
}
