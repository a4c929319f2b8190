package iodev

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// DevPortPath is the kernel's port I/O device. The file offset is the port.
const DevPortPath = "/dev/port"

// DevPort is a PortBus over /dev/port.
type DevPort struct {
	f *os.File
}

func OpenDevPort(path string) (*DevPort, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	return &DevPort{f: f}, nil
}

func (d *DevPort) In(port uint64, data []byte) error {
	if len(data) != 1 {
		return errDataLenInvalid
	}

	n, err := unix.Pread(int(d.f.Fd()), data, int64(port))
	if err != nil {
		return err
	}

	if n != len(data) {
		return io.ErrUnexpectedEOF
	}

	return nil
}

func (d *DevPort) Out(port uint64, data []byte) error {
	if len(data) != 1 {
		return errDataLenInvalid
	}

	n, err := unix.Pwrite(int(d.f.Fd()), data, int64(port))
	if err != nil {
		return err
	}

	if n != len(data) {
		return io.ErrShortWrite
	}

	return nil
}

func (d *DevPort) Close() error {
	return d.f.Close()
}
