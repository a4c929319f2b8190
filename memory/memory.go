package memory

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DevMem is the physical memory device used for MMIO windows.
const DevMem = "/dev/mem"

var errNotMapped = errors.New("window not mapped")

// Mapping is a virtual window onto a physical range. Buf is valid only
// between Map and Unmap.
type Mapping struct {
	Range AddressRange
	Buf   []byte

	// raw is the page aligned region returned by mmap.
	raw []byte
}

// Mapper maps window bytes at the start of r.
type Mapper func(r AddressRange, window int) (*Mapping, error)

// DevMemMapper returns a Mapper backed by the physical memory device at path.
func DevMemMapper(path string) Mapper {
	return func(r AddressRange, window int) (*Mapping, error) {
		return Map(path, r, window)
	}
}

// Map maps window bytes at r.Base from the device at path. The window must
// lie inside r.
func Map(path string, r AddressRange, window int) (*Mapping, error) {
	if err := checkWindow(r, window); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// The mapping outlives the descriptor.
	defer f.Close()

	page := uint64(unix.Getpagesize())
	off := r.Base &^ (page - 1)
	delta := r.Base - off
	size := (delta + uint64(window) + page - 1) &^ (page - 1)

	raw, err := unix.Mmap(int(f.Fd()), int64(off), int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap %s at %#x: %w", path, off, err)
	}

	return &Mapping{
		Range: r,
		Buf:   raw[delta : delta+uint64(window)],
		raw:   raw,
	}, nil
}

// MapAnonymous returns a zero filled shared window with no physical
// backing. It stands in for device memory on the simulated bus.
func MapAnonymous(r AddressRange, window int) (*Mapping, error) {
	if err := checkWindow(r, window); err != nil {
		return nil, err
	}

	raw, err := unix.Mmap(-1, 0, window, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}

	return &Mapping{
		Range: r,
		Buf:   raw,
		raw:   raw,
	}, nil
}

// Unmap releases the window. It succeeds exactly once per mapping.
func (m *Mapping) Unmap() error {
	if m.raw == nil {
		return fmt.Errorf("%v: %w", m.Range, errNotMapped)
	}

	raw := m.raw
	m.raw = nil
	m.Buf = nil

	return unix.Munmap(raw)
}

func checkWindow(r AddressRange, window int) error {
	if err := r.Validate(); err != nil {
		return err
	}

	if window <= 0 || uint64(window) > r.Length {
		return fmt.Errorf("window %#x outside %v: %w", window, r, errInvalidRange)
	}

	return nil
}
