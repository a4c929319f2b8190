package irq

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// UIO delivers the interrupt of one userspace I/O device node. A read of
// the node blocks until the next interrupt and yields the event count;
// writing 1 unmasks the line again.
type UIO struct {
	path string
	line int
	log  *slog.Logger

	mu   sync.Mutex
	f    *os.File
	done chan struct{}
}

// NewUIO serves line from the node at path, for example /dev/uio0.
func NewUIO(path string, line int, log *slog.Logger) *UIO {
	if log == nil {
		log = slog.Default()
	}

	return &UIO{
		path: path,
		line: line,
		log:  log,
	}
}

func (u *UIO) Request(line int, name string, h Handler) error {
	if line != u.line {
		return fmt.Errorf("irq %d: %s serves irq %d: %w", line, u.path, u.line, ErrInterruptUnavailable)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.f != nil {
		return fmt.Errorf("irq %d already requested: %w", line, ErrInterruptUnavailable)
	}

	f, err := os.OpenFile(u.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("irq %d: %w: %w", line, ErrInterruptUnavailable, err)
	}

	if err := unmask(f); err != nil {
		f.Close()

		return fmt.Errorf("irq %d: unmask: %w: %w", line, ErrInterruptUnavailable, err)
	}

	u.f = f
	u.done = make(chan struct{})

	go u.loop(f, h, u.done)

	u.log.Debug("irq requested", "line", line, "name", name, "node", u.path)

	return nil
}

func (u *UIO) Free(line int) error {
	u.mu.Lock()
	f, done := u.f, u.done
	u.f, u.done = nil, nil
	u.mu.Unlock()

	if f == nil {
		return fmt.Errorf("irq %d: %w", line, errLineNotRequested)
	}

	err := f.Close()
	<-done

	return err
}

func (u *UIO) loop(f *os.File, h Handler, done chan struct{}) {
	defer close(done)

	var count [4]byte

	for {
		if _, err := io.ReadFull(f, count[:]); err != nil {
			if !errors.Is(err, os.ErrClosed) {
				u.log.Error("irq read failed", "node", u.path, "err", err)
			}

			return
		}

		h(u.line)

		if err := unmask(f); err != nil {
			if !errors.Is(err, os.ErrClosed) {
				u.log.Error("irq unmask failed", "node", u.path, "err", err)
			}

			return
		}
	}
}

func unmask(f *os.File) error {
	var on [4]byte

	binary.NativeEndian.PutUint32(on[:], 1)
	_, err := f.Write(on[:])

	return err
}
