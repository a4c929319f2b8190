// Package device is the byte stream face of the driver: open, read, write
// and release over a single backend.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bobuhiro11/goshort/iodev"
)

var errInvalidOffset = errors.New("negative file offset")

// File implements the character device operations. It never owns the
// backend; the lifecycle controller does.
type File struct {
	backend iodev.Backend
	pool    *BufferPool
	user    UserCopier
	log     *slog.Logger
}

type Option func(*File)

// WithBufferPool sets the allocator for temporary transfer buffers.
func WithBufferPool(p *BufferPool) Option {
	return func(f *File) { f.pool = p }
}

// WithUserCopier sets how bytes cross the caller boundary.
func WithUserCopier(u UserCopier) Option {
	return func(f *File) { f.user = u }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *File) { f.log = l }
}

func New(backend iodev.Backend, opts ...Option) *File {
	f := &File{
		backend: backend,
		pool:    NewBufferPool(DefaultMaxBuffer),
		user:    DirectCopier{},
		log:     slog.Default(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

func (f *File) Open() error {
	return nil
}

func (f *File) Release() error {
	return nil
}

// Read fills buf from the device starting at index off of a zeroed
// buffer of len(buf) bytes, stopping after a newline or at len(buf). It
// returns the final index, which counts the leading zeroed bytes. An
// offset at or past len(buf) produces nothing and touches no hardware.
func (f *File) Read(buf []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("read at %d: %w", off, errInvalidOffset)
	}

	count := len(buf)

	kbuf, err := f.pool.Get(count)
	if err != nil {
		return 0, err
	}
	defer f.pool.Put(kbuf)

	i := 0

	if off < int64(count) {
		for i = int(off); i < count; {
			b, err := f.backend.ReadByte()
			if err != nil {
				return 0, err
			}

			kbuf[i] = b
			i++

			if b == '\n' {
				break
			}
		}
	}

	if err := f.user.CopyToUser(buf, kbuf[:i]); err != nil {
		return 0, err
	}

	f.log.Debug("read", "dev", f.backend.String(), "count", count, "off", off, "ret", i)

	return i, nil
}

// Write pushes every byte of p to the device in order and returns len(p).
func (f *File) Write(p []byte) (int, error) {
	kbuf, err := f.pool.Get(len(p))
	if err != nil {
		return 0, err
	}
	defer f.pool.Put(kbuf)

	if err := f.user.CopyFromUser(kbuf, p); err != nil {
		return 0, err
	}

	trace := f.log.Enabled(context.Background(), slog.LevelDebug)

	for n, b := range kbuf {
		if trace {
			f.log.Debug("out", "dev", f.backend.String(), "val", fmt.Sprintf("%d(%#x)", b, b))
		}

		if err := f.backend.WriteByte(b); err != nil {
			return n, err
		}
	}

	return len(p), nil
}
