package device

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bobuhiro11/goshort/errdefs"
)

// DefaultMaxBuffer bounds a single temporary transfer buffer.
const DefaultMaxBuffer = 1 << 20

// BufferPool hands out zeroed temporary buffers no larger than its limit.
// Every Get must be paired with a Put.
type BufferPool struct {
	max   int
	pool  sync.Pool
	inUse atomic.Int64
}

// NewBufferPool returns a pool refusing requests above limit bytes. A limit of
// zero or less removes the limit.
func NewBufferPool(limit int) *BufferPool {
	return &BufferPool{max: limit}
}

func (p *BufferPool) Get(n int) ([]byte, error) {
	if n < 0 || (p.max > 0 && n > p.max) {
		return nil, fmt.Errorf("buffer of %d bytes: %w", n, errdefs.ErrOutOfMemory)
	}

	var b []byte

	if v, ok := p.pool.Get().(*[]byte); ok && cap(*v) >= n {
		b = (*v)[:n]
		clear(b)
	} else {
		b = make([]byte, n)
	}

	p.inUse.Add(1)

	return b, nil
}

func (p *BufferPool) Put(b []byte) {
	p.inUse.Add(-1)

	if cap(b) == 0 {
		return
	}

	p.pool.Put(&b)
}

// InUse returns the number of buffers handed out and not yet returned.
func (p *BufferPool) InUse() int64 {
	return p.inUse.Load()
}
