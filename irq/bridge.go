// Package irq attaches the driver to a hardware interrupt line and keeps
// the delivery record shared with interrupt context.
package irq

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/bobuhiro11/goshort/errdefs"
)

// NotArmed is the line recorded when no handler is registered.
const NotArmed = -1

var (
	// ErrInterruptUnavailable is returned when a line cannot be requested.
	ErrInterruptUnavailable = fmt.Errorf("interrupt line unavailable: %w", errdefs.ErrResource)

	errAlreadyArmed = errors.New("bridge already armed")
)

// Result is a handler's answer to the dispatcher.
type Result int

const (
	None Result = iota
	Handled
)

// Handler runs in interrupt context. It must not block or allocate.
type Handler func(line int) Result

// Dispatcher owns interrupt lines and delivers them to handlers.
type Dispatcher interface {
	Request(line int, name string, h Handler) error
	Free(line int) error
}

// Record is the only state shared with interrupt context. Every field is
// updated with a single atomic store.
type Record struct {
	line       atomic.Int32
	ok         atomic.Bool
	deliveries atomic.Uint64
}

// Line is the armed line, NotArmed, or the negated line of a mismatched
// delivery.
func (r *Record) Line() int {
	return int(r.line.Load())
}

func (r *Record) LastDeliveryOK() bool {
	return r.ok.Load()
}

func (r *Record) Deliveries() uint64 {
	return r.deliveries.Load()
}

// Bridge registers the driver handler on one line.
type Bridge struct {
	d    Dispatcher
	name string
	rec  Record

	// armed is touched only by the controller, never by the handler.
	armed     bool
	armedLine int
}

func NewBridge(d Dispatcher, name string) *Bridge {
	b := &Bridge{
		d:    d,
		name: name,
	}
	b.rec.line.Store(NotArmed)

	return b
}

// Arm requests line. On failure the record is left at NotArmed and the
// line is not retried.
func (b *Bridge) Arm(line int) error {
	if b.armed {
		return fmt.Errorf("irq %d: %w", line, errAlreadyArmed)
	}

	if line < 0 {
		return fmt.Errorf("irq %d: %w", line, ErrInterruptUnavailable)
	}

	b.rec.ok.Store(false)
	b.rec.line.Store(int32(line))

	if err := b.d.Request(line, b.name, b.Handle); err != nil {
		b.rec.line.Store(NotArmed)

		return fmt.Errorf("request irq %d: %w: %w", line, ErrInterruptUnavailable, err)
	}

	b.armed = true
	b.armedLine = line

	return nil
}

// Handle is the interrupt handler. A delivery for another line records the
// negated line; every delivery is reported as handled.
func (b *Bridge) Handle(line int) Result {
	if int32(line) != b.rec.line.Load() {
		b.rec.ok.Store(false)
		b.rec.line.Store(int32(-line))

		return Handled
	}

	b.rec.deliveries.Add(1)
	b.rec.ok.Store(true)

	return Handled
}

// Disarm frees the line. It does nothing if Arm never succeeded.
func (b *Bridge) Disarm() error {
	if !b.armed {
		return nil
	}

	b.armed = false

	err := b.d.Free(b.armedLine)
	b.rec.line.Store(NotArmed)

	return err
}

func (b *Bridge) Armed() bool {
	return b.armed
}

func (b *Bridge) Record() *Record {
	return &b.rec
}
