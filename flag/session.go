package flag

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bobuhiro11/goshort/chrdev"
	"github.com/bobuhiro11/goshort/driver"
	"github.com/bobuhiro11/goshort/iodev"
	"github.com/bobuhiro11/goshort/irq"
	"github.com/bobuhiro11/goshort/memory"
	"github.com/bobuhiro11/goshort/serial"
)

// Session is a live driver together with the collaborators it was built
// on: the bus, the interrupt dispatcher and the device table.
type Session struct {
	*driver.Controller

	Table *chrdev.Table
	Node  *chrdev.Node

	// UART is the loopback peer on the simulated port bus.
	UART *serial.Serial

	closers []io.Closer
}

// Open builds the collaborators for c, brings the driver up and opens a
// node on it.
func Open(c Config, log *slog.Logger) (*Session, error) {
	dc, err := c.Driver()
	if err != nil {
		return nil, err
	}

	s := &Session{Table: chrdev.NewTable()}
	opts := []driver.Option{
		driver.WithRegistrar(s.Table),
		driver.WithLogger(log),
	}

	switch {
	case dc.Kind == driver.KindPort && c.Bus == BusSim:
		lines := irq.NewLineSet(irq.NrIRQs)

		var raise func(irq, level uint32)
		if dc.IRQ >= 0 {
			raise = lines.SetIRQ
		}

		s.UART = serial.New(dc.Range.Base, uint32(max(dc.IRQ, 0)), raise)
		opts = append(opts, driver.WithPortBus(s.UART), driver.WithInterrupts(lines))
	case dc.Kind == driver.KindPort:
		bus, err := iodev.OpenDevPort(c.DevPort)
		if err != nil {
			return nil, err
		}

		s.closers = append(s.closers, bus)
		opts = append(opts, driver.WithPortBus(bus))

		if c.UIO != "" {
			opts = append(opts, driver.WithInterrupts(irq.NewUIO(c.UIO, dc.IRQ, log)))
		} else if dc.IRQ >= 0 {
			log.Warn("no uio node configured, interrupt disabled", "irq", dc.IRQ)
		}
	case c.Bus == BusSim:
		opts = append(opts, driver.WithMapper(memory.MapAnonymous))
	default:
		opts = append(opts, driver.WithMapper(memory.DevMemMapper(c.DevMem)))
	}

	s.Controller = driver.New(dc, opts...)

	if err := s.Init(); err != nil {
		return nil, errors.Join(err, s.closeBus())
	}

	node, err := s.Table.OpenNode(s.Major())
	if err != nil {
		return nil, errors.Join(err, s.Exit(), s.closeBus())
	}

	s.Node = node

	return s, nil
}

// Close releases the node, tears the driver down and closes the bus.
func (s *Session) Close() error {
	var errs []error

	if s.Node != nil {
		errs = append(errs, s.Node.Close())
	}

	errs = append(errs, s.Exit(), s.closeBus())

	return errors.Join(errs...)
}

func (s *Session) closeBus() error {
	var errs []error

	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bus: %w", err))
		}
	}

	s.closers = nil

	return errors.Join(errs...)
}
