// Package serial is a loopback UART used as the simulated port I/O peer.
// Bytes written to the data register come back out of it, and the
// receive interrupt is pulsed whenever data becomes available.
package serial

import (
	"errors"
	"fmt"
	"sync"
)

const (
	// NrPorts is the size of the register block.
	NrPorts = 8

	// QueueSize is the receive queue depth. Bytes beyond it are dropped.
	QueueSize = 10000

	ierRDA = 0x1 // received data available
	lsrDR  = 0x1 // data ready
	lsrTHR = 0x60
)

var (
	errDataLenInvalid = errors.New("invalid data size on port")
	errPortOutOfRange = errors.New("port outside serial register block")
)

type Serial struct {
	Base uint64
	IRQ  uint32

	mu  sync.Mutex
	IER byte
	LCR byte

	inputChan chan byte

	// This callback is called when serial request IRQ.
	irqCallback func(irq, level uint32)
}

// New returns a loopback at base. The receive interrupt is enabled when a
// callback is supplied.
func New(base uint64, irq uint32, irqCallback func(irq, level uint32)) *Serial {
	s := &Serial{
		Base:        base,
		IRQ:         irq,
		inputChan:   make(chan byte, QueueSize),
		irqCallback: irqCallback,
	}

	if irqCallback != nil {
		s.IER = ierRDA
	}

	return s
}

// Feed queues data for the driver to read and raises the receive interrupt.
// It returns how many bytes fit in the queue; the rest are dropped.
func (s *Serial) Feed(data []byte) int {
	n := 0

	for _, b := range data {
		select {
		case s.inputChan <- b:
			n++
		default:
		}
	}

	if n > 0 {
		s.InjectIRQ()
	}

	return n
}

// InjectIRQ pulses the interrupt line if receive interrupts are enabled.
func (s *Serial) InjectIRQ() {
	s.mu.Lock()
	enabled := s.IER&ierRDA != 0
	s.mu.Unlock()

	if !enabled || s.irqCallback == nil {
		return
	}

	s.irqCallback(s.IRQ, 1)
	s.irqCallback(s.IRQ, 0)
}

func (s *Serial) dlab() bool {
	return s.LCR&0x80 != 0
}

func (s *Serial) offset(port uint64, values []byte) (uint64, error) {
	if len(values) != 1 {
		return 0, errDataLenInvalid
	}

	if port < s.Base || port >= s.Base+NrPorts {
		return 0, fmt.Errorf("%#x: %w", port, errPortOutOfRange)
	}

	return port - s.Base, nil
}

func (s *Serial) In(port uint64, values []byte) error {
	off, err := s.offset(port, values)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case off == 0 && !s.dlab():
		// RBR
		values[0] = 0

		select {
		case b := <-s.inputChan:
			values[0] = b
		default:
		}
	case off == 0 && s.dlab():
		// DLL
		values[0] = 0xc // baud rate 9600
	case off == 1 && !s.dlab():
		values[0] = s.IER
	case off == 1 && s.dlab():
		// DLM
		values[0] = 0x0
	case off == 3:
		values[0] = s.LCR
	case off == 5:
		// LSR
		values[0] = lsrTHR
		if len(s.inputChan) > 0 {
			values[0] |= lsrDR
		}
	default:
		values[0] = 0
	}

	return nil
}

func (s *Serial) Out(port uint64, values []byte) error {
	off, err := s.offset(port, values)
	if err != nil {
		return err
	}

	raise := false

	s.mu.Lock()

	switch {
	case off == 0 && !s.dlab():
		// THR loops back into the receive queue.
		select {
		case s.inputChan <- values[0]:
			raise = true
		default:
		}
	case off == 1 && !s.dlab():
		s.IER = values[0]
	case off == 3:
		s.LCR = values[0]
	}

	s.mu.Unlock()

	if raise {
		s.InjectIRQ()
	}

	return nil
}
