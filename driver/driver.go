// Package driver brings the device up and down. Resources are acquired
// leaf first (address range, interrupt line, device identity) and released
// in exactly the reverse order, including when initialization fails half
// way.
package driver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bobuhiro11/goshort/chrdev"
	"github.com/bobuhiro11/goshort/device"
	"github.com/bobuhiro11/goshort/errdefs"
	"github.com/bobuhiro11/goshort/iodev"
	"github.com/bobuhiro11/goshort/irq"
	"github.com/bobuhiro11/goshort/memory"
)

// State is a step of the lifecycle.
type State int

const (
	Unclaimed State = iota
	ResourceClaimed
	InterruptArmed
	Registered
)

func (s State) String() string {
	switch s {
	case Unclaimed:
		return "Unclaimed"
	case ResourceClaimed:
		return "ResourceClaimed"
	case InterruptArmed:
		return "InterruptArmed"
	case Registered:
		return "Registered"
	}

	return fmt.Sprintf("State(%d)", int(s))
}

// Kind selects the backend.
type Kind string

const (
	KindPort Kind = "port"
	KindMMIO Kind = "mmio"
)

var (
	errAlreadyInitialized = errors.New("driver already initialized")
	errUnknownKind        = errors.New("unknown backend kind")
	errHostConflict       = errors.New("range in use by host")
)

// Registrar binds the device identity.
type Registrar interface {
	Register(major int, name string, ops chrdev.Operations) (int, error)
	Unregister(major int, name string) error
}

type Config struct {
	Name  string
	Kind  Kind
	Range memory.AddressRange

	// Window is the mapped size for MMIO.
	Window int

	// IRQ is the interrupt line of the port backend; negative disables it.
	IRQ int

	// Major is the requested major number; 0 allocates one.
	Major int

	// HostResources, when set, is a /proc/ioports or /proc/iomem style
	// table whose entries must not overlap Range.
	HostResources string

	// MaxBuffer caps a single read or write.
	MaxBuffer int
}

// Controller owns every resource of the one live device instance.
type Controller struct {
	cfg Config

	space     *memory.AddressSpace
	bus       iodev.PortBus
	mapper    memory.Mapper
	irqs      irq.Dispatcher
	registrar Registrar
	fence     iodev.Fence
	log       *slog.Logger

	state   State
	claim   *memory.Claim
	mapping *memory.Mapping
	bridge  *irq.Bridge
	major   int
	file    *device.File
}

type Option func(*Controller)

// WithAddressSpace overrides the process-wide space matching the backend.
func WithAddressSpace(as *memory.AddressSpace) Option {
	return func(c *Controller) { c.space = as }
}

// WithPortBus sets the bus of the port backend.
func WithPortBus(bus iodev.PortBus) Option {
	return func(c *Controller) { c.bus = bus }
}

// WithMapper sets how the MMIO window is mapped.
func WithMapper(m memory.Mapper) Option {
	return func(c *Controller) { c.mapper = m }
}

// WithInterrupts sets the dispatcher of the port backend's interrupt.
func WithInterrupts(d irq.Dispatcher) Option {
	return func(c *Controller) { c.irqs = d }
}

func WithRegistrar(r Registrar) Option {
	return func(c *Controller) { c.registrar = r }
}

func WithFence(f iodev.Fence) Option {
	return func(c *Controller) { c.fence = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

func New(cfg Config, opts ...Option) *Controller {
	c := &Controller{
		cfg:    cfg,
		mapper: memory.DevMemMapper(memory.DevMem),
		log:    slog.Default(),
	}

	if cfg.Kind == KindMMIO {
		c.space = memory.IOMem
	} else {
		c.space = memory.IOPorts
	}

	for _, opt := range opts {
		opt(c)
	}

	c.log = c.log.With("dev", cfg.Name)

	return c
}

// Init claims the range, arms the interrupt and registers the device. On
// failure everything acquired so far is released in reverse order and the
// controller is back in Unclaimed.
func (c *Controller) Init() error {
	if c.state != Unclaimed {
		return fmt.Errorf("%s: %w", c.cfg.Name, errAlreadyInitialized)
	}

	c.log.Info("init", "kind", c.cfg.Kind, "base", fmt.Sprintf("%#x", c.cfg.Range.Base))

	backend, err := c.claimResource()
	if err != nil {
		c.log.Error("cannot get address range", "range", c.cfg.Range.String(), "err", err)

		return err
	}

	c.state = ResourceClaimed

	if c.cfg.Kind == KindPort && c.cfg.IRQ >= 0 && c.irqs != nil {
		c.bridge = irq.NewBridge(c.irqs, c.cfg.Name)

		if err := c.bridge.Arm(c.cfg.IRQ); err != nil {
			c.log.Error("request irq failed", "irq", c.cfg.IRQ, "err", err)

			return c.unwind(err)
		}

		c.state = InterruptArmed
	}

	c.file = device.New(backend,
		device.WithBufferPool(device.NewBufferPool(c.cfg.MaxBuffer)),
		device.WithLogger(c.log))

	if c.registrar == nil {
		return c.unwind(fmt.Errorf("%s: no registrar: %w", c.cfg.Name, errdefs.ErrRegistration))
	}

	major, err := c.registrar.Register(c.cfg.Major, c.cfg.Name, c.file)
	if err != nil {
		c.log.Error("cannot get major number", "err", err)

		return c.unwind(err)
	}

	c.major = major
	c.state = Registered

	c.log.Info("registered", "major", major)

	return nil
}

func (c *Controller) claimResource() (iodev.Backend, error) {
	r := c.cfg.Range

	if c.cfg.HostResources != "" {
		conflicts, err := memory.HostConflicts(c.cfg.HostResources, r)
		if err != nil {
			return nil, fmt.Errorf("%s: host resources: %w", c.cfg.Name, err)
		}

		if len(conflicts) > 0 {
			return nil, fmt.Errorf("%s: %v overlaps %q: %w: %w",
				c.cfg.Name, r, conflicts[0].Name, errHostConflict, memory.ErrAddressRangeUnavailable)
		}
	}

	claim, err := c.space.Claim(c.cfg.Name, r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.cfg.Name, err)
	}

	c.claim = claim

	switch c.cfg.Kind {
	case KindPort:
		if c.bus == nil {
			c.releaseClaim()

			return nil, fmt.Errorf("%s: no port bus: %w", c.cfg.Name, errdefs.ErrResource)
		}

		return iodev.NewPort(c.bus, r.Base, c.fence), nil
	case KindMMIO:
		m, err := c.mapper(r, c.cfg.Window)
		if err != nil {
			c.releaseClaim()

			return nil, fmt.Errorf("%s: map %v: %w: %w", c.cfg.Name, r, errdefs.ErrResource, err)
		}

		c.mapping = m
		c.log.Info("mapped", "range", r.String(), "window", c.cfg.Window)

		b, err := iodev.NewMMIO(m.Buf, r.Base, c.fence)
		if err != nil {
			c.unmap()
			c.releaseClaim()

			return nil, fmt.Errorf("%s: %w: %w", c.cfg.Name, errdefs.ErrResource, err)
		}

		return b, nil
	}

	c.releaseClaim()

	return nil, fmt.Errorf("%s: %q: %w", c.cfg.Name, c.cfg.Kind, errUnknownKind)
}

// unwind releases whatever prefix of Init succeeded and returns cause.
func (c *Controller) unwind(cause error) error {
	if err := c.teardown(); err != nil {
		c.log.Error("unwind", "err", err)
	}

	return cause
}

// Exit releases every resource. It is safe from any state; steps that were
// never taken are skipped.
func (c *Controller) Exit() error {
	if c.state == Unclaimed {
		return nil
	}

	err := c.teardown()

	c.log.Info("exit", "err", err)

	return err
}

func (c *Controller) teardown() error {
	var errs []error

	if c.state == Registered {
		if err := c.registrar.Unregister(c.major, c.cfg.Name); err != nil {
			errs = append(errs, err)
		}

		c.major = 0
	}

	if c.bridge != nil {
		if err := c.bridge.Disarm(); err != nil {
			errs = append(errs, err)
		}
	}

	c.file = nil
	errs = append(errs, c.unmap(), c.releaseClaim())
	c.state = Unclaimed

	return errors.Join(errs...)
}

func (c *Controller) unmap() error {
	if c.mapping == nil {
		return nil
	}

	err := c.mapping.Unmap()
	c.mapping = nil

	return err
}

func (c *Controller) releaseClaim() error {
	if c.claim == nil {
		return nil
	}

	err := c.claim.Release()
	c.claim = nil

	return err
}

func (c *Controller) State() State {
	return c.state
}

// Major is the bound major number, valid in Registered.
func (c *Controller) Major() int {
	return c.major
}

// File is the device operations, valid in Registered.
func (c *Controller) File() *device.File {
	return c.file
}

// Interrupts is the delivery record, or nil when no interrupt is in use.
func (c *Controller) Interrupts() *irq.Record {
	if c.bridge == nil {
		return nil
	}

	return c.bridge.Record()
}
