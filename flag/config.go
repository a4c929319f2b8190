package flag

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/bobuhiro11/goshort/driver"
	"github.com/bobuhiro11/goshort/iodev"
	"github.com/bobuhiro11/goshort/memory"
)

// Bus names.
const (
	BusDev = "dev"
	BusSim = "sim"
)

var errConfig = errors.New("invalid configuration")

// Config is the on-disk configuration. Empty fields take the defaults of
// the selected backend.
type Config struct {
	Name      string `yaml:"name"`
	Backend   string `yaml:"backend"`
	Bus       string `yaml:"bus"`
	Base      string `yaml:"base"`
	Length    string `yaml:"length"`
	Window    string `yaml:"window"`
	IRQ       *int   `yaml:"irq"`
	Major     int    `yaml:"major"`
	HostCheck bool   `yaml:"host_check"`
	MaxBuffer string `yaml:"max_buffer"`

	DevPort string `yaml:"dev_port"`
	DevMem  string `yaml:"dev_mem"`
	UIO     string `yaml:"uio"`
}

// LoadConfig reads a YAML configuration. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	var c Config

	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return c, fmt.Errorf("%s: %w", path, err)
	}

	return c, nil
}

// WithDefaults fills every empty field from the backend defaults: the
// legacy parallel port block for port I/O, a 16 byte window high in
// physical memory for MMIO.
func (c Config) WithDefaults() Config {
	if c.Backend == "" {
		c.Backend = string(driver.KindPort)
	}

	if c.Bus == "" {
		c.Bus = BusDev
	}

	port := c.Backend == string(driver.KindPort)

	if c.Name == "" {
		c.Name = "short"
		if !port {
			c.Name = "short_mmio"
		}
	}

	if c.Base == "" {
		c.Base = "0x200"
		if !port {
			c.Base = "0xff000000"
		}
	}

	if c.Length == "" {
		c.Length = "8"
		if !port {
			c.Length = "0x10"
		}
	}

	if c.Window == "" {
		c.Window = "0x10"
	}

	if c.IRQ == nil {
		line := 6
		if !port {
			line = -1
		}

		c.IRQ = &line
	}

	if c.MaxBuffer == "" {
		c.MaxBuffer = "1M"
	}

	if c.DevPort == "" {
		c.DevPort = iodev.DevPortPath
	}

	if c.DevMem == "" {
		c.DevMem = memory.DevMem
	}

	return c
}

// Driver converts the configuration into the controller's terms.
func (c Config) Driver() (driver.Config, error) {
	c = c.WithDefaults()

	kind := driver.Kind(c.Backend)
	if kind != driver.KindPort && kind != driver.KindMMIO {
		return driver.Config{}, fmt.Errorf("backend %q: %w", c.Backend, errConfig)
	}

	if c.Bus != BusDev && c.Bus != BusSim {
		return driver.Config{}, fmt.Errorf("bus %q: %w", c.Bus, errConfig)
	}

	base, err := ParseAddr(c.Base)
	if err != nil {
		return driver.Config{}, err
	}

	length, err := ParseSize(c.Length, "")
	if err != nil {
		return driver.Config{}, fmt.Errorf("length: %w", err)
	}

	window, err := ParseSize(c.Window, "")
	if err != nil {
		return driver.Config{}, fmt.Errorf("window: %w", err)
	}

	maxBuf, err := ParseSize(c.MaxBuffer, "")
	if err != nil {
		return driver.Config{}, fmt.Errorf("max_buffer: %w", err)
	}

	dc := driver.Config{
		Name:      c.Name,
		Kind:      kind,
		Range:     memory.AddressRange{Base: base, Length: uint64(length)},
		Window:    window,
		IRQ:       *c.IRQ,
		Major:     c.Major,
		MaxBuffer: maxBuf,
	}

	if err := dc.Range.Validate(); err != nil {
		return driver.Config{}, err
	}

	if c.HostCheck {
		dc.HostResources = memory.ProcIOPorts
		if kind == driver.KindMMIO {
			dc.HostResources = memory.ProcIOMem
		}
	}

	return dc, nil
}

// Resolve layers the command line over the configuration file over the
// defaults.
func (cli *CLI) Resolve() (Config, error) {
	var c Config

	if cli.Config != "" {
		loaded, err := LoadConfig(cli.Config)
		if err != nil {
			return c, err
		}

		c = loaded
	}

	for dst, src := range map[*string]string{
		&c.Backend: cli.Backend,
		&c.Bus:     cli.Bus,
		&c.Base:    cli.Base,
		&c.Length:  cli.Length,
		&c.Window:  cli.Window,
	} {
		if src != "" {
			*dst = src
		}
	}

	if cli.IRQ != "" {
		line, err := strconv.Atoi(cli.IRQ)
		if err != nil {
			return c, fmt.Errorf("irq %q: %w", cli.IRQ, err)
		}

		c.IRQ = &line
	}

	if cli.Major >= 0 {
		c.Major = cli.Major
	}

	if cli.HostCheck {
		c.HostCheck = true
	}

	return c.WithDefaults(), nil
}
