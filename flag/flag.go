package flag

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSize parses a size string as number[gGmMkK]. The multiplier is optional,
// and if not set, the unit passed in is used. The number can be any base and
// size.
func ParseSize(s, unit string) (int, error) {
	sz := strings.TrimRight(s, "gGmMkK")
	if len(sz) == 0 {
		return -1, fmt.Errorf("%q:can't parse as num[gGmMkK]:%w", s, strconv.ErrSyntax)
	}

	amt, err := strconv.ParseUint(sz, 0, 0)
	if err != nil {
		return -1, err
	}

	if len(s) > len(sz) {
		unit = s[len(sz):]
	}

	switch unit {
	case "G", "g":
		return int(amt) << 30, nil
	case "M", "m":
		return int(amt) << 20, nil
	case "K", "k":
		return int(amt) << 10, nil
	case "":
		return int(amt), nil
	}

	return -1, fmt.Errorf("can not parse %q as num[gGmMkK]:%w", s, strconv.ErrSyntax)
}

// ParseAddr parses a physical or port address in any base, 0x prefixed
// hex being the usual form.
func ParseAddr(s string) (uint64, error) {
	addr, err := strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%q:can't parse as address:%w", s, err)
	}

	return addr, nil
}

// CLI is the command line of goshort. Global flags override the
// configuration file, which overrides the built-in defaults.
type CLI struct {
	Config   string `short:"f" type:"path" help:"YAML configuration file."`
	LogLevel string `default:"info" enum:"debug,info,warn,error" help:"Log level (${enum})."`

	Backend   string `short:"b" help:"Backend: port or mmio."`
	Bus       string `help:"Bus: dev for the host devices, sim for the loopback simulation."`
	Base      string `help:"Base address of the range."`
	Length    string `help:"Length of the range."`
	Window    string `help:"Mapped window size (mmio)."`
	IRQ       string `name:"irq" help:"Interrupt line (port); -1 disables."`
	Major     int    `default:"-1" help:"Major number; 0 allocates one."`
	HostCheck bool   `help:"Refuse ranges the host kernel has already claimed."`

	Read    ReadCMD    `cmd:"" help:"Read up to a newline from the device."`
	Write   WriteCMD   `cmd:"" help:"Write bytes to the device."`
	Console ConsoleCMD `cmd:"" help:"Interactive console on the device."`
	Probe   ProbeCMD   `cmd:"" help:"Show host and driver claims overlapping the range."`
}

type ReadCMD struct {
	Count  int    `short:"c" default:"128" help:"Bytes to request."`
	Offset int64  `short:"o" default:"0" help:"File offset to start at."`
	Feed   string `help:"Queue these bytes on the simulated bus before reading."`
}

type WriteCMD struct {
	Data    string `arg:"" help:"Bytes to write."`
	Newline bool   `short:"n" help:"Append a newline."`
}

type ConsoleCMD struct{}

type ProbeCMD struct{}
