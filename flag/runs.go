package flag

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/bobuhiro11/goshort/driver"
	"github.com/bobuhiro11/goshort/memory"
	"github.com/bobuhiro11/goshort/probe"
	"github.com/bobuhiro11/goshort/term"
)

const (
	programName = "goshort"
	programDesc = "goshort drives a single byte wide I/O port or MMIO register as a character device"
)

// Parse parses the command line and runs the selected command.
func Parse() error {
	c := CLI{}

	ctx := kong.Parse(&c,
		kong.Name(programName),
		kong.Description(programDesc),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	return ctx.Run(&c)
}

// Logger builds the process logger at the configured level.
func (cli *CLI) Logger(w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level

	if err := lvl.UnmarshalText([]byte(cli.LogLevel)); err != nil {
		return nil, err
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func (cli *CLI) session() (*Session, error) {
	log, err := cli.Logger(os.Stderr)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(log)

	c, err := cli.Resolve()
	if err != nil {
		return nil, err
	}

	return Open(c, log)
}

func (r *ReadCMD) Run(cli *CLI) (err error) {
	s, err := cli.session()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	if r.Feed != "" {
		if s.UART == nil {
			return fmt.Errorf("--feed needs the simulated port bus")
		}

		if n := s.UART.Feed([]byte(r.Feed)); n < len(r.Feed) {
			slog.Warn("feed truncated", "queued", n, "dropped", len(r.Feed)-n)
		}
	}

	buf := make([]byte, r.Count)

	n, err := s.Node.ReadOffset(buf, r.Offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	_, err = os.Stdout.Write(buf[:n])

	return err
}

func (w *WriteCMD) Run(cli *CLI) (err error) {
	s, err := cli.session()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	data := []byte(w.Data)
	if w.Newline {
		data = append(data, '\n')
	}

	n, err := s.Node.Write(data)
	if err != nil {
		return err
	}

	slog.Info("wrote", "bytes", n)

	return nil
}

// Run echoes each typed line through the device. Ctrl-A x quits.
func (con *ConsoleCMD) Run(cli *CLI) (err error) {
	s, err := cli.session()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	if !term.IsTerminal() {
		return fmt.Errorf("this is not terminal and does not accept input")
	}

	restoreMode, err := term.SetRawMode()
	if err != nil {
		return err
	}
	defer restoreMode()

	var before byte

	in := bufio.NewReader(os.Stdin)
	line := make([]byte, 256)

	for {
		b, err := in.ReadByte()
		if err != nil {
			return err
		}

		if before == 0x1 && b == 'x' {
			break
		}

		before = b

		if b == '\r' {
			b = '\n'
		}

		if _, err := s.Node.Write([]byte{b}); err != nil {
			return err
		}

		if b != '\n' {
			continue
		}

		n, err := s.Node.Read(line)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		fmt.Printf("\r\n%q\r\n", line[:n])
	}

	if rec := s.Interrupts(); rec != nil {
		fmt.Printf("\r\nirq %d: %d deliveries, last ok %v\r\n", rec.Line(), rec.Deliveries(), rec.LastDeliveryOK())
	}

	return nil
}

func (p *ProbeCMD) Run(cli *CLI) error {
	c, err := cli.Resolve()
	if err != nil {
		return err
	}

	dc, err := c.Driver()
	if err != nil {
		return err
	}

	table, space := memory.ProcIOPorts, memory.IOPorts
	if dc.Kind == driver.KindMMIO {
		table, space = memory.ProcIOMem, memory.IOMem
	}

	return probe.Resources(os.Stdout, table, space, dc.Range)
}
