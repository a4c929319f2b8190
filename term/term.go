package term

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether standard input is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// SetRawMode puts standard input in raw mode and returns the function that
// restores the previous mode.
func SetRawMode() (func(), error) {
	fd := int(os.Stdin.Fd())

	old, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}, err
	}

	return func() {
		_ = term.Restore(fd, old)
	}, nil
}
