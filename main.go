package main

import (
	"log/slog"
	"os"

	"github.com/bobuhiro11/goshort/flag"
)

func main() {
	if err := flag.Parse(); err != nil {
		slog.Error("goshort", "err", err)
		os.Exit(1)
	}
}
