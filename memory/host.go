package memory

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Host resource tables as published by the kernel.
const (
	ProcIOPorts = "/proc/ioports"
	ProcIOMem   = "/proc/iomem"
)

// HostResource is one line of /proc/ioports or /proc/iomem.
type HostResource struct {
	Name  string
	Range AddressRange
	Depth int
}

// ParseHostResources reads the "start-end : name" table format. Nesting is
// expressed by two spaces of indentation per level.
func ParseHostResources(r io.Reader) ([]HostResource, error) {
	var out []HostResource

	sc := bufio.NewScanner(r)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		trimmed := strings.TrimLeft(line, " ")
		depth := (len(line) - len(trimmed)) / 2

		span, name, ok := strings.Cut(trimmed, " : ")
		if !ok {
			return nil, fmt.Errorf("line %d: missing separator: %q", lineNo, line)
		}

		lo, hi, ok := strings.Cut(span, "-")
		if !ok {
			return nil, fmt.Errorf("line %d: malformed span: %q", lineNo, span)
		}

		start, err := strconv.ParseUint(lo, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		end, err := strconv.ParseUint(hi, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		if end < start {
			return nil, fmt.Errorf("line %d: end %#x before start %#x", lineNo, end, start)
		}

		out = append(out, HostResource{
			Name:  strings.TrimSpace(name),
			Range: AddressRange{Base: start, Length: end - start + 1},
			Depth: depth,
		})
	}

	return out, sc.Err()
}

// HostConflicts returns the entries of the table at path overlapping r.
// Unprivileged readers see every span as zero; those entries are skipped.
func HostConflicts(path string, r AddressRange) ([]HostResource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	all, err := ParseHostResources(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var out []HostResource

	for _, res := range all {
		if res.Range.Base == 0 && res.Range.Length == 1 {
			continue
		}

		if res.Range.Overlaps(r) {
			out = append(out, res)
		}
	}

	return out, nil
}
