// Package probe reports who holds an address range, on the host and in
// this process.
package probe

import (
	"fmt"
	"io"

	"github.com/bobuhiro11/goshort/memory"
)

// Resources prints the entries of the host table at path that overlap r,
// followed by the live claims of space on it.
func Resources(w io.Writer, path string, space *memory.AddressSpace, r memory.AddressRange) error {
	conflicts, err := memory.HostConflicts(path, r)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s %v\n", path, r)

	if len(conflicts) == 0 {
		fmt.Fprintln(w, "  free")
	}

	for _, res := range conflicts {
		fmt.Fprintf(w, "  %*s%v : %s\n", 2*res.Depth, "", res.Range, res.Name)
	}

	fmt.Fprintf(w, "%s %v\n", space.Name, r)

	held := false

	for _, c := range space.Claims() {
		if c.Range.Overlaps(r) {
			fmt.Fprintf(w, "  %v : %s\n", c.Range, c.Owner)

			held = true
		}
	}

	if !held {
		fmt.Fprintln(w, "  free")
	}

	return nil
}
