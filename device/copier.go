package device

import (
	"fmt"

	"github.com/bobuhiro11/goshort/errdefs"
)

// UserCopier moves bytes across the caller boundary. A copy that cannot
// complete fails with errdefs.ErrFault and leaves dst unspecified.
type UserCopier interface {
	CopyToUser(dst, src []byte) error
	CopyFromUser(dst, src []byte) error
}

// DirectCopier copies between slices of the same address space.
type DirectCopier struct{}

func (DirectCopier) CopyToUser(dst, src []byte) error {
	if len(dst) < len(src) {
		return fmt.Errorf("copy %d bytes to %d byte buffer: %w", len(src), len(dst), errdefs.ErrFault)
	}

	copy(dst, src)

	return nil
}

func (DirectCopier) CopyFromUser(dst, src []byte) error {
	if len(src) < len(dst) {
		return fmt.Errorf("copy %d bytes from %d byte buffer: %w", len(dst), len(src), errdefs.ErrFault)
	}

	copy(dst, src)

	return nil
}
