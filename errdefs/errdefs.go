// Package errdefs holds the error classes shared by every layer of the
// driver. Concrete errors wrap one of these so callers can match with
// errors.Is regardless of which component produced them.
package errdefs

import "errors"

var (
	// ErrResource is an address range or interrupt line that cannot be
	// acquired. Fatal to initialization and never retried.
	ErrResource = errors.New("resource unavailable")

	// ErrOutOfMemory is a failed temporary buffer allocation on read or write.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrFault is a caller buffer that cannot be copied to or from.
	ErrFault = errors.New("bad address")

	// ErrRegistration is a failed device identity binding.
	ErrRegistration = errors.New("device registration failed")
)
