package memory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bobuhiro11/goshort/errdefs"
)

var (
	// ErrAddressRangeUnavailable is returned when a claim overlaps a live one.
	ErrAddressRangeUnavailable = fmt.Errorf("address range unavailable: %w", errdefs.ErrResource)

	errInvalidRange = errors.New("invalid address range")
	errNotClaimed   = errors.New("address range not claimed")
)

// IOPorts and IOMem are the process-wide port and memory address spaces.
var (
	IOPorts = NewAddressSpace("ioport")
	IOMem   = NewAddressSpace("iomem")
)

// AddressRange is the half-open interval [Base, Base+Length).
type AddressRange struct {
	Base   uint64
	Length uint64
}

// End returns the first address past the range.
func (r AddressRange) End() uint64 {
	return r.Base + r.Length
}

// Validate reports an empty or wrapping range.
func (r AddressRange) Validate() error {
	if r.Length == 0 {
		return fmt.Errorf("%v: zero length: %w", r, errInvalidRange)
	}

	if r.End() < r.Base {
		return fmt.Errorf("%v: overflows: %w", r, errInvalidRange)
	}

	return nil
}

func (r AddressRange) Overlaps(o AddressRange) bool {
	return r.Base < o.End() && o.Base < r.End()
}

func (r AddressRange) String() string {
	return fmt.Sprintf("%#x-%#x", r.Base, r.End()-1)
}

// AddressSpace tracks the live claims inside one address space.
type AddressSpace struct {
	Name string

	mu     sync.Mutex
	claims []*Claim
}

func NewAddressSpace(name string) *AddressSpace {
	return &AddressSpace{
		Name: name,
	}
}

// Claim reserves r for owner until the returned claim is released.
func (a *AddressSpace) Claim(owner string, r AddressRange) (*Claim, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, c := range a.claims {
		if c.Range.Overlaps(r) {
			return nil, fmt.Errorf("%s %v held by %q: %w", a.Name, r, c.Owner, ErrAddressRangeUnavailable)
		}
	}

	c := &Claim{
		Owner: owner,
		Range: r,
		space: a,
	}
	a.claims = append(a.claims, c)

	return c, nil
}

// IsFree reports whether r could be claimed right now.
func (a *AddressSpace) IsFree(r AddressRange) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, c := range a.claims {
		if c.Range.Overlaps(r) {
			return false
		}
	}

	return true
}

// Claims returns a snapshot of the live claims.
func (a *AddressSpace) Claims() []Claim {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Claim, 0, len(a.claims))
	for _, c := range a.claims {
		out = append(out, Claim{Owner: c.Owner, Range: c.Range})
	}

	return out
}

func (a *AddressSpace) remove(c *Claim) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, live := range a.claims {
		if live == c {
			a.claims = append(a.claims[:i], a.claims[i+1:]...)

			return nil
		}
	}

	return fmt.Errorf("%s %v: %w", a.Name, c.Range, errNotClaimed)
}

// Claim is an exclusive reservation of a range.
type Claim struct {
	Owner string
	Range AddressRange

	space *AddressSpace
}

// Release gives the range back. It succeeds exactly once per claim.
func (c *Claim) Release() error {
	if c.space == nil {
		return fmt.Errorf("%v: %w", c.Range, errNotClaimed)
	}

	return c.space.remove(c)
}
