package memory_test

import (
	"errors"
	"testing"

	"github.com/bobuhiro11/goshort/errdefs"
	"github.com/bobuhiro11/goshort/memory"
)

func TestClaimExclusive(t *testing.T) {
	t.Parallel()

	as := memory.NewAddressSpace("test")
	r := memory.AddressRange{Base: 0x200, Length: 8}

	first, err := as.Claim("short", r)
	if err != nil {
		t.Fatal(err)
	}

	overlapping := []memory.AddressRange{
		r,
		{Base: 0x1ff, Length: 2},
		{Base: 0x207, Length: 1},
		{Base: 0x100, Length: 0x200},
	}

	for _, o := range overlapping {
		if _, err := as.Claim("other", o); !errors.Is(err, memory.ErrAddressRangeUnavailable) {
			t.Fatalf("claim %v: expected: %v, actual: %v", o, memory.ErrAddressRangeUnavailable, err)
		}
	}

	if _, err := as.Claim("other", r); !errors.Is(err, errdefs.ErrResource) {
		t.Fatalf("expected: %v, actual: %v", errdefs.ErrResource, err)
	}

	if err := first.Release(); err != nil {
		t.Fatal(err)
	}

	second, err := as.Claim("short", r)
	if err != nil {
		t.Fatalf("reclaim after release: %v", err)
	}

	if err := second.Release(); err != nil {
		t.Fatal(err)
	}
}

func TestClaimAdjacent(t *testing.T) {
	t.Parallel()

	as := memory.NewAddressSpace("test")

	if _, err := as.Claim("a", memory.AddressRange{Base: 0x200, Length: 8}); err != nil {
		t.Fatal(err)
	}

	if _, err := as.Claim("b", memory.AddressRange{Base: 0x208, Length: 8}); err != nil {
		t.Fatalf("adjacent range: %v", err)
	}

	if _, err := as.Claim("c", memory.AddressRange{Base: 0x1f8, Length: 8}); err != nil {
		t.Fatalf("adjacent range: %v", err)
	}

	if n := len(as.Claims()); n != 3 {
		t.Fatalf("expected: %v, actual: %v", 3, n)
	}
}

func TestReleaseOnce(t *testing.T) {
	t.Parallel()

	as := memory.NewAddressSpace("test")

	c, err := as.Claim("short", memory.AddressRange{Base: 0x200, Length: 8})
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Release(); err != nil {
		t.Fatal(err)
	}

	if err := c.Release(); err == nil {
		t.Fatal("second release succeeded")
	}

	if !as.IsFree(c.Range) {
		t.Fatal("range still held after release")
	}
}

func TestClaimInvalidRange(t *testing.T) {
	t.Parallel()

	as := memory.NewAddressSpace("test")

	for _, r := range []memory.AddressRange{
		{Base: 0x200, Length: 0},
		{Base: ^uint64(0) - 1, Length: 4},
	} {
		if _, err := as.Claim("short", r); err == nil {
			t.Fatalf("claim %+v succeeded", r)
		}
	}
}

func TestAddressRangeString(t *testing.T) {
	t.Parallel()

	expected := "0x200-0x207"
	actual := memory.AddressRange{Base: 0x200, Length: 8}.String()

	if expected != actual {
		t.Fatalf("expected: %v, actual: %v", expected, actual)
	}
}
