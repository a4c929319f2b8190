package device_test

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/bobuhiro11/goshort/device"
	"github.com/bobuhiro11/goshort/errdefs"
	"github.com/bobuhiro11/goshort/iodev"
)

// bus feeds scripted bytes to reads and records every transfer and barrier.
type bus struct {
	input   []byte
	written []byte
	events  []string
}

func (b *bus) In(port uint64, data []byte) error {
	data[0] = b.input[0]
	b.input = b.input[1:]
	b.events = append(b.events, fmt.Sprintf("in %#x", data[0]))

	return nil
}

func (b *bus) Out(port uint64, data []byte) error {
	b.written = append(b.written, data[0])
	b.events = append(b.events, fmt.Sprintf("out %#x", data[0]))

	return nil
}

func (b *bus) Read()  { b.events = append(b.events, "rmb") }
func (b *bus) Write() { b.events = append(b.events, "wmb") }

func newFile(b *bus, opts ...device.Option) *device.File {
	return device.New(iodev.NewPort(b, 0x200, b), opts...)
}

func TestOpenRelease(t *testing.T) {
	t.Parallel()

	f := newFile(&bus{})

	if err := f.Open(); err != nil {
		t.Fatal(err)
	}

	if err := f.Release(); err != nil {
		t.Fatal(err)
	}
}

func TestWriteScenario(t *testing.T) {
	t.Parallel()

	b := &bus{}
	f := newFile(b)

	n, err := f.Write([]byte{0x41, 0x42})
	if err != nil {
		t.Fatal(err)
	}

	if n != 2 {
		t.Fatalf("expected: %v, actual: %v", 2, n)
	}

	expected := []string{"out 0x41", "wmb", "out 0x42", "wmb"}
	if !reflect.DeepEqual(expected, b.events) {
		t.Fatalf("expected: %v, actual: %v", expected, b.events)
	}
}

func TestReadStopsAtNewline(t *testing.T) {
	t.Parallel()

	b := &bus{input: []byte{0x58, 0x0a, 0x59}}
	f := newFile(b)
	buf := make([]byte, 3)

	n, err := f.Read(buf, 0)
	if err != nil {
		t.Fatal(err)
	}

	if n != 2 {
		t.Fatalf("expected: %v, actual: %v", 2, n)
	}

	if !bytes.Equal(buf[:n], []byte{0x58, 0x0a}) {
		t.Fatalf("expected: %v, actual: %v", []byte{0x58, 0x0a}, buf[:n])
	}

	if len(b.input) != 1 {
		t.Fatalf("read past newline: %d bytes left", len(b.input))
	}

	expected := []string{"in 0x58", "rmb", "in 0xa", "rmb"}
	if !reflect.DeepEqual(expected, b.events) {
		t.Fatalf("expected: %v, actual: %v", expected, b.events)
	}
}

func TestReadAtOffset(t *testing.T) {
	t.Parallel()

	b := &bus{input: []byte{1, 2, 3, 4}}
	f := newFile(b)
	buf := []byte{0xff, 0xff, 0xff, 0xff, 0xff}

	n, err := f.Read(buf, 2)
	if err != nil {
		t.Fatal(err)
	}

	if n != 5 {
		t.Fatalf("expected: %v, actual: %v", 5, n)
	}

	expected := []byte{0, 0, 1, 2, 3}
	if !bytes.Equal(expected, buf) {
		t.Fatalf("expected: %v, actual: %v", expected, buf)
	}
}

func TestReadOffsetPastCount(t *testing.T) {
	t.Parallel()

	for _, off := range []int64{3, 4, 1 << 40} {
		b := &bus{}
		f := newFile(b)
		buf := []byte{0xff, 0xff, 0xff}

		n, err := f.Read(buf, off)
		if err != nil {
			t.Fatal(err)
		}

		if n != 0 {
			t.Fatalf("offset %d: expected: %v, actual: %v", off, 0, n)
		}

		if len(b.events) != 0 {
			t.Fatalf("offset %d: backend touched: %v", off, b.events)
		}

		if !bytes.Equal(buf, []byte{0xff, 0xff, 0xff}) {
			t.Fatalf("offset %d: caller buffer modified: %v", off, buf)
		}
	}
}

func TestReadNegativeOffset(t *testing.T) {
	t.Parallel()

	if _, err := newFile(&bus{}).Read(make([]byte, 4), -1); err == nil {
		t.Fatal("negative offset accepted")
	}
}

func TestReadProperties(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewSource(1))

	for iter := 0; iter < 500; iter++ {
		count := 1 + rnd.Intn(64)
		input := make([]byte, count)

		for i := range input {
			// Roughly one newline in twenty bytes.
			if rnd.Intn(20) == 0 {
				input[i] = '\n'
			} else {
				input[i] = byte('a' + rnd.Intn(26))
			}
		}

		b := &bus{input: append([]byte(nil), input...)}
		buf := make([]byte, count)

		n, err := newFile(b).Read(buf, 0)
		if err != nil {
			t.Fatal(err)
		}

		expected := count
		if i := bytes.IndexByte(input, '\n'); i >= 0 {
			expected = i + 1
		}

		if n != expected {
			t.Fatalf("input %q: expected: %v, actual: %v", input, expected, n)
		}

		if !bytes.Equal(buf[:n], input[:n]) {
			t.Fatalf("expected: %q, actual: %q", input[:n], buf[:n])
		}
	}
}

func TestWriteProperties(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewSource(2))

	for iter := 0; iter < 200; iter++ {
		input := make([]byte, 1+rnd.Intn(256))
		rnd.Read(input)

		b := &bus{}

		n, err := newFile(b).Write(input)
		if err != nil {
			t.Fatal(err)
		}

		if n != len(input) {
			t.Fatalf("expected: %v, actual: %v", len(input), n)
		}

		if !bytes.Equal(b.written, input) {
			t.Fatalf("expected: %v, actual: %v", input, b.written)
		}

		if len(b.events) != 2*len(input) {
			t.Fatalf("expected: %v, actual: %v", 2*len(input), len(b.events))
		}
	}
}

type faultyCopier struct{}

func (faultyCopier) CopyToUser(dst, src []byte) error {
	return fmt.Errorf("copy out: %w", errdefs.ErrFault)
}

func (faultyCopier) CopyFromUser(dst, src []byte) error {
	return fmt.Errorf("copy in: %w", errdefs.ErrFault)
}

func TestFaultReleasesBuffer(t *testing.T) {
	t.Parallel()

	pool := device.NewBufferPool(64)
	b := &bus{input: []byte{'x', '\n'}}
	f := newFile(b, device.WithBufferPool(pool), device.WithUserCopier(faultyCopier{}))

	if _, err := f.Read(make([]byte, 4), 0); !errors.Is(err, errdefs.ErrFault) {
		t.Fatalf("expected: %v, actual: %v", errdefs.ErrFault, err)
	}

	if _, err := f.Write([]byte("abc")); !errors.Is(err, errdefs.ErrFault) {
		t.Fatalf("expected: %v, actual: %v", errdefs.ErrFault, err)
	}

	if len(b.written) != 0 {
		t.Fatalf("bytes written after copy-in fault: %v", b.written)
	}

	if n := pool.InUse(); n != 0 {
		t.Fatalf("leaked %d buffers", n)
	}
}

func TestOutOfMemory(t *testing.T) {
	t.Parallel()

	pool := device.NewBufferPool(4)
	b := &bus{input: []byte("abcdefgh")}
	f := newFile(b, device.WithBufferPool(pool))

	if _, err := f.Read(make([]byte, 5), 0); !errors.Is(err, errdefs.ErrOutOfMemory) {
		t.Fatalf("expected: %v, actual: %v", errdefs.ErrOutOfMemory, err)
	}

	if _, err := f.Write(make([]byte, 5)); !errors.Is(err, errdefs.ErrOutOfMemory) {
		t.Fatalf("expected: %v, actual: %v", errdefs.ErrOutOfMemory, err)
	}

	if len(b.events) != 0 {
		t.Fatalf("backend touched: %v", b.events)
	}

	if n := pool.InUse(); n != 0 {
		t.Fatalf("leaked %d buffers", n)
	}
}

func TestShortCallerBuffer(t *testing.T) {
	t.Parallel()

	var c device.DirectCopier

	if err := c.CopyToUser(make([]byte, 1), []byte{1, 2}); !errors.Is(err, errdefs.ErrFault) {
		t.Fatalf("expected: %v, actual: %v", errdefs.ErrFault, err)
	}

	if err := c.CopyFromUser(make([]byte, 2), []byte{1}); !errors.Is(err, errdefs.ErrFault) {
		t.Fatalf("expected: %v, actual: %v", errdefs.ErrFault, err)
	}
}

func TestPoolReuseIsZeroed(t *testing.T) {
	t.Parallel()

	pool := device.NewBufferPool(0)

	b, err := pool.Get(8)
	if err != nil {
		t.Fatal(err)
	}

	copy(b, "dirtydat")
	pool.Put(b)

	b, err = pool.Get(6)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(b, make([]byte, 6)) {
		t.Fatalf("reused buffer not zeroed: %q", b)
	}

	pool.Put(b)
}
