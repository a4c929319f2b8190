package irq_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bobuhiro11/goshort/irq"
	"golang.org/x/sys/unix"
)

func TestUIOMissingNode(t *testing.T) {
	t.Parallel()

	u := irq.NewUIO(filepath.Join(t.TempDir(), "uio0"), 6, nil)
	b := irq.NewBridge(u, "short")

	if err := b.Arm(6); !errors.Is(err, irq.ErrInterruptUnavailable) {
		t.Fatalf("expected: %v, actual: %v", irq.ErrInterruptUnavailable, err)
	}

	if err := b.Disarm(); err != nil {
		t.Fatal(err)
	}
}

func TestUIOWrongLine(t *testing.T) {
	t.Parallel()

	u := irq.NewUIO("/dev/uio0", 6, nil)

	if err := u.Request(7, "short", func(int) irq.Result { return irq.Handled }); !errors.Is(err, irq.ErrInterruptUnavailable) {
		t.Fatalf("expected: %v, actual: %v", irq.ErrInterruptUnavailable, err)
	}

	if err := u.Free(6); err == nil {
		t.Fatal("freed an unrequested line")
	}
}

func TestUIODispatch(t *testing.T) {
	t.Parallel()

	node := filepath.Join(t.TempDir(), "uio0")
	if err := unix.Mkfifo(node, 0o600); err != nil {
		t.Skipf("mkfifo: %v", err)
	}

	fired := make(chan int, 1)
	u := irq.NewUIO(node, 6, nil)

	// The fifo hands every unmask write back as the next event count.
	err := u.Request(6, "short", func(line int) irq.Result {
		select {
		case fired <- line:
		default:
		}

		return irq.Handled
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case line := <-fired:
		if line != 6 {
			t.Fatalf("expected: %v, actual: %v", 6, line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler never ran")
	}

	freed := make(chan error, 1)

	go func() { freed <- u.Free(6) }()

	select {
	case err := <-freed:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("free did not stop the dispatch loop")
	}

	if err := u.Free(6); err == nil {
		t.Fatal("freed a line twice")
	}
}
