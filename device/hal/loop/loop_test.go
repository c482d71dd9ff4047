package loop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/usbwire/device/hal"
	"github.com/ardnew/usbwire/wire"
)

func TestSendReceive(t *testing.T) {
	host, dev := New(0)
	ctx := context.Background()

	sent := wire.Line{wire.K, wire.J, wire.SE0}
	if err := host.Send(ctx, sent); err != nil {
		t.Fatal(err)
	}
	sent[0] = wire.J // Send copies
	got, err := dev.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "KJ0" {
		t.Errorf("Receive() = %s, want KJ0", got)
	}

	if err := dev.Send(ctx, wire.Line{wire.J}); err != nil {
		t.Fatal(err)
	}
	if got, err := host.Receive(ctx); err != nil || got.String() != "J" {
		t.Errorf("host Receive() = %s, %v", got, err)
	}
}

func TestReset(t *testing.T) {
	host, dev := New(1)
	ctx := context.Background()
	if err := host.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := dev.Receive(ctx); !errors.Is(err, hal.ErrReset) {
		t.Errorf("Receive() error = %v, want ErrReset", err)
	}
}

func TestReceiveCancelled(t *testing.T) {
	_, dev := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := dev.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Receive() error = %v, want deadline exceeded", err)
	}
}

func TestClose(t *testing.T) {
	host, dev := New(0)
	if err := dev.Close(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := host.Send(ctx, wire.Line{wire.J}); !errors.Is(err, hal.ErrClosed) {
		t.Errorf("Send() error = %v, want ErrClosed", err)
	}
	if _, err := host.Receive(ctx); !errors.Is(err, hal.ErrClosed) {
		t.Errorf("Receive() error = %v, want ErrClosed", err)
	}
	if err := host.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
