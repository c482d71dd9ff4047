package fifo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ardnew/usbwire/device/hal"
	devfifo "github.com/ardnew/usbwire/device/hal/fifo"
	"github.com/ardnew/usbwire/wire"
)

func TestFIFOLink(t *testing.T) {
	busDir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dev := devfifo.New(busDir)
	if err := dev.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer dev.Close()

	dir, err := WaitDevice(ctx, busDir)
	if err != nil {
		t.Fatalf("WaitDevice() error = %v", err)
	}
	if dir != dev.DeviceDir() {
		t.Errorf("WaitDevice() = %s, want %s", dir, dev.DeviceDir())
	}
	conn, err := Dial(ctx, dir)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	token := wire.Line{wire.K, wire.J, wire.K, wire.J, wire.K, wire.J, wire.K, wire.K, wire.SE0, wire.SE0, wire.J}
	if err := conn.Send(ctx, token); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got, err := dev.Receive(ctx)
	if err != nil || got.String() != token.String() {
		t.Fatalf("device Receive() = %s, %v", got, err)
	}

	if err := dev.Send(ctx, wire.Line{wire.J, wire.K}); err != nil {
		t.Fatal(err)
	}
	if got, err := conn.Receive(ctx); err != nil || got.String() != "JK" {
		t.Fatalf("host Receive() = %s, %v", got, err)
	}

	if err := conn.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := dev.Receive(ctx); !errors.Is(err, hal.ErrReset) {
		t.Errorf("device Receive() error = %v, want ErrReset", err)
	}
}

func TestDeviceCloseRemovesDirectory(t *testing.T) {
	busDir := t.TempDir()
	dev := devfifo.New(busDir)
	if err := dev.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	dir := dev.DeviceDir()
	if _, err := os.Stat(filepath.Join(dir, devfifo.FIFOHostToDevice)); err != nil {
		t.Fatalf("FIFO missing: %v", err)
	}
	dev.Close()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("device directory still present: %v", err)
	}
	if _, err := dev.Receive(context.Background()); !errors.Is(err, hal.ErrClosed) {
		t.Errorf("Receive() after Close error = %v", err)
	}
}

func TestWaitDeviceTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := WaitDevice(ctx, t.TempDir()); !errors.Is(err, ErrNoDevice) {
		t.Errorf("WaitDevice() error = %v, want ErrNoDevice", err)
	}
}
