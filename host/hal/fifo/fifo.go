package fifo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ardnew/usbwire/device/hal"
	devfifo "github.com/ardnew/usbwire/device/hal/fifo"
	"github.com/ardnew/usbwire/pkg"
	"github.com/ardnew/usbwire/wire"
)

// pollInterval is the bus directory polling interval.
const pollInterval = 50 * time.Millisecond

// Connection signal bytes (one-way signaling from device).
const (
	sigConnect    = 0x01
	sigDisconnect = 0x00
)

// ErrNoDevice indicates no device appeared on the bus.
var ErrNoDevice = errors.New("no device available")

// WaitDevice polls busDir until a device subdirectory appears and returns
// its path.
func WaitDevice(ctx context.Context, busDir string) (string, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if dir, ok := findDevice(busDir); ok {
			return dir, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%s: %w", busDir, ErrNoDevice)
		case <-ticker.C:
		}
	}
}

func findDevice(busDir string) (string, bool) {
	entries, err := os.ReadDir(busDir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), devfifo.DevicePrefix) {
			continue
		}
		dir := filepath.Join(busDir, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, devfifo.FIFOConnection)); err != nil {
			continue
		}
		return dir, true
	}
	return "", false
}

// Conn is the host end of a device's FIFO link.
type Conn struct {
	dir          string
	hostToDevice *os.File
	deviceToHost *os.File
	connection   *os.File

	writeMu   sync.Mutex
	closeCh   chan struct{}
	closeOnce sync.Once
}

// Dial waits for the device in dir to signal connection and opens its FIFOs.
func Dial(ctx context.Context, dir string) (*Conn, error) {
	c := &Conn{dir: dir, closeCh: make(chan struct{})}
	var err error
	if c.connection, err = open(dir, devfifo.FIFOConnection, os.O_RDWR); err != nil {
		return nil, err
	}
	if err := c.awaitConnect(ctx); err != nil {
		c.connection.Close()
		return nil, err
	}
	// The device holds both FIFOs open, so non-blocking opens succeed.
	if c.hostToDevice, err = open(dir, devfifo.FIFOHostToDevice, os.O_WRONLY); err != nil {
		c.Close()
		return nil, err
	}
	if c.deviceToHost, err = open(dir, devfifo.FIFODeviceToHost, os.O_RDONLY); err != nil {
		c.Close()
		return nil, err
	}
	pkg.LogInfo(pkg.ComponentHost, "fifo link connected", "dir", dir)
	return c, nil
}

func open(dir, name string, flag int) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(dir, name), flag|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

func (c *Conn) awaitConnect(ctx context.Context) error {
	var buf [1]byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c.connection.SetReadDeadline(time.Now().Add(pollInterval))
		n, err := c.connection.Read(buf[:])
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			return err
		}
		if n == 1 {
			switch buf[0] {
			case sigConnect:
				return nil
			case sigDisconnect:
				return fmt.Errorf("%s: %w", c.dir, ErrNoDevice)
			}
		}
	}
}

// Dir returns the device subdirectory.
func (c *Conn) Dir() string {
	return c.dir
}

// Send writes one line frame to the device.
func (c *Conn) Send(ctx context.Context, line wire.Line) error {
	return c.write(ctx, hal.FrameLine, line)
}

// Reset drives a bus reset.
func (c *Conn) Reset(ctx context.Context) error {
	return c.write(ctx, hal.FrameReset, nil)
}

func (c *Conn) write(ctx context.Context, kind byte, line wire.Line) error {
	frame, err := hal.MarshalFrame(kind, line)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closeCh:
		return hal.ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for written := 0; written < len(frame); {
		n, err := c.hostToDevice.Write(frame[written:])
		written += n
		if err != nil {
			return err
		}
	}
	return nil
}

// Receive reads the next frame from the device.
func (c *Conn) Receive(ctx context.Context) (wire.Line, error) {
	return devfifo.ReadFrame(ctx, c.deviceToHost, c.closeCh)
}

// Close closes the host end. The device directory is left to the device.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closeCh) })
	for _, f := range []*os.File{c.hostToDevice, c.deviceToHost, c.connection} {
		if f != nil {
			f.Close()
		}
	}
	return nil
}

var (
	_ hal.Link     = (*Conn)(nil)
	_ hal.Resetter = (*Conn)(nil)
)
