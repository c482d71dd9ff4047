package fifo

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ardnew/usbwire/device/hal"
	"github.com/ardnew/usbwire/pkg"
	"github.com/ardnew/usbwire/wire"
)

// Connection signal bytes (one-way signaling to host).
const (
	sigConnect    = 0x01 // Device connected
	sigDisconnect = 0x00 // Device disconnected
)

// FIFO file names.
const (
	FIFOHostToDevice = "host_to_device"
	FIFODeviceToHost = "device_to_host"
	FIFOConnection   = "connection"
)

// DevicePrefix prefixes every device subdirectory name.
const DevicePrefix = "device-"

// pollInterval bounds how long a read blocks before checking for cancellation.
const pollInterval = 100 * time.Millisecond

// HAL implements hal.Link using named pipes.
type HAL struct {
	busDir    string
	deviceDir string
	uuid      string

	hostToDeviceRead  *os.File
	deviceToHostWrite *os.File
	connectionWrite   *os.File

	mutex     sync.Mutex // guards the files and initDone
	writeMu   sync.Mutex
	initDone  bool
	closeCh   chan struct{}
	closeOnce sync.Once
}

// New creates a FIFO link rooted at busDir. Init creates the device
// subdirectory.
func New(busDir string) *HAL {
	return &HAL{
		busDir:  busDir,
		closeCh: make(chan struct{}),
	}
}

// generateUUID generates a random version 4 UUID.
func generateUUID() (string, error) {
	var uuid [16]byte
	if _, err := rand.Read(uuid[:]); err != nil {
		return "", err
	}
	uuid[6] = (uuid[6] & 0x0f) | 0x40
	uuid[8] = (uuid[8] & 0x3f) | 0x80
	return hex.EncodeToString(uuid[:]), nil
}

// Init creates the device subdirectory and its FIFOs, then signals
// connection to the host.
func (h *HAL) Init(ctx context.Context) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.initDone {
		return pkg.ErrAlreadyRunning
	}

	uuid, err := generateUUID()
	if err != nil {
		return fmt.Errorf("generate uuid: %w", err)
	}
	h.uuid = uuid
	h.deviceDir = filepath.Join(h.busDir, DevicePrefix+uuid)

	if err := os.MkdirAll(h.deviceDir, 0o755); err != nil {
		return fmt.Errorf("create device dir: %w", err)
	}
	for _, name := range []string{FIFOHostToDevice, FIFODeviceToHost, FIFOConnection} {
		if err := h.createFIFO(name); err != nil {
			h.cleanup()
			return err
		}
	}

	// O_RDWR keeps the open from blocking until the host attaches.
	if h.connectionWrite, err = h.openFIFO(FIFOConnection); err != nil {
		h.cleanup()
		return err
	}
	if h.deviceToHostWrite, err = h.openFIFO(FIFODeviceToHost); err != nil {
		h.cleanup()
		return err
	}
	if h.hostToDeviceRead, err = h.openFIFO(FIFOHostToDevice); err != nil {
		h.cleanup()
		return err
	}

	if _, err := h.connectionWrite.Write([]byte{sigConnect}); err != nil {
		pkg.LogWarn(pkg.ComponentStack, "failed to signal connection", "error", err)
	}

	h.initDone = true
	pkg.LogInfo(pkg.ComponentStack, "fifo link initialized",
		"busDir", h.busDir,
		"deviceDir", h.deviceDir)
	return nil
}

// Close signals disconnection, closes the FIFOs, and removes the device
// directory.
func (h *HAL) Close() error {
	h.closeOnce.Do(func() { close(h.closeCh) })

	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.connectionWrite != nil {
		h.connectionWrite.Write([]byte{sigDisconnect})
	}
	h.cleanup()
	h.initDone = false
	pkg.LogInfo(pkg.ComponentStack, "fifo link closed")
	return nil
}

func (h *HAL) cleanup() {
	for _, f := range []**os.File{&h.hostToDeviceRead, &h.deviceToHostWrite, &h.connectionWrite} {
		if *f != nil {
			(*f).Close()
			*f = nil
		}
	}
	if h.deviceDir != "" {
		os.RemoveAll(h.deviceDir)
	}
}

// Send writes one line frame to the host.
func (h *HAL) Send(ctx context.Context, line wire.Line) error {
	frame, err := hal.MarshalFrame(hal.FrameLine, line)
	if err != nil {
		return err
	}
	h.mutex.Lock()
	f := h.deviceToHostWrite
	h.mutex.Unlock()
	if f == nil {
		return hal.ErrClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.closeCh:
		return hal.ErrClosed
	default:
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return writeFull(f, frame)
}

// Receive reads the next frame from the host.
func (h *HAL) Receive(ctx context.Context) (wire.Line, error) {
	h.mutex.Lock()
	f := h.hostToDeviceRead
	h.mutex.Unlock()
	if f == nil {
		return nil, hal.ErrClosed
	}
	return ReadFrame(ctx, f, h.closeCh)
}

// DeviceDir returns the device subdirectory path.
func (h *HAL) DeviceDir() string {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.deviceDir
}

// UUID returns the device's unique identifier.
func (h *HAL) UUID() string {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.uuid
}

func (h *HAL) createFIFO(name string) error {
	path := filepath.Join(h.deviceDir, name)
	os.Remove(path)
	if err := syscall.Mkfifo(path, 0o666); err != nil {
		return fmt.Errorf("mkfifo %s: %w", name, err)
	}
	return nil
}

func (h *HAL) openFIFO(name string) (*os.File, error) {
	path := filepath.Join(h.deviceDir, name)
	f, err := os.OpenFile(path, os.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// ReadFrame reads one frame from f. A reset frame is reported as
// hal.ErrReset. closed, when non-nil, aborts the read.
func ReadFrame(ctx context.Context, f *os.File, closed <-chan struct{}) (wire.Line, error) {
	header := make([]byte, hal.FrameHeaderSize)
	if err := readFull(ctx, f, closed, header); err != nil {
		return nil, err
	}
	kind, length, err := hal.ParseFrameHeader(header)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, length)
	if err := readFull(ctx, f, closed, payload); err != nil {
		return nil, err
	}
	if kind == hal.FrameReset {
		return nil, hal.ErrReset
	}
	return hal.ParseFramePayload(payload)
}

// readFull reads exactly len(buf) bytes, polling so that cancellation is
// noticed.
func readFull(ctx context.Context, f *os.File, closed <-chan struct{}, buf []byte) error {
	total := 0
	for total < len(buf) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			return hal.ErrClosed
		default:
		}
		f.SetReadDeadline(time.Now().Add(pollInterval))
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func writeFull(f *os.File, buf []byte) error {
	for written := 0; written < len(buf); {
		n, err := f.Write(buf[written:])
		written += n
		if err != nil {
			return err
		}
	}
	return nil
}

var _ hal.Link = (*HAL)(nil)
