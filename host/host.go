package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ardnew/usbwire/packet"
	"github.com/ardnew/usbwire/pkg"
	"github.com/ardnew/usbwire/wire"
)

// Defaults.
const (
	// DefaultTimeout bounds the wait for a device response on a concurrent bus.
	DefaultTimeout = 200 * time.Millisecond

	// DefaultRetries is the number of times a NAKed transaction is retried.
	DefaultRetries = 16

	// DefaultMaxPacketSize0 is the endpoint 0 packet size assumed for
	// control transfers until enumeration learns the real one.
	DefaultMaxPacketSize0 = 8
)

// Host plays the host side of the bus.
type Host struct {
	bus     Bus
	timeout time.Duration
	retries int
	mps0    int

	mutex sync.Mutex
	trace io.Writer
	sent  uint64
}

// Option configures a Host.
type Option func(*Host)

// WithTimeout sets the turnaround timeout for Receive.
func WithTimeout(d time.Duration) Option {
	return func(h *Host) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithRetries sets how many times a NAKed transaction is retried.
func WithRetries(n int) Option {
	return func(h *Host) {
		if n >= 0 {
			h.retries = n
		}
	}
}

// WithMaxPacketSize0 sets the endpoint 0 packet size used to split control
// transfers.
func WithMaxPacketSize0(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.mps0 = n
		}
	}
}

// WithTrace writes one line per packet to w.
func WithTrace(w io.Writer) Option {
	return func(h *Host) {
		h.trace = w
	}
}

// New returns a Host driving bus.
func New(bus Bus, opts ...Option) *Host {
	h := &Host{
		bus:     bus,
		timeout: DefaultTimeout,
		retries: DefaultRetries,
		mps0:    DefaultMaxPacketSize0,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MaxPacketSize0 returns the endpoint 0 packet size used for control transfers.
func (h *Host) MaxPacketSize0() int {
	return h.mps0
}

// SetMaxPacketSize0 changes the endpoint 0 packet size.
func (h *Host) SetMaxPacketSize0(n int) {
	if n > 0 {
		h.mps0 = n
	}
}

// Sent returns the number of packets and resets sent on the bus.
func (h *Host) Sent() uint64 {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.sent
}

func (h *Host) tracef(dir string, p fmt.Stringer, line wire.Line) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	switch {
	case h.trace == nil:
	case len(line) == 0:
		fmt.Fprintf(h.trace, "%s %s\n", dir, p)
	default:
		fmt.Fprintf(h.trace, "%s %s %s\n", dir, p, line)
	}
}

// Send encodes p and transmits it.
func (h *Host) Send(ctx context.Context, p packet.Packet) error {
	line := packet.Encode(p)
	h.tracef("H>D", p, line)
	pkg.LogDebug(pkg.ComponentHost, "send", "packet", p.String())
	if err := h.bus.Send(ctx, line); err != nil {
		return fmt.Errorf("send %s: %w", p, err)
	}
	h.mutex.Lock()
	h.sent++
	h.mutex.Unlock()
	return nil
}

// Receive waits up to the turnaround timeout for the device's next packet.
// Silence is reported as pkg.ErrTimeout.
func (h *Host) Receive(ctx context.Context) (packet.Packet, error) {
	rctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	line, err := h.bus.Receive(rctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = pkg.ErrTimeout
		}
		return nil, err
	}
	p, err := packet.Decode(line)
	if err != nil {
		h.tracef("D>H", stringer("<"+err.Error()+">"), line)
		return nil, fmt.Errorf("decode response: %w", err)
	}
	h.tracef("D>H", p, line)
	return p, nil
}

type stringer string

func (s stringer) String() string { return string(s) }

// Reset drives a bus reset when the bus supports it.
func (h *Host) Reset(ctx context.Context) error {
	r, ok := h.bus.(interface {
		Reset(ctx context.Context) error
	})
	if !ok {
		return fmt.Errorf("bus reset: %w", pkg.ErrInvalidParameter)
	}
	h.tracef("H>D", stringer("RESET"), nil)
	if err := r.Reset(ctx); err != nil {
		return fmt.Errorf("bus reset: %w", err)
	}
	h.mutex.Lock()
	h.sent++
	h.mutex.Unlock()
	return nil
}

// SendToken sends an OUT, IN, or SETUP token.
func (h *Host) SendToken(ctx context.Context, pid packet.PID, addr, ep uint8) error {
	return h.Send(ctx, packet.NewToken(pid, addr, ep))
}

// SendData sends a data packet.
func (h *Host) SendData(ctx context.Context, toggle packet.Toggle, payload []byte) error {
	return h.Send(ctx, packet.NewData(toggle, payload))
}

// SendHandshake sends ACK, NAK, or STALL.
func (h *Host) SendHandshake(ctx context.Context, pid packet.PID) error {
	return h.Send(ctx, &packet.Handshake{Type: pid})
}

// SendAck acknowledges IN data.
func (h *Host) SendAck(ctx context.Context) error {
	return h.Send(ctx, packet.Ack)
}

// SendSOF sends a start-of-frame packet.
func (h *Host) SendSOF(ctx context.Context, frame uint16) error {
	return h.Send(ctx, &packet.SOF{Frame: frame & 0x7FF})
}

// expectHandshake receives one packet and checks it is the handshake want.
func (h *Host) expectHandshake(ctx context.Context, want packet.PID) error {
	p, err := h.Receive(ctx)
	if err != nil {
		return fmt.Errorf("expecting %s: %w", want, err)
	}
	if p.PID() == want {
		return nil
	}
	return fmt.Errorf("got %s, want %s: %w", p, want, unexpected(p))
}

// unexpected maps a response to the sentinel describing it.
func unexpected(p packet.Packet) error {
	switch p.PID() {
	case packet.PIDNak:
		return pkg.StatusNAK.Error()
	case packet.PIDStall:
		return pkg.StatusStall.Error()
	}
	return pkg.ErrUnexpectedPacket
}

// ExpectAck expects an ACK handshake.
func (h *Host) ExpectAck(ctx context.Context) error {
	return h.expectHandshake(ctx, packet.PIDAck)
}

// ExpectNak expects a NAK handshake.
func (h *Host) ExpectNak(ctx context.Context) error {
	return h.expectHandshake(ctx, packet.PIDNak)
}

// ExpectStall expects a STALL handshake.
func (h *Host) ExpectStall(ctx context.Context) error {
	return h.expectHandshake(ctx, packet.PIDStall)
}

// ExpectData expects a data packet with the given toggle and payload.
func (h *Host) ExpectData(ctx context.Context, toggle packet.Toggle, payload []byte) error {
	p, err := h.Receive(ctx)
	if err != nil {
		return fmt.Errorf("expecting %s: %w", toggle, err)
	}
	d, ok := p.(*packet.Data)
	if !ok {
		return fmt.Errorf("got %s, want %s: %w", p, toggle, unexpected(p))
	}
	if d.Type != toggle.PID() || !bytes.Equal(d.Payload, payload) {
		return fmt.Errorf("got %s, want %s: %w", d, packet.NewData(toggle, payload), pkg.ErrDataMismatch)
	}
	return nil
}

// ExpectTimeout expects the device to stay silent.
func (h *Host) ExpectTimeout(ctx context.Context) error {
	p, err := h.Receive(ctx)
	switch {
	case errors.Is(err, pkg.ErrTimeout):
		return nil
	case err != nil:
		return err
	}
	return fmt.Errorf("got %s, want silence: %w", p, pkg.ErrUnexpectedPacket)
}
