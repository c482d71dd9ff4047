// Package loop connects a host and a device in one process.
package loop

import (
	"context"
	"sync"

	"github.com/ardnew/usbwire/device/hal"
	"github.com/ardnew/usbwire/pkg"
	"github.com/ardnew/usbwire/wire"
)

// DefaultDepth is the number of packets each direction buffers.
const DefaultDepth = 16

type message struct {
	line  wire.Line
	reset bool
}

// bus is shared by both ports.
type bus struct {
	closed    chan struct{}
	closeOnce sync.Once
}

// Port is one end of an in-process link.
type Port struct {
	name string
	bus  *bus
	tx   chan<- message
	rx   <-chan message
}

// New returns the host and device ends of a link. Each direction buffers
// depth packets; depth <= 0 selects DefaultDepth.
func New(depth int) (host, device *Port) {
	if depth <= 0 {
		depth = DefaultDepth
	}
	b := &bus{closed: make(chan struct{})}
	down := make(chan message, depth)
	up := make(chan message, depth)
	host = &Port{name: "host", bus: b, tx: down, rx: up}
	device = &Port{name: "device", bus: b, tx: up, rx: down}
	return host, device
}

// Send transmits a copy of line to the other end.
func (p *Port) Send(ctx context.Context, line wire.Line) error {
	return p.send(ctx, message{line: append(wire.Line{}, line...)})
}

// Reset signals a bus reset to the other end.
func (p *Port) Reset(ctx context.Context) error {
	return p.send(ctx, message{reset: true})
}

func (p *Port) send(ctx context.Context, m message) error {
	select {
	case <-p.bus.closed:
		return hal.ErrClosed
	default:
	}
	select {
	case p.tx <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.bus.closed:
		return hal.ErrClosed
	}
}

// Receive returns the next packet from the other end. A reset from the
// host is reported as hal.ErrReset.
func (p *Port) Receive(ctx context.Context) (wire.Line, error) {
	select {
	case m := <-p.rx:
		if m.reset {
			pkg.LogDebug(pkg.ComponentStack, "bus reset", "port", p.name)
			return nil, hal.ErrReset
		}
		return m.line, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.bus.closed:
		return nil, hal.ErrClosed
	}
}

// Close closes both ends.
func (p *Port) Close() error {
	p.bus.closeOnce.Do(func() { close(p.bus.closed) })
	return nil
}

var (
	_ hal.Link     = (*Port)(nil)
	_ hal.Resetter = (*Port)(nil)
)
