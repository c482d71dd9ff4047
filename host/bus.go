package host

import (
	"context"
	"sync"

	"github.com/ardnew/usbwire/pkg"
	"github.com/ardnew/usbwire/wire"
)

// Bus carries encoded packets between the host and one device.
// Any hal.Link satisfies it.
type Bus interface {
	// Send transmits one packet.
	Send(ctx context.Context, line wire.Line) error

	// Receive returns the next packet from the device.
	Receive(ctx context.Context) (wire.Line, error)
}

// LineHandler answers one encoded packet with an encoded response, or nil.
// *device.Device implements it.
type LineHandler interface {
	ReceiveLine(line wire.Line) wire.Line
}

// Direct is a Bus that hands each packet straight to a device on the
// caller's goroutine.
type Direct struct {
	dev LineHandler

	mutex     sync.Mutex
	responses []wire.Line
}

// NewDirect returns a Direct bus attached to dev.
func NewDirect(dev LineHandler) *Direct {
	return &Direct{dev: dev}
}

// Send delivers line to the device and queues its response, if any.
func (b *Direct) Send(ctx context.Context, line wire.Line) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resp := b.dev.ReceiveLine(line)
	if resp == nil {
		return nil
	}
	b.mutex.Lock()
	b.responses = append(b.responses, resp)
	b.mutex.Unlock()
	return nil
}

// Receive returns the oldest queued response. With nothing queued the device
// was silent and Receive returns pkg.ErrTimeout without waiting.
func (b *Direct) Receive(ctx context.Context) (wire.Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if len(b.responses) == 0 {
		return nil, pkg.ErrTimeout
	}
	line := b.responses[0]
	b.responses = b.responses[1:]
	return line, nil
}

// Reset resets the device, when it supports it, and discards queued
// responses.
func (b *Direct) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mutex.Lock()
	b.responses = nil
	b.mutex.Unlock()
	if r, ok := b.dev.(interface{ Reset() }); ok {
		r.Reset()
	}
	return nil
}
