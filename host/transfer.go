package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardnew/usbwire/device"
	"github.com/ardnew/usbwire/packet"
	"github.com/ardnew/usbwire/pkg"
)

// Setup runs a SETUP transaction carrying setup.
func (h *Host) Setup(ctx context.Context, addr uint8, setup device.SetupPacket) error {
	if err := h.SendToken(ctx, packet.PIDSetup, addr, 0); err != nil {
		return err
	}
	if err := h.SendData(ctx, packet.Data0, setup.Bytes()); err != nil {
		return err
	}
	if err := h.ExpectAck(ctx); err != nil {
		return fmt.Errorf("setup stage: %w", err)
	}
	return nil
}

// In runs one IN transaction and acknowledges the data it returns.
// A NAK is reported as pkg.ErrNAK and a STALL as pkg.ErrStall.
func (h *Host) In(ctx context.Context, addr, ep uint8) (*packet.Data, error) {
	if err := h.SendToken(ctx, packet.PIDIn, addr, ep); err != nil {
		return nil, err
	}
	p, err := h.Receive(ctx)
	if err != nil {
		return nil, err
	}
	d, ok := p.(*packet.Data)
	if !ok {
		return nil, fmt.Errorf("IN ep%d: got %s: %w", ep, p, unexpected(p))
	}
	if err := h.SendAck(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Out runs one OUT transaction and checks it is acknowledged.
// A NAK is reported as pkg.ErrNAK and a STALL as pkg.ErrStall.
func (h *Host) Out(ctx context.Context, addr, ep uint8, toggle packet.Toggle, payload []byte) error {
	if err := h.SendToken(ctx, packet.PIDOut, addr, ep); err != nil {
		return err
	}
	if err := h.SendData(ctx, toggle, payload); err != nil {
		return err
	}
	if err := h.ExpectAck(ctx); err != nil {
		return fmt.Errorf("OUT ep%d: %w", ep, err)
	}
	return nil
}

// retry runs fn again while it fails with pkg.ErrNAK, up to the retry limit.
func (h *Host) retry(ctx context.Context, fn func() error) error {
	var err error
	for range h.retries + 1 {
		if err = fn(); !errors.Is(err, pkg.ErrNAK) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

// InRetry runs IN transactions until one returns data.
func (h *Host) InRetry(ctx context.Context, addr, ep uint8) (*packet.Data, error) {
	var d *packet.Data
	err := h.retry(ctx, func() (err error) {
		d, err = h.In(ctx, addr, ep)
		return err
	})
	return d, err
}

// OutRetry runs OUT transactions until one is acknowledged.
func (h *Host) OutRetry(ctx context.Context, addr, ep uint8, toggle packet.Toggle, payload []byte) error {
	return h.retry(ctx, func() error {
		return h.Out(ctx, addr, ep, toggle, payload)
	})
}

// ControlIn runs a control read: the setup stage, IN data packets until a
// short packet or setup.Length bytes, and the OUT status stage. It returns
// the bytes read.
func (h *Host) ControlIn(ctx context.Context, addr uint8, setup device.SetupPacket) ([]byte, error) {
	if err := h.Setup(ctx, addr, setup); err != nil {
		return nil, err
	}
	var buf []byte
	toggle := packet.Data1
	for len(buf) < int(setup.Length) {
		d, err := h.InRetry(ctx, addr, 0)
		if err != nil {
			return buf, fmt.Errorf("data stage: %w", err)
		}
		if d.Toggle() != toggle {
			return buf, fmt.Errorf("data stage: got %s, want %s: %w", d.Type, toggle, pkg.ErrProtocolSequence)
		}
		buf = append(buf, d.Payload...)
		toggle = toggle.Next()
		if len(d.Payload) < h.mps0 {
			break
		}
	}
	if err := h.OutRetry(ctx, addr, 0, packet.Data1, nil); err != nil {
		return buf, fmt.Errorf("status stage: %w", err)
	}
	return buf, nil
}

// ControlOut runs a control write: the setup stage, data split into
// endpoint 0 sized OUT packets, and the IN status stage.
func (h *Host) ControlOut(ctx context.Context, addr uint8, setup device.SetupPacket, data []byte) error {
	if len(data) != int(setup.Length) {
		return fmt.Errorf("control write of %d bytes with wLength %d: %w",
			len(data), setup.Length, pkg.ErrInvalidParameter)
	}
	if err := h.Setup(ctx, addr, setup); err != nil {
		return err
	}
	toggle := packet.Data1
	for off := 0; off < len(data); off += h.mps0 {
		end := min(off+h.mps0, len(data))
		if err := h.OutRetry(ctx, addr, 0, toggle, data[off:end]); err != nil {
			return fmt.Errorf("data stage: %w", err)
		}
		toggle = toggle.Next()
	}
	d, err := h.InRetry(ctx, addr, 0)
	if err != nil {
		return fmt.Errorf("status stage: %w", err)
	}
	if d.Toggle() != packet.Data1 || len(d.Payload) != 0 {
		return fmt.Errorf("status stage: got %s: %w", d, pkg.ErrProtocolSequence)
	}
	return nil
}
