package scenario

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ardnew/usbwire/device"
	"github.com/ardnew/usbwire/host"
	"github.com/ardnew/usbwire/packet"
	"github.com/ardnew/usbwire/pkg"
)

// Scenario is one named conversation between a host and a fresh device.
type Scenario struct {
	Name        string
	Description string

	// Config returns the device configuration. Nil selects
	// device.DefaultConfig.
	Config func() device.Config

	// Run drives the device through the script.
	Run func(s *Script)
}

// config returns the device configuration for one run.
func (sc Scenario) config() device.Config {
	if sc.Config == nil {
		return device.DefaultConfig()
	}
	return sc.Config()
}

// All returns every scenario in a stable order.
func All() []Scenario {
	return []Scenario{
		controlSetup,
		controlTransferIn,
		controlTransferInOut,
		controlInNakData,
		sofStuffing,
		sofIsIgnored,
		setupClearsStall,
		stallThenSetup,
		inTransfer,
		inTransferStuffLast,
		outDuplicate,
		debugIn,
		debugOut,
		disableAbortsControl,
		enumerate,
		hidKeyboard,
		cdcEcho,
	}
}

// Names returns the names of all scenarios.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, sc := range all {
		names[i] = sc.Name
	}
	return names
}

// Find returns the scenario with the given name.
func Find(name string) (Scenario, bool) {
	all := All()
	i := slices.IndexFunc(all, func(sc Scenario) bool { return sc.Name == name })
	if i < 0 {
		return Scenario{}, false
	}
	return all[i], true
}

// Env is the device and host of one run.
type Env struct {
	Device *device.Device
	Host   *host.Host

	stack *device.Stack
}

// Settle waits until the device has consumed every packet the host sent.
// It returns at once on the direct transport.
func (e *Env) Settle(ctx context.Context) error {
	if e.stack == nil {
		return nil
	}
	want := e.Host.Sent()
	if e.stack.Processed() >= want {
		return nil
	}
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for e.stack.Processed() < want {
		select {
		case <-ctx.Done():
			return fmt.Errorf("settle after %d packets: %w", want, ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Script runs the steps of a scenario, stopping at the first failure.
// Every method is a no-op once a step has failed.
type Script struct {
	ctx  context.Context
	env  *Env
	step int
	err  error
}

func newScript(ctx context.Context, env *Env) *Script {
	return &Script{ctx: ctx, env: env}
}

// Env returns the environment the script drives.
func (s *Script) Env() *Env {
	return s.env
}

// Err returns the first failure, or nil.
func (s *Script) Err() error {
	return s.err
}

func (s *Script) do(name string, fn func() error) {
	if s.err != nil {
		return
	}
	s.step++
	if err := fn(); err != nil {
		s.err = fmt.Errorf("step %d (%s): %w", s.step, name, err)
	}
}

// Reset drives a bus reset.
func (s *Script) Reset() {
	s.do("reset", func() error { return s.env.Host.Reset(s.ctx) })
}

// Token sends an OUT, IN, or SETUP token.
func (s *Script) Token(pid packet.PID, addr, ep uint8) {
	s.do(fmt.Sprintf("%s addr=%d ep=%d", pid, addr, ep), func() error {
		return s.env.Host.SendToken(s.ctx, pid, addr, ep)
	})
}

// Data sends a data packet.
func (s *Script) Data(toggle packet.Toggle, payload []byte) {
	s.do(fmt.Sprintf("send %s", toggle), func() error {
		return s.env.Host.SendData(s.ctx, toggle, payload)
	})
}

// Ack acknowledges IN data.
func (s *Script) Ack() {
	s.do("send ACK", func() error { return s.env.Host.SendAck(s.ctx) })
}

// SOF sends a start-of-frame packet.
func (s *Script) SOF(frame uint16) {
	s.do(fmt.Sprintf("SOF %d", frame), func() error { return s.env.Host.SendSOF(s.ctx, frame) })
}

// ExpectAck expects an ACK.
func (s *Script) ExpectAck() {
	s.do("expect ACK", func() error { return s.env.Host.ExpectAck(s.ctx) })
}

// ExpectNak expects a NAK.
func (s *Script) ExpectNak() {
	s.do("expect NAK", func() error { return s.env.Host.ExpectNak(s.ctx) })
}

// ExpectStall expects a STALL.
func (s *Script) ExpectStall() {
	s.do("expect STALL", func() error { return s.env.Host.ExpectStall(s.ctx) })
}

// ExpectTimeout expects silence.
func (s *Script) ExpectTimeout() {
	s.do("expect silence", func() error { return s.env.Host.ExpectTimeout(s.ctx) })
}

// ExpectData expects a data packet.
func (s *Script) ExpectData(toggle packet.Toggle, payload []byte) {
	s.do(fmt.Sprintf("expect %s", toggle), func() error {
		return s.env.Host.ExpectData(s.ctx, toggle, payload)
	})
}

// Setup runs a SETUP transaction.
func (s *Script) Setup(addr uint8, setup device.SetupPacket) {
	s.do("setup "+setup.String(), func() error { return s.env.Host.Setup(s.ctx, addr, setup) })
}

// ControlIn runs a control read and checks the bytes returned.
func (s *Script) ControlIn(addr uint8, setup device.SetupPacket, want []byte) {
	s.do("control read "+setup.String(), func() error {
		got, err := s.env.Host.ControlIn(s.ctx, addr, setup)
		if err != nil {
			return err
		}
		return equalBytes("reply", got, want)
	})
}

// ControlOut runs a control write.
func (s *Script) ControlOut(addr uint8, setup device.SetupPacket, data []byte) {
	s.do("control write "+setup.String(), func() error {
		return s.env.Host.ControlOut(s.ctx, addr, setup, data)
	})
}

// Host runs fn against the host directly.
func (s *Script) Host(name string, fn func(ctx context.Context, h *host.Host) error) {
	s.do(name, func() error { return fn(s.ctx, s.env.Host) })
}

// Firmware runs fn against the device once it has consumed every packet
// sent so far.
func (s *Script) Firmware(name string, fn func(dev *device.Device) error) {
	s.do(name, func() error {
		if err := s.env.Settle(s.ctx); err != nil {
			return err
		}
		return fn(s.env.Device)
	})
}

// equal reports a mismatch between got and want as pkg.ErrDataMismatch.
func equal[T comparable](what string, got, want T) error {
	if got != want {
		return fmt.Errorf("%s = %v, want %v: %w", what, got, want, pkg.ErrDataMismatch)
	}
	return nil
}

func equalBytes(what string, got, want []byte) error {
	if !slices.Equal(got, want) {
		return fmt.Errorf("%s = [% X], want [% X]: %w", what, got, want, pkg.ErrDataMismatch)
	}
	return nil
}
