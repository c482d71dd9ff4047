package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ardnew/usbwire/device/hal"
	"github.com/ardnew/usbwire/pkg"
)

// Stack connects a Device to a bus link and serves host packets until
// stopped.
type Stack struct {
	device *Device
	link   hal.Link

	running bool
	mutex   sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	processed atomic.Uint64
}

// NewStack creates a stack serving dev over link.
func NewStack(dev *Device, link hal.Link) *Stack {
	return &Stack{device: dev, link: link}
}

// Start starts serving packets in a new goroutine.
func (s *Stack) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.running {
		return pkg.ErrAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true

	pkg.LogDebug(pkg.ComponentStack, "device stack started")
	go s.serve()
	return nil
}

// Stop stops serving and waits for the serving goroutine to exit.
func (s *Stack) Stop() error {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mutex.Unlock()

	<-done
	pkg.LogDebug(pkg.ComponentStack, "device stack stopped")
	return nil
}

// IsRunning returns true if the stack is running.
func (s *Stack) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// Device returns the underlying device.
func (s *Stack) Device() *Device {
	return s.device
}

// Processed returns the number of host packets fully handled, including
// any response sent.
func (s *Stack) Processed() uint64 {
	return s.processed.Load()
}

func (s *Stack) serve() {
	defer close(s.done)
	for {
		line, err := s.link.Receive(s.ctx)
		if err != nil {
			switch {
			case s.ctx.Err() != nil:
				return
			case errors.Is(err, hal.ErrClosed):
				pkg.LogDebug(pkg.ComponentStack, "link closed")
				s.mutex.Lock()
				s.running = false
				s.cancel()
				s.mutex.Unlock()
				return
			case errors.Is(err, hal.ErrReset):
				s.device.Reset()
			default:
				pkg.LogWarn(pkg.ComponentStack, "error receiving packet", "error", err)
			}
			s.processed.Add(1)
			continue
		}
		if resp := s.device.ReceiveLine(line); resp != nil {
			if err := s.link.Send(s.ctx, resp); err != nil && s.ctx.Err() == nil {
				pkg.LogWarn(pkg.ComponentStack, "error sending response", "error", err)
			}
		}
		s.processed.Add(1)
	}
}
