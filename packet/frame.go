package packet

import (
	"sync"

	"github.com/ardnew/usbwire/pkg"
)

// FrameTicker consumes SOF packets before they reach endpoint logic.
// It only records frame bookkeeping.
type FrameTicker struct {
	mutex   sync.Mutex
	frame   uint16
	count   uint64
	started bool
	skipped uint64
}

// Filter consumes p if it is an SOF and reports whether it did.
func (f *FrameTicker) Filter(p Packet) bool {
	sof, ok := p.(*SOF)
	if !ok {
		return false
	}
	f.mutex.Lock()
	if f.started && sof.Frame != (f.frame+1)&0x7FF {
		f.skipped++
		pkg.LogDebug(pkg.ComponentFrame, "frame discontinuity",
			"previous", f.frame,
			"frame", sof.Frame)
	}
	f.frame = sof.Frame
	f.count++
	f.started = true
	f.mutex.Unlock()
	return true
}

// Frame returns the most recent frame number and whether any SOF was seen.
func (f *FrameTicker) Frame() (uint16, bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.frame, f.started
}

// Count returns the number of SOF packets consumed.
func (f *FrameTicker) Count() uint64 {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.count
}

// Skipped returns the number of SOF packets whose frame number did not
// follow the previous one.
func (f *FrameTicker) Skipped() uint64 {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.skipped
}

// Reset forgets all frame history.
func (f *FrameTicker) Reset() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.frame, f.count, f.skipped, f.started = 0, 0, 0, false
}
