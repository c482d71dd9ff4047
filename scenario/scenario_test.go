package scenario

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ardnew/usbwire/device"
	"github.com/ardnew/usbwire/packet"
	"github.com/ardnew/usbwire/pkg"
)

func TestScenarios(t *testing.T) {
	transports := []Transport{TransportDirect, TransportLoop}
	for _, transport := range transports {
		for _, sc := range All() {
			t.Run(transport.String()+"/"+sc.Name, func(t *testing.T) {
				res := Run(context.Background(), sc, Options{
					Transport:  transport,
					Turnaround: 100 * time.Millisecond,
				})
				if res.Err != nil {
					t.Fatal(res.Err)
				}
				if res.Packets == 0 {
					t.Error("no packets sent")
				}
			})
		}
	}
}

func TestScenariosOverFIFO(t *testing.T) {
	if testing.Short() {
		t.Skip("named pipes in short mode")
	}
	for _, name := range []string{"control-transfer-in-out", "debug-out", "enumerate"} {
		sc, ok := Find(name)
		if !ok {
			t.Fatalf("Find(%q) failed", name)
		}
		t.Run(name, func(t *testing.T) {
			res := Run(context.Background(), sc, Options{
				Transport:  TransportFIFO,
				Turnaround: 500 * time.Millisecond,
				Timeout:    10 * time.Second,
				BusDir:     t.TempDir(),
			})
			if res.Err != nil {
				t.Fatal(res.Err)
			}
		})
	}
}

func TestNamesUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, name := range Names() {
		if seen[name] {
			t.Errorf("duplicate scenario %q", name)
		}
		seen[name] = true
		sc, ok := Find(name)
		if !ok || sc.Name != name || sc.Run == nil {
			t.Errorf("Find(%q) = %+v, %v", name, sc.Name, ok)
		}
	}
	if _, ok := Find("no-such-scenario"); ok {
		t.Error("Find() of unknown name succeeded")
	}
}

func TestParseTransport(t *testing.T) {
	tests := []struct {
		in      string
		want    Transport
		wantErr bool
	}{
		{"direct", TransportDirect, false},
		{"", TransportDirect, false},
		{"LOOP", TransportLoop, false},
		{"fifo", TransportFIFO, false},
		{"usb", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTransport(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTransport(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseTransport(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// nakedIn expects data from an endpoint firmware never filled.
var nakedIn = Scenario{
	Name: "naked-in",
	Run: func(s *Script) {
		s.Firmware("enable", func(dev *device.Device) error {
			return dev.Enable(ep1in)
		})
		s.Token(packet.PIDIn, 0, 1)
		s.ExpectData(packet.Data1, []byte{1})
		s.Token(packet.PIDIn, 0, 1)
		s.ExpectNak()
	},
}

func TestRunAllAggregatesFailures(t *testing.T) {
	var trace bytes.Buffer
	scenarios := []Scenario{sofStuffing, nakedIn, inTransfer}
	results, err := RunAll(context.Background(), scenarios, Options{
		Transport: TransportLoop,
		Parallel:  3,
		Trace:     &trace,
	})
	if !errors.Is(err, pkg.ErrNAK) {
		t.Fatalf("RunAll() error = %v, want ErrNAK", err)
	}
	if len(results) != len(scenarios) {
		t.Fatalf("RunAll() returned %d results, want %d", len(results), len(scenarios))
	}
	for i, r := range results {
		if r.Name != scenarios[i].Name {
			t.Errorf("results[%d].Name = %q, want %q", i, r.Name, scenarios[i].Name)
		}
		if failed := r.Err != nil; failed != (r.Name == "naked-in") {
			t.Errorf("%s: error = %v", r.Name, r.Err)
		}
	}
	if !strings.Contains(results[1].Err.Error(), "step 3") {
		t.Errorf("failure %q does not name the failing step", results[1].Err)
	}

	for _, line := range strings.Split(strings.TrimSpace(trace.String()), "\n") {
		if !strings.HasPrefix(line, "[") {
			t.Errorf("trace line %q has no scenario prefix", line)
		}
	}
	if !strings.Contains(trace.String(), "[in-transfer] H>D IN addr=28 ep=1 ") {
		t.Errorf("trace missing in-transfer token:\n%s", trace.String())
	}
}

func TestScriptStopsAtFirstFailure(t *testing.T) {
	res := Run(context.Background(), Scenario{
		Name: "stops",
		Run: func(s *Script) {
			s.Token(packet.PIDIn, 0, 0)
			s.ExpectAck()
			s.Firmware("unreachable", func(*device.Device) error {
				t.Error("step ran after a failure")
				return nil
			})
		},
	}, Options{})
	if !errors.Is(res.Err, pkg.ErrNAK) {
		t.Errorf("Run() error = %v, want ErrNAK", res.Err)
	}
}
