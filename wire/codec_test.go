package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ardnew/usbwire/pkg"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"ACK handshake", []byte{0xD2}, "KJKJKJKKJJKJJKKK00J"},
		{"all ones", []byte{0xFF}, "KJKJKJKKKKKKKKJJJ00J"},
		{"six ones then zeros", []byte{0x3F}, "KJKJKJKKKKKKKKJKJ00J"},
		{
			"stuff bit after final CRC bit",
			[]byte{0x4B, 0x37, 0x75, 0x00, 0xE0, 0xE1, 0xFD},
			"KJKJKJKKKKJJKJJKKKKJJJKJJKKJJJJKJKJKJKJKJKJKJJJJJKJKJJJJJKKKKKKKJ00J",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.data).String()
			if got != tt.want {
				t.Errorf("Encode(% X) = %s, want %s", tt.data, got, tt.want)
			}
			back, err := Decode(Encode(tt.data))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !bytes.Equal(back, tt.data) {
				t.Errorf("Decode() = % X, want % X", back, tt.data)
			}
		})
	}
}

func TestStuffRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		bits []byte
		want int // stuffed length
	}{
		{"empty", nil, 0},
		{"five ones", []byte{1, 1, 1, 1, 1}, 5},
		{"six ones", []byte{1, 1, 1, 1, 1, 1}, 7},
		{"seven ones", []byte{1, 1, 1, 1, 1, 1, 1}, 8},
		{"twelve ones", []byte{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, 14},
		{"broken run", []byte{1, 1, 1, 0, 1, 1, 1, 1, 1, 1, 0}, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stuffed := Stuff(tt.bits)
			if len(stuffed) != tt.want {
				t.Errorf("len(Stuff()) = %d, want %d", len(stuffed), tt.want)
			}
			run := 0
			for _, b := range stuffed {
				if b == 1 {
					run++
				} else {
					run = 0
				}
				if run > StuffRun {
					t.Fatalf("Stuff() left a run of %d ones: %v", run, stuffed)
				}
			}
			got, err := Unstuff(stuffed)
			if err != nil {
				t.Fatalf("Unstuff() error = %v", err)
			}
			if !bytes.Equal(got, tt.bits) && !(len(got) == 0 && len(tt.bits) == 0) {
				t.Errorf("Unstuff(Stuff()) = %v, want %v", got, tt.bits)
			}
		})
	}
}

func TestRoundTripLongRuns(t *testing.T) {
	payloads := [][]byte{
		{0xFF, 0xFF, 0xFF, 0xFF},
		{0x7E, 0xFC, 0x3F, 0x80},
		{0x00, 0xFF, 0x00, 0xFE, 0x01},
	}
	for _, p := range payloads {
		got, err := Decode(Encode(p))
		if err != nil {
			t.Fatalf("Decode(Encode(% X)) error = %v", p, err)
		}
		if !bytes.Equal(got, p) {
			t.Errorf("Decode(Encode(% X)) = % X", p, got)
		}
	}
}

func TestUnstuffErrors(t *testing.T) {
	tests := []struct {
		name string
		bits []byte
	}{
		{"seven ones", []byte{1, 1, 1, 1, 1, 1, 1}},
		{"six ones at end", []byte{0, 1, 1, 1, 1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Unstuff(tt.bits); !errors.Is(err, pkg.ErrFraming) {
				t.Errorf("Unstuff() error = %v, want ErrFraming", err)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"bad sync", "KJKJKJKJJJKJJKKK00J"},
		{"missing eop", "KJKJKJKKJJKJJKKK"},
		{"eop without J", "KJKJKJKKJJKJJKKK000"},
		{"trailing symbols", "KJKJKJKKJJKJJKKK00JK"},
		{"single se0", "KJKJKJKKJJKJJKKK0J"},
		{"partial byte", "KJKJKJKKJJKJ00J"},
		{"stuff violation", "KJKJKJKKKKKKKKKJJ00J"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := ParseLine(tt.line)
			if err != nil {
				t.Fatalf("ParseLine() error = %v", err)
			}
			if _, err := Decode(line); !errors.Is(err, pkg.ErrFraming) {
				t.Errorf("Decode(%s) error = %v, want ErrFraming", tt.line, err)
			}
		})
	}
}

func TestDecodeSkipsIdle(t *testing.T) {
	line := append(Line{J, J, J}, Encode([]byte{0x5A})...)
	got, err := Decode(line)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !bytes.Equal(got, []byte{0x5A}) {
		t.Errorf("Decode() = % X, want 5A", got)
	}
}

func TestNRZI(t *testing.T) {
	bits := []byte{0, 0, 0, 0, 0, 0, 0, 1}
	line := NRZIEncode(bits, J)
	if got := line.String(); got != Sync.String() {
		t.Errorf("NRZIEncode(sync bits) = %s, want %s", got, Sync.String())
	}
	back, err := NRZIDecode(line, J)
	if err != nil {
		t.Fatalf("NRZIDecode() error = %v", err)
	}
	if !bytes.Equal(back, bits) {
		t.Errorf("NRZIDecode() = %v, want %v", back, bits)
	}
	if _, err := NRZIDecode(Line{J, SE0}, J); !errors.Is(err, pkg.ErrFraming) {
		t.Errorf("NRZIDecode(SE0) error = %v, want ErrFraming", err)
	}
}

func TestBitsToBytes(t *testing.T) {
	data := []byte{0x80, 0x06, 0x01}
	got, err := BitsToBytes(BytesToBits(data))
	if err != nil {
		t.Fatalf("BitsToBytes() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("BitsToBytes(BytesToBits()) = % X, want % X", got, data)
	}
	if bits := BytesToBits([]byte{0x01}); bits[0] != 1 || bits[7] != 0 {
		t.Errorf("BytesToBits(0x01) = %v, want LSB first", bits)
	}
	if _, err := BitsToBytes([]byte{1, 0, 1}); !errors.Is(err, pkg.ErrFraming) {
		t.Errorf("BitsToBytes(3 bits) error = %v, want ErrFraming", err)
	}
}

func TestParseLine(t *testing.T) {
	line, err := ParseLine("KJ kj _0")
	if err != nil {
		t.Fatalf("ParseLine() error = %v", err)
	}
	want := Line{K, J, K, J, SE0, SE0}
	if len(line) != len(want) {
		t.Fatalf("ParseLine() = %v, want %v", line, want)
	}
	for i := range want {
		if line[i] != want[i] {
			t.Errorf("symbol %d = %v, want %v", i, line[i], want[i])
		}
	}
	if _, err := ParseLine("JKX"); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("ParseLine(JKX) error = %v, want ErrInvalidParameter", err)
	}
}
