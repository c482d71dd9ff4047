package pkg

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusAck, "ack"},
		{StatusNAK, "nak"},
		{StatusStall, "stall"},
		{StatusTimeout, "timeout"},
		{StatusError, "error"},
		{Status(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("Status.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_Error(t *testing.T) {
	tests := []struct {
		status  Status
		wantErr error
	}{
		{StatusAck, nil},
		{StatusNAK, ErrNAK},
		{StatusStall, ErrStall},
		{StatusTimeout, ErrTimeout},
		{StatusError, ErrProtocolSequence},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			err := tt.status.Error()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Status.Error() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Status.Error() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestErrorsWrap(t *testing.T) {
	wrapped := fmt.Errorf("token: %w", ErrCRC)
	if !errors.Is(wrapped, ErrCRC) {
		t.Error("wrapped CRC error not matched by errors.Is")
	}
	if errors.Is(wrapped, ErrFraming) {
		t.Error("CRC error matched framing error")
	}
}

func TestErrorsDistinct(t *testing.T) {
	errs := []error{
		ErrFraming, ErrCRC, ErrPID, ErrPacketTooShort, ErrBabble,
		ErrUnexpectedPacket, ErrProtocolSequence, ErrStall, ErrNAK,
		ErrTimeout, ErrDataMismatch, ErrInvalidEndpoint, ErrInvalidRequest,
		ErrNotHandled, ErrInvalidRegister, ErrSetupPacketTooShort,
		ErrBufferTooSmall, ErrInvalidParameter, ErrAlreadyRunning, ErrNotRunning,
	}
	for i, a := range errs {
		if a.Error() == "" {
			t.Errorf("error %d has empty message", i)
		}
		for j, b := range errs {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v matches %v", a, b)
			}
		}
	}
}
