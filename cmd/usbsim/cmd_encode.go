package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ardnew/usbwire/packet"
	"github.com/ardnew/usbwire/pkg"
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode one packet to bytes and line symbols",
	Long: `Builds a single packet from its fields and prints it with its bytes (PID,
fields and CRC) and its line form: SYNC, NRZI-encoded stuffed bits, and EOP,
one character per bit period (J, K, 0 for SE0).`,
}

var encodeTokenCmd = &cobra.Command{
	Use:   "token [OUT|IN|SETUP] [address] [endpoint]",
	Short: "Encode a token packet",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := parsePID(args[0], packet.PID.IsToken)
		if err != nil {
			return err
		}
		addr, err := parseNumber(args[1], 0x7F)
		if err != nil {
			return err
		}
		ep, err := parseNumber(args[2], 0x0F)
		if err != nil {
			return err
		}
		if pid == packet.PIDSOF {
			return fmt.Errorf("use encode sof for SOF packets: %w", pkg.ErrInvalidParameter)
		}
		return printPacket(cmd.OutOrStdout(), packet.NewToken(pid, uint8(addr), uint8(ep)))
	},
}

var encodeSOFCmd = &cobra.Command{
	Use:   "sof [frame]",
	Short: "Encode a start-of-frame packet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		frame, err := parseNumber(args[0], 0x7FF)
		if err != nil {
			return err
		}
		return printPacket(cmd.OutOrStdout(), &packet.SOF{Frame: uint16(frame)})
	},
}

var encodeDataCmd = &cobra.Command{
	Use:   "data [DATA0|DATA1] [hex]",
	Short: "Encode a data packet",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := parsePID(args[0], packet.PID.IsData)
		if err != nil {
			return err
		}
		toggle, ok := packet.ToggleOf(pid)
		if !ok {
			return fmt.Errorf("%s is not a full-speed data PID: %w", pid, pkg.ErrInvalidParameter)
		}
		var payload []byte
		if len(args) > 1 {
			if payload, err = parseHex(args[1]); err != nil {
				return err
			}
		}
		return printPacket(cmd.OutOrStdout(), packet.NewData(toggle, payload))
	},
}

var encodeHandshakeCmd = &cobra.Command{
	Use:   "handshake [ACK|NAK|STALL]",
	Short: "Encode a handshake packet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := parsePID(args[0], packet.PID.IsHandshake)
		if err != nil {
			return err
		}
		return printPacket(cmd.OutOrStdout(), &packet.Handshake{Type: pid})
	},
}

// printPacket writes the packet, its bytes and its line form.
func printPacket(w io.Writer, p packet.Packet) error {
	_, err := fmt.Fprintf(w, "%s\nbytes: % X\nline:  %s\n", p, packet.Bytes(p), packet.Encode(p))
	return err
}

// parsePID parses a PID name accepted by class, case-insensitively.
func parsePID(s string, class func(packet.PID) bool) (packet.PID, error) {
	want := strings.ToUpper(s)
	for v := range 16 {
		pid := packet.PID(v)
		if class(pid) && pid.String() == want {
			return pid, nil
		}
	}
	return 0, fmt.Errorf("PID %q: %w", s, pkg.ErrInvalidParameter)
}

// parseNumber parses a decimal or 0x-prefixed hexadecimal number no larger
// than limit.
func parseNumber(s string, limit uint64) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil || v > limit {
		return 0, fmt.Errorf("number %q (limit %d): %w", s, limit, pkg.ErrInvalidParameter)
	}
	return v, nil
}

// parseHex parses hex bytes, ignoring spaces, colons and a 0x prefix.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("hex %q: %w", s, pkg.ErrInvalidParameter)
	}
	return b, nil
}
