package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/ulikunitz/xz"

	"github.com/ardnew/usbwire/packet"
	"github.com/ardnew/usbwire/wire"
)

var decodeFile string

var decodeCmd = &cobra.Command{
	Use:   "decode [packet...]",
	Short: "Decode packets from line symbols or bytes",
	Long: `Decodes each argument as one packet. An argument made of J, K and 0 (or _)
is a line: SYNC, NRZI data and EOP. Anything else is read as hex bytes
starting with the PID.

With --file, packets are read one per line from a file ("-" for stdin).
Trace files written by usbsim run are accepted as is, including .xz
compressed ones: when the last field of a line is a line-symbol string it
is decoded and the rest of the line kept as a label.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		failed := 0
		for _, arg := range args {
			if !decodeOne(w, "", arg) {
				failed++
			}
		}
		if decodeFile != "" {
			r, err := openInput(decodeFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer r.Close()
			n, err := decodeStream(w, r)
			if err != nil {
				return err
			}
			failed += n
		}
		if failed > 0 {
			return fmt.Errorf("%d packets failed to decode", failed)
		}
		return nil
	},
}

func init() {
	decodeCmd.Flags().StringVarP(&decodeFile, "file", "f", "", "Read packets or a trace from this file (.xz is decompressed)")
}

// decodeStream decodes every non-empty line of r and returns the number of
// lines that failed.
func decodeStream(w io.Writer, r io.Reader) (int, error) {
	failed := 0
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		last := fields[len(fields)-1]
		switch {
		case isLine(last):
			if !decodeOne(w, traceLabel(fields[:len(fields)-1]), last) {
				failed++
			}
		case strings.Contains(line, "H>D") || strings.Contains(line, "D>H"):
			// Trace events without a line, such as resets and timeouts.
			fmt.Fprintln(w, line)
		default:
			if !decodeOne(w, "", line) {
				failed++
			}
		}
	}
	return failed, sc.Err()
}

// traceLabel returns the fields of a trace line up to its direction
// marker, or all of them when there is none.
func traceLabel(fields []string) string {
	for i, f := range fields {
		if f == "H>D" || f == "D>H" {
			return strings.Join(fields[:i+1], " ")
		}
	}
	return strings.Join(fields, " ")
}

// decodeOne decodes s and writes the result, labelled with prefix when set.
func decodeOne(w io.Writer, prefix, s string) bool {
	if prefix != "" {
		prefix += " "
	}
	p, err := decodeInput(s)
	if err != nil {
		fmt.Fprintf(w, "%s%s: %v\n", prefix, s, err)
		return false
	}
	fmt.Fprintf(w, "%s%s\n", prefix, p)
	return true
}

// decodeInput decodes a line-symbol string or hex bytes.
func decodeInput(s string) (packet.Packet, error) {
	if isLine(s) {
		line, err := wire.ParseLine(s)
		if err != nil {
			return nil, err
		}
		return packet.Decode(line)
	}
	data, err := parseHex(s)
	if err != nil {
		return nil, err
	}
	return packet.Parse(data)
}

// isLine reports whether s looks like line symbols rather than hex.
func isLine(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch c {
		case 'J', 'K', 'j', 'k', '0', '_':
		default:
			return false
		}
	}
	return strings.ContainsAny(s, "JKjk")
}

// openInput opens path for reading, decompressing .xz files. "-" is in.
func openInput(path string, in io.Reader) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(in), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".xz") {
		return f, nil
	}
	zr, err := xz.NewReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, err
	}
	return struct {
		io.Reader
		io.Closer
	}{zr, f}, nil
}
