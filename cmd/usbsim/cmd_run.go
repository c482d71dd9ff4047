package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/ulikunitz/xz"

	"github.com/ardnew/usbwire/pkg"
	"github.com/ardnew/usbwire/scenario"
)

var (
	runTransport  string
	runParallel   int
	runTimeout    string
	runTurnaround string
	runBusDir     string
	runTrace      string
)

var runCmd = &cobra.Command{
	Use:   "run [scenario...]",
	Short: "Run scenarios against a fresh device each",
	Long: `Runs the named scenarios, or all of them when none are named, each against
a fresh device, and prints one result line per scenario. The command fails
when any scenario fails.

With --trace every packet the host sends or receives is written to the
given file, one line per packet prefixed with the scenario name. A file
name ending in .xz is compressed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scenarios, err := selectScenarios(args)
		if err != nil {
			return err
		}
		opts, err := runOptions(cmd)
		if err != nil {
			return err
		}

		if runTrace != "" {
			trace, err := createTrace(runTrace)
			if err != nil {
				return err
			}
			defer func() {
				if err := trace.Close(); err != nil {
					pkg.LogError(component, "error closing trace", "path", runTrace, "error", err)
				}
			}()
			opts.Trace = trace
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runScenarios(ctx, cmd.OutOrStdout(), scenarios, opts)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runTransport, "transport", "t", "", "Transport: direct, loop or fifo")
	runCmd.Flags().IntVarP(&runParallel, "parallel", "p", 0, "Scenarios to run at once")
	runCmd.Flags().StringVar(&runTimeout, "timeout", "", "Time limit per scenario")
	runCmd.Flags().StringVar(&runTurnaround, "turnaround", "", "Host wait for a device response")
	runCmd.Flags().StringVar(&runBusDir, "bus", "", "Bus directory for the fifo transport (default: temporary)")
	runCmd.Flags().StringVarP(&runTrace, "trace", "o", "", "Write the packet trace to this file (.xz to compress)")
}

// selectScenarios returns the named scenarios in argument order, or all of
// them when names is empty.
func selectScenarios(names []string) ([]scenario.Scenario, error) {
	if len(names) == 0 {
		return scenario.All(), nil
	}
	out := make([]scenario.Scenario, 0, len(names))
	for _, name := range names {
		sc, ok := scenario.Find(name)
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q (see usbsim list): %w", name, pkg.ErrInvalidParameter)
		}
		out = append(out, sc)
	}
	return out, nil
}

// runOptions applies the run flags that were set over the settings.
func runOptions(cmd *cobra.Command) (scenario.Options, error) {
	s := settings
	flags := cmd.Flags()
	if flags.Changed("transport") {
		s.Transport = runTransport
	}
	if flags.Changed("parallel") {
		s.Parallel = runParallel
	}
	if flags.Changed("timeout") {
		s.Timeout = runTimeout
	}
	if flags.Changed("turnaround") {
		s.Turnaround = runTurnaround
	}
	if flags.Changed("bus") {
		s.BusDir = runBusDir
	}
	return s.Options()
}

// runScenarios runs scenarios and writes one line per result to w.
func runScenarios(ctx context.Context, w io.Writer, scenarios []scenario.Scenario, opts scenario.Options) error {
	results, err := scenario.RunAll(ctx, scenarios, opts)
	passed := 0
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "FAIL  %-26s %v\n", r.Name, r.Err)
			continue
		}
		passed++
		fmt.Fprintf(w, "ok    %-26s %8s  %d packets\n", r.Name, r.Elapsed.Round(time.Millisecond), r.Packets)
	}
	fmt.Fprintf(w, "%d/%d passed over %s\n", passed, len(results), opts.Transport)
	return err
}

// createTrace creates the trace file at path, compressed when the name
// ends in .xz.
func createTrace(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".xz") {
		return f, nil
	}
	zw, err := xz.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &xzFile{Writer: zw, f: f}, nil
}

// xzFile closes the compressor before the file beneath it.
type xzFile struct {
	*xz.Writer
	f *os.File
}

func (x *xzFile) Close() error {
	if err := x.Writer.Close(); err != nil {
		x.f.Close()
		return err
	}
	return x.f.Close()
}
