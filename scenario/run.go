package scenario

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/ardnew/usbwire/device"
	"github.com/ardnew/usbwire/device/hal"
	devfifo "github.com/ardnew/usbwire/device/hal/fifo"
	"github.com/ardnew/usbwire/device/hal/loop"
	"github.com/ardnew/usbwire/host"
	hostfifo "github.com/ardnew/usbwire/host/hal/fifo"
	"github.com/ardnew/usbwire/pkg"
)

// Transport selects how the host reaches the device.
type Transport int

// Transports.
const (
	// TransportDirect calls the device on the host's goroutine.
	TransportDirect Transport = iota
	// TransportLoop serves the device from a Stack over an in-process link.
	TransportLoop
	// TransportFIFO serves the device from a Stack over named pipes.
	TransportFIFO
)

// String returns the transport name.
func (t Transport) String() string {
	switch t {
	case TransportDirect:
		return "direct"
	case TransportLoop:
		return "loop"
	case TransportFIFO:
		return "fifo"
	default:
		return fmt.Sprintf("Transport(%d)", int(t))
	}
}

// ParseTransport parses a transport name.
func ParseTransport(s string) (Transport, error) {
	switch strings.ToLower(s) {
	case "direct", "":
		return TransportDirect, nil
	case "loop":
		return TransportLoop, nil
	case "fifo":
		return TransportFIFO, nil
	default:
		return 0, fmt.Errorf("transport %q: %w", s, pkg.ErrInvalidParameter)
	}
}

// Defaults.
const (
	// DefaultTimeout bounds one scenario run.
	DefaultTimeout = 30 * time.Second

	// DefaultTurnaround is the host's wait for a response on concurrent
	// transports.
	DefaultTurnaround = 50 * time.Millisecond
)

// Options configure Run and RunAll.
type Options struct {
	Transport Transport

	// Parallel bounds concurrent runs in RunAll. Zero or less runs one at a time.
	Parallel int

	// Timeout bounds each run. Zero selects DefaultTimeout.
	Timeout time.Duration

	// Turnaround is the host response timeout. Zero selects DefaultTurnaround.
	Turnaround time.Duration

	// Trace, when set, receives the packet trace of every run, each line
	// prefixed with the scenario name.
	Trace io.Writer

	// BusDir is the bus directory for TransportFIFO. Empty selects a
	// temporary directory per run.
	BusDir string
}

// Result is the outcome of one run.
type Result struct {
	Name    string
	Err     error
	Elapsed time.Duration
	Packets uint64
}

// Run executes one scenario against a fresh device.
func Run(ctx context.Context, sc Scenario, opts Options) Result {
	start := time.Now()
	res := Result{Name: sc.Name}
	res.Err = run(ctx, sc, opts, &res)
	res.Elapsed = time.Since(start)
	if res.Err != nil {
		res.Err = fmt.Errorf("%s: %w", sc.Name, res.Err)
		pkg.LogWarn(pkg.ComponentScenario, "scenario failed", "name", sc.Name, "error", res.Err)
	} else {
		pkg.LogInfo(pkg.ComponentScenario, "scenario passed", "name", sc.Name,
			"transport", opts.Transport.String(), "elapsed", res.Elapsed)
	}
	return res
}

func run(ctx context.Context, sc Scenario, opts Options, res *Result) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dev, err := device.NewDevice(sc.config())
	if err != nil {
		return err
	}
	hostOpts := []host.Option{
		host.WithMaxPacketSize0(int(dev.Config().MaxPacketSize0)),
	}
	if opts.Trace != nil {
		hostOpts = append(hostOpts, host.WithTrace(opts.Trace))
	}
	turnaround := opts.Turnaround
	if turnaround <= 0 {
		turnaround = DefaultTurnaround
	}
	hostOpts = append(hostOpts, host.WithTimeout(turnaround))

	env := &Env{Device: dev}
	switch opts.Transport {
	case TransportDirect:
		env.Host = host.New(host.NewDirect(dev), hostOpts...)

	case TransportLoop:
		hostPort, devicePort := loop.New(0)
		defer hostPort.Close()
		stop, err := serve(ctx, env, devicePort)
		if err != nil {
			return err
		}
		defer stop()
		env.Host = host.New(hostPort, hostOpts...)

	case TransportFIFO:
		busDir := opts.BusDir
		if busDir == "" {
			if busDir, err = os.MkdirTemp("", "usbwire-bus-"); err != nil {
				return err
			}
			defer os.RemoveAll(busDir)
		}
		link := devfifo.New(busDir)
		if err := link.Init(ctx); err != nil {
			return err
		}
		defer link.Close()
		stop, err := serve(ctx, env, link)
		if err != nil {
			return err
		}
		defer stop()
		conn, err := hostfifo.Dial(ctx, link.DeviceDir())
		if err != nil {
			return err
		}
		defer conn.Close()
		env.Host = host.New(conn, hostOpts...)

	default:
		return fmt.Errorf("transport %s: %w", opts.Transport, pkg.ErrInvalidParameter)
	}

	s := newScript(ctx, env)
	sc.Run(s)
	res.Packets = env.Host.Sent()
	return s.Err()
}

// serve starts a Stack answering on link and returns its stop function.
func serve(ctx context.Context, env *Env, link hal.Link) (func(), error) {
	stack := device.NewStack(env.Device, link)
	if err := stack.Start(ctx); err != nil {
		return nil, err
	}
	env.stack = stack
	return func() {
		if err := stack.Stop(); err != nil {
			pkg.LogWarn(pkg.ComponentScenario, "error stopping stack", "error", err)
		}
	}, nil
}

// RunAll executes scenarios with at most opts.Parallel runs at a time and
// returns every result in input order. The error aggregates all failures.
func RunAll(ctx context.Context, scenarios []Scenario, opts Options) ([]Result, error) {
	results := make([]Result, len(scenarios))
	if opts.Trace != nil {
		opts.Trace = &lockedWriter{w: opts.Trace}
	}

	// Runs record their own results; the group only bounds parallelism.
	var g errgroup.Group
	g.SetLimit(max(opts.Parallel, 1))
	for i, sc := range scenarios {
		runOpts := opts
		if lw, ok := opts.Trace.(*lockedWriter); ok {
			runOpts.Trace = lw.prefixed("[" + sc.Name + "] ")
		}
		g.Go(func() error {
			results[i] = Run(ctx, sc, runOpts)
			return nil
		})
	}
	g.Wait()

	var errs *multierror.Error
	for _, r := range results {
		if r.Err != nil {
			errs = multierror.Append(errs, r.Err)
		}
	}
	return results, errs.ErrorOrNil()
}

// lockedWriter serializes writes from concurrent runs.
type lockedWriter struct {
	mutex sync.Mutex
	w     io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.w.Write(p)
}

func (l *lockedWriter) prefixed(prefix string) io.Writer {
	return &prefixWriter{lw: l, prefix: []byte(prefix)}
}

// prefixWriter writes prefix before each Write. Host traces are written one
// line per call.
type prefixWriter struct {
	lw     *lockedWriter
	prefix []byte
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	line := append(append([]byte{}, p.prefix...), b...)
	if _, err := p.lw.Write(line); err != nil {
		return 0, err
	}
	return len(b), nil
}
