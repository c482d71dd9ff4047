package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ardnew/usbwire/device"
	"github.com/ardnew/usbwire/device/class/cdc"
	"github.com/ardnew/usbwire/device/class/hid"
	devfifo "github.com/ardnew/usbwire/device/hal/fifo"
	"github.com/ardnew/usbwire/pkg"
)

var (
	serveBus      string
	serveFunction string
	serveText     string
	servePoll     time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a simulated device over named pipes",
	Long: `Creates a device directory under the bus directory and answers host
packets on its pipes until interrupted.

--function selects what the device implements beyond the standard requests
and the debug bridge:

  none      descriptors only
  hid       a boot keyboard that types --text once configured
  cdc       a CDC-ACM serial port that echoes received data upper-cased`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		bus := serveBus
		if bus == "" {
			bus = settings.BusDir
		}
		if bus == "" {
			return fmt.Errorf("no bus directory: %w", pkg.ErrInvalidParameter)
		}
		fn, err := newFunction(serveFunction)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := os.MkdirAll(bus, 0o755); err != nil {
			return err
		}
		return serve(ctx, bus, fn)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveBus, "bus", "", "Bus directory (default from settings)")
	serveCmd.Flags().StringVar(&serveFunction, "function", "none", "Device function: none, hid or cdc")
	serveCmd.Flags().StringVar(&serveText, "text", "hello from usbsim\n", "Text the hid function types")
	serveCmd.Flags().DurationVar(&servePoll, "poll", 5*time.Millisecond, "Firmware poll interval")
}

// function is what a served device implements on top of endpoint 0.
type function interface {
	device.RequestHandler
	product() string
	class() uint8
	register(t *device.Descriptors)
	configuration() []byte
	start(dev *device.Device) error

	// poll runs the function's firmware loop once. It is called on every
	// poll interval while the device is configured.
	poll(dev *device.Device) error
}

func newFunction(name string) (function, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return nil, nil
	case "hid":
		return &keyboardFunction{
			HID:     hid.New(0, 1, hid.BootKeyboardReportDescriptor),
			reports: keyReports(serveText),
		}, nil
	case "cdc":
		return &serialFunction{ACM: cdc.NewACM(0, 2, 1, device.DefaultMaxPacketSize0)}, nil
	default:
		return nil, fmt.Errorf("function %q: %w", name, pkg.ErrInvalidParameter)
	}
}

// serveConfig builds the device configuration for fn, which may be nil.
func serveConfig(fn function) device.Config {
	product, class := "usbsim device", uint8(0)
	if fn != nil {
		product, class = fn.product(), fn.class()
	}
	t := device.NewDescriptors()
	t.SetDevice(&device.DeviceDescriptor{
		USBVersion:        0x0200,
		DeviceClass:       class,
		MaxPacketSize0:    device.DefaultMaxPacketSize0,
		VendorID:          0x1209,
		ProductID:         0x5BF0,
		DeviceVersion:     0x0100,
		ManufacturerIndex: 1,
		ProductIndex:      2,
		NumConfigurations: 1,
	})
	t.SetLanguages(device.LangIDUSEnglish)
	t.SetString(1, "usbwire")
	t.SetString(2, product)
	if fn != nil {
		fn.register(t)
		t.Set(device.DescriptorTypeConfiguration, 0, fn.configuration())
	} else {
		t.Set(device.DescriptorTypeConfiguration, 0,
			device.BuildConfiguration(1, 0, 0, 50))
	}

	cfg := device.DefaultConfig()
	cfg.Descriptors = t
	cfg.DebugBridge = true
	return cfg
}

// newServedDevice creates the device for fn and arranges for the function
// to start whenever the host selects configuration 1.
func newServedDevice(fn function) (*device.Device, <-chan struct{}, error) {
	dev, err := device.NewDevice(serveConfig(fn))
	if err != nil {
		return nil, nil, err
	}
	configured := make(chan struct{}, 1)
	if fn == nil {
		return dev, configured, nil
	}
	dev.AddHandler(fn)
	dev.SetOnSetConfiguration(func(config uint8) {
		if config != 1 {
			return
		}
		if err := fn.start(dev); err != nil {
			pkg.LogError(component, "function start failed", "error", err)
			return
		}
		select {
		case configured <- struct{}{}:
		default:
		}
	})
	return dev, configured, nil
}

func serve(ctx context.Context, bus string, fn function) error {
	dev, configured, err := newServedDevice(fn)
	if err != nil {
		return err
	}
	link := devfifo.New(bus)
	if err := link.Init(ctx); err != nil {
		return err
	}
	defer link.Close()

	stack := device.NewStack(dev, link)
	if err := stack.Start(ctx); err != nil {
		return err
	}
	pkg.LogInfo(component, "serving device", "dir", link.DeviceDir(), "function", serveFunction)
	fmt.Println(link.DeviceDir())

	err = runFirmware(ctx, dev, fn, configured, servePoll)
	stopErr := stack.Stop()
	pkg.LogInfo(component, "device stopped", "packets", stack.Processed())
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return errors.Join(err, stopErr)
}

// runFirmware polls fn while the device is configured until ctx ends.
func runFirmware(ctx context.Context, dev *device.Device, fn function, configured <-chan struct{}, interval time.Duration) error {
	if fn == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-configured:
			pkg.LogInfo(component, "function configured", "product", fn.product())
		case <-ticker.C:
			if dev.Configuration() == 0 {
				continue
			}
			if err := fn.poll(dev); err != nil && !errors.Is(err, pkg.ErrBusy) {
				return err
			}
		}
	}
}

// keyboardFunction types its reports once, in order. Only poll touches
// reports.
type keyboardFunction struct {
	*hid.HID
	reports [][]byte
}

func (k *keyboardFunction) product() string { return "usbsim keyboard" }
func (k *keyboardFunction) class() uint8    { return 0 }

func (k *keyboardFunction) register(t *device.Descriptors) { k.Register(t) }

func (k *keyboardFunction) configuration() []byte {
	return device.BuildConfiguration(1, 1, 0, 50, k.InterfaceDescriptors(10))
}

func (k *keyboardFunction) start(dev *device.Device) error { return k.Start(dev) }

func (k *keyboardFunction) poll(dev *device.Device) error {
	if len(k.reports) == 0 {
		return nil
	}
	if err := k.SendReport(dev, k.reports[0]); err != nil {
		return err
	}
	k.reports = k.reports[1:]
	if len(k.reports) == 0 {
		pkg.LogInfo(component, "text typed")
	}
	return nil
}

// keyReports returns press and release reports typing text. Characters
// without a key are skipped.
func keyReports(text string) [][]byte {
	var out [][]byte
	for i := 0; i < len(text); i++ {
		key, mods, ok := hid.Keycode(text[i])
		if !ok {
			pkg.LogWarn(component, "no key for character", "char", text[i])
			continue
		}
		press := make([]byte, hid.KeyboardReportSize)
		(&hid.KeyboardReport{Modifiers: mods, Keys: [6]uint8{key}}).MarshalTo(press)
		out = append(out, press, make([]byte, hid.KeyboardReportSize))
	}
	return out
}

// serialFunction echoes received data upper-cased.
type serialFunction struct {
	*cdc.ACM
	pending []byte
}

func (s *serialFunction) product() string                { return "usbsim serial" }
func (s *serialFunction) class() uint8                   { return cdc.ClassCDC }
func (s *serialFunction) register(*device.Descriptors)   {}
func (s *serialFunction) start(dev *device.Device) error { return s.Start(dev) }

func (s *serialFunction) configuration() []byte {
	return device.BuildConfiguration(1, 2, 0, 50, s.InterfaceDescriptors())
}

func (s *serialFunction) poll(dev *device.Device) error {
	if len(s.pending) == 0 {
		buf := make([]byte, device.DefaultMaxPacketSize0)
		n, err := s.Read(dev, buf)
		if err != nil || n == 0 {
			return err
		}
		s.pending = bytes.ToUpper(buf[:n])
	}
	n, err := s.Write(dev, s.pending)
	s.pending = s.pending[n:]
	return err
}
