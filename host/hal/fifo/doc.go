// Package fifo is the host end of a named-pipe link.
//
// A device served through [github.com/ardnew/usbwire/device/hal/fifo]
// creates a subdirectory under a shared bus directory. The host polls the
// bus directory for subdirectories matching `device-*/` whose connection
// FIFO exists, waits for the device's connect signal, and then exchanges
// line frames over host_to_device and device_to_host:
//
//	dir, err := fifo.WaitDevice(ctx, "/tmp/usb-bus")
//	if err != nil {
//	    return err
//	}
//	conn, err := fifo.Dial(ctx, dir)
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//	h := host.New(conn)
package fifo
