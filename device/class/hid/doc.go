// Package hid implements a HID function on top of the device engine.
//
// A HID value answers the HID class requests (GET_REPORT, SET_REPORT,
// GET_IDLE, SET_IDLE, GET_PROTOCOL, SET_PROTOCOL) for one interface as a
// [device.RequestHandler], and queues input reports on an interrupt IN
// endpoint the way firmware does: check the endpoint is free, load the
// buffer, then ACK.
//
// # Usage
//
//	table := device.NewDescriptors()
//	kbd := hid.New(0, 0x81, hid.BootKeyboardReportDescriptor)
//	kbd.Register(table)
//	table.Set(device.DescriptorTypeConfiguration, 0,
//	    device.BuildConfiguration(1, 1, 0, 50, kbd.InterfaceDescriptors(10)))
//
//	cfg := device.DefaultConfig()
//	cfg.Descriptors = table
//	dev, _ := device.NewDevice(cfg)
//	dev.AddHandler(kbd)
//
//	// Once configured:
//	kbd.Start(dev)
//	kbd.SendKeyboardReport(dev, &hid.KeyboardReport{Keys: [6]uint8{hid.KeyA}})
//
// The class descriptor and the report descriptor are stored in the
// descriptor table under the interface number, where the standard request
// handler serves interface-recipient GET_DESCRIPTOR requests.
package hid
