// Package cdc implements a CDC-ACM serial function on top of the device
// engine.
//
// ACM answers the ACM class requests on its control interface as a
// device.RequestHandler and moves serial data through a bulk endpoint
// pair the way firmware does, one max-packet-size buffer at a time.
// Line coding and control line state are recorded for the application;
// nothing is transmitted on a physical UART.
//
// # Usage
//
//	acm := cdc.NewACM(0, 2, 1, 64)
//	table.Set(device.DescriptorTypeConfiguration, 0,
//	    device.BuildConfiguration(1, 2, 0, 50, acm.InterfaceDescriptors()))
//	dev.AddHandler(acm)
//
//	acm.Start(dev)
//	acm.Write(dev, []byte("hello\r\n"))
//	n, _ := acm.Read(dev, buf)
package cdc
