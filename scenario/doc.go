// Package scenario holds named host/device conversations that exercise the
// device engine end to end.
//
// Each [Scenario] builds a fresh [device.Device] from its configuration and
// drives it with a [host.Host]. Scenarios alternate between host packets and
// firmware actions on the device's register interface, the way a test bench
// drives a real controller. [Run] executes one scenario over a chosen
// [Transport]; [RunAll] executes many with bounded parallelism and
// aggregates their failures:
//
//	results, err := scenario.RunAll(ctx, scenario.All(), scenario.Options{
//	    Transport: scenario.TransportLoop,
//	    Parallel:  4,
//	})
//
// On concurrent transports the device answers from a [device.Stack]
// goroutine. Firmware actions first wait for the stack to consume every
// packet the host has sent, so scenarios read the same on every transport.
package scenario
