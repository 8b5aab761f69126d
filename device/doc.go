// Package device implements a small USB 2.0 device stack for boards that
// expose vendor control interfaces.
//
// It is platform-agnostic and interacts with hardware via the
// [hal.DeviceHAL] interface defined in [github.com/ardnew/picoreset/device/hal].
//
// # Architecture
//
//   - [Builder] collects functions, interfaces, strings and handlers, then
//     freezes them into a [Device]
//   - [Device] tracks the USB state machine, answers standard requests and
//     dispatches everything else to the registered [Handler] values
//   - [Stack] runs the control endpoint on top of a HAL
//
// # Handlers
//
// Class drivers implement [Handler]. Each method reports whether the request
// belongs to the handler; the first handler to claim a request decides its
// outcome, and a request nobody claims is stalled.
//
//	type Handler interface {
//	    ControlOut(setup *SetupPacket, data []byte) (Response, bool)
//	    ControlIn(setup *SetupPacket, buf []byte) (int, Response, bool)
//	    GetString(index StringIndex, langID uint16) (string, bool)
//	}
//
// Embed [BaseHandler] to implement only the methods a class needs.
//
// # Device States
//
//	Attached → Powered → Default → Address → Configured → Suspended
//
// # Zero-Allocation Design
//
// Tables are fixed-size arrays, descriptors serialize through MarshalTo(buf)
// and the configuration descriptor is built once by [Builder.Build].
//
// # Example
//
//	b := device.NewBuilder(device.DefaultDeviceConfig())
//	picoreset.Configure(b, &resetState, picoreset.DefaultConfig())
//	dev, err := b.Build()
//	if err != nil {
//	    return err
//	}
//	stack := device.NewStack(dev, hal)
//	return stack.Start(ctx)
package device
