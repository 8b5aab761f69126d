// Package fifo implements a device HAL on named pipes (FIFOs).
//
// It lets a device stack run as an ordinary process and be driven by a
// host-side client on the same machine, with no USB hardware involved. The
// device emulator and the host FIFO transport use it for end-to-end tests
// of the reset interface.
//
// # Layout
//
// Each device instance creates a unique subdirectory under a shared bus
// directory:
//
//	/tmp/usb-bus/                    # Bus directory (shared with host)
//	└── device-{uuid}/               # Device subdirectory (unique per device)
//	    ├── connection               # Connection signaling (device → host)
//	    ├── host_to_device           # Control transfers from host
//	    └── device_to_host           # Control transfer responses to host
//
// The UUID is generated with crypto/rand so parallel tests never collide.
//
// # Messages
//
// Every message is [type, len_lo, len_hi, payload...]. The host sends
// SETUP (0x01) with payload [address, setup(8), OUT data...], RESET (0x12)
// and ADDRESS (0x13). The device answers with DATA (0x02), ACK (0x03) or
// STALL (0x05). Only the control endpoint exists.
//
// The connection pipe carries 0x01 when the device attaches and 0x00 when
// it detaches.
//
// # Usage
//
//	h := fifo.New("/tmp/usb-bus")
//	stack := device.NewStack(dev, h)
//	if err := stack.Start(ctx); err != nil {
//	    return err
//	}
//	fmt.Println("device directory:", h.DeviceDir())
package fifo
