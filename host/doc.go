// Package host sends reset requests to boards that expose the reset
// interface.
//
// Transports find boards and open connections to them:
//
//   - [github.com/ardnew/picoreset/host/libusb] talks to real hardware
//     through libusb
//   - [github.com/ardnew/picoreset/host/fifo] talks to an emulated board on
//     a FIFO bus
//
// # Example
//
//	t := libusb.New()
//	defer t.Close()
//
//	infos, err := t.Devices(ctx)
//	if err != nil {
//	    return err
//	}
//	info, err := host.Select(infos, sel)
//	if err != nil {
//	    return err
//	}
//	conn, err := t.Open(ctx, info)
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	req := picoreset.Request{DisableInterface: picoreset.DisableMassStorage}
//	return host.Reset(ctx, conn, info.Interface, req)
package host
