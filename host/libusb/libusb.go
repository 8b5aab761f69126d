// Package libusb finds and resets boards on real USB buses through libusb.
package libusb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/ardnew/picoreset/device"
	"github.com/ardnew/picoreset/device/class/picoreset"
	"github.com/ardnew/picoreset/host"
	"github.com/ardnew/picoreset/pkg"
)

// DefaultTimeout bounds each control transfer.
const DefaultTimeout = 5 * time.Second

// Transport implements host.Transport on a libusb context.
type Transport struct {
	usb      *gousb.Context
	subClass uint8
	protocol uint8
	timeout  time.Duration
}

// Option customizes a Transport.
type Option func(*Transport)

// WithClass matches reset interfaces advertising subClass and protocol.
func WithClass(subClass, protocol uint8) Option {
	return func(t *Transport) {
		t.subClass = subClass
		t.protocol = protocol
	}
}

// WithTimeout sets the control transfer timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.timeout = d
	}
}

// New opens a libusb context.
func New(opts ...Option) *Transport {
	t := &Transport{
		usb:      gousb.NewContext(),
		subClass: picoreset.SubclassReset,
		protocol: picoreset.ProtocolReset,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Close releases the libusb context.
func (t *Transport) Close() error {
	return t.usb.Close()
}

// Devices lists the boards that expose a reset interface.
func (t *Transport) Devices(ctx context.Context) ([]host.Info, error) {
	var infos []host.Info
	devs, err := t.usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if ctx.Err() != nil {
			return false
		}
		_, ok := findResetInterface(desc, t.subClass, t.protocol)
		return ok
	})
	for _, dev := range devs {
		iface, _ := findResetInterface(dev.Desc, t.subClass, t.protocol)
		infos = append(infos, describe(dev, iface))
		dev.Close()
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	// Boards without permission are skipped rather than failing the scan.
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		return infos, fmt.Errorf("enumerate devices: %w", err)
	}
	return infos, nil
}

// Open connects to the board at info's bus and address.
func (t *Transport) Open(ctx context.Context, info host.Info) (host.Conn, error) {
	devs, err := t.usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Bus == info.Bus && desc.Address == info.Address
	})
	if len(devs) == 0 {
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", info.ID, mapError(err))
		}
		return nil, fmt.Errorf("open %s: %w", info.ID, pkg.ErrNoDevice)
	}
	for _, extra := range devs[1:] {
		extra.Close()
	}

	dev := devs[0]
	dev.ControlTimeout = t.timeout
	pkg.LogDebug(pkg.ComponentHost, "opened board",
		"id", info.ID,
		"vid", fmt.Sprintf("%04x", uint16(dev.Desc.Vendor)),
		"pid", fmt.Sprintf("%04x", uint16(dev.Desc.Product)))
	return &conn{dev: dev}, nil
}

// conn is an open board.
type conn struct {
	dev *gousb.Device
}

// ControlOut implements host.Requester.
func (c *conn) ControlOut(ctx context.Context, setup *device.SetupPacket, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.dev.Control(setup.RequestType, setup.Request, setup.Value, setup.Index, data)
	return mapError(err)
}

// Close releases the device handle.
func (c *conn) Close() error {
	return c.dev.Close()
}

// findResetInterface returns the number of the first interface with an
// alternate setting advertising the reset class triple.
func findResetInterface(desc *gousb.DeviceDesc, subClass, protocol uint8) (device.InterfaceNumber, bool) {
	for _, cfg := range desc.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				if alt.Class == gousb.ClassVendorSpec &&
					uint8(alt.SubClass) == subClass &&
					uint8(alt.Protocol) == protocol {
					return device.InterfaceNumber(iface.Number), true
				}
			}
		}
	}
	return 0, false
}

// describe reads the identity of an open board. String descriptors that
// cannot be read are left empty.
func describe(dev *gousb.Device, iface device.InterfaceNumber) host.Info {
	info := host.Info{
		ID:        fmt.Sprintf("%d.%d", dev.Desc.Bus, dev.Desc.Address),
		Bus:       dev.Desc.Bus,
		Address:   dev.Desc.Address,
		VendorID:  uint16(dev.Desc.Vendor),
		ProductID: uint16(dev.Desc.Product),
		Interface: iface,
	}
	info.Manufacturer, _ = dev.Manufacturer()
	info.Product, _ = dev.Product()
	info.SerialNumber, _ = dev.SerialNumber()
	return info
}

// mapError converts libusb errors into the module's sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var usbErr gousb.Error
	if !errors.As(err, &usbErr) {
		return err
	}
	switch usbErr {
	case gousb.ErrorPipe:
		return fmt.Errorf("%w: %w", pkg.ErrStall, err)
	case gousb.ErrorTimeout:
		return fmt.Errorf("%w: %w", pkg.ErrTimeout, err)
	case gousb.ErrorNoDevice, gousb.ErrorNotFound:
		return fmt.Errorf("%w: %w", pkg.ErrNoDevice, err)
	case gousb.ErrorInterrupted:
		return fmt.Errorf("%w: %w", pkg.ErrCancelled, err)
	default:
		return err
	}
}

var _ host.Transport = (*Transport)(nil)
