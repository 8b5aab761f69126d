package host

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ardnew/picoreset/device"
	"github.com/ardnew/picoreset/device/class/picoreset"
	"github.com/ardnew/picoreset/pkg"
)

// Requester performs an OUT control transfer. A STALL is reported as
// pkg.ErrStall.
type Requester interface {
	ControlOut(ctx context.Context, setup *device.SetupPacket, data []byte) error
}

// Conn is an open connection to a board.
type Conn interface {
	Requester
	Close() error
}

// Transport finds boards with a reset interface and opens them.
type Transport interface {
	// Devices lists the boards that expose a reset interface.
	Devices(ctx context.Context) ([]Info, error)

	// Open connects to a board returned by Devices.
	Open(ctx context.Context, info Info) (Conn, error)

	// Close releases the transport.
	Close() error
}

// Info describes a board with a reset interface.
type Info struct {
	// ID identifies the board on its transport: "bus.address" for libusb,
	// the device UUID on a FIFO bus.
	ID string

	Bus     int
	Address int

	VendorID     uint16
	ProductID    uint16
	Manufacturer string
	Product      string
	SerialNumber string

	// Interface is the number of the reset interface.
	Interface device.InterfaceNumber
}

// String returns a one-line description of the board.
func (i Info) String() string {
	return fmt.Sprintf("%s %04x:%04x %s %s [%s] interface %d",
		i.ID, i.VendorID, i.ProductID, i.Manufacturer, i.Product, i.SerialNumber, i.Interface)
}

// Reset asks the board to reboot into its bootloader. A STALL is reported
// as pkg.ErrRejected. Any other failure after the request was sent is
// taken as the board dropping off the bus while rebooting.
func Reset(ctx context.Context, r Requester, iface device.InterfaceNumber, req picoreset.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	var setup device.SetupPacket
	device.ClassInterfaceOutSetup(&setup, uint8(iface), picoreset.RequestBootsel, req.Value())

	pkg.LogDebug(pkg.ComponentHost, "sending reset request",
		"interface", iface,
		"request", req.String())

	err := r.ControlOut(ctx, &setup, nil)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pkg.ErrStall):
		return fmt.Errorf("%w: interface %d: %w", pkg.ErrRejected, iface, err)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		pkg.LogDebug(pkg.ComponentHost, "board left the bus during reset",
			"error", err)
		return nil
	}
}

// Selector picks boards out of a device list.
type Selector struct {
	VendorID  *uint16
	ProductID *uint16
	Serial    string
	ID        string
}

// ParseSelector parses a board selector:
//
//	""               any board
//	vid:pid          hexadecimal vendor and product IDs, either may be empty
//	serial=NUMBER    serial number
//	anything else    prefix of the transport ID (bus.address or UUID)
func ParseSelector(s string) (Selector, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Selector{}, nil
	case strings.HasPrefix(s, "serial="):
		return Selector{Serial: strings.TrimPrefix(s, "serial=")}, nil
	case strings.Contains(s, ":"):
		vid, pid, _ := strings.Cut(s, ":")
		var sel Selector
		var err error
		if sel.VendorID, err = parseHexID(vid); err != nil {
			return Selector{}, err
		}
		if sel.ProductID, err = parseHexID(pid); err != nil {
			return Selector{}, err
		}
		return sel, nil
	default:
		return Selector{ID: s}, nil
	}
}

func parseHexID(s string) (*uint16, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: USB ID %q", pkg.ErrInvalidParameter, s)
	}
	id := uint16(v)
	return &id, nil
}

// Match reports whether info satisfies the selector.
func (s Selector) Match(info Info) bool {
	if s.VendorID != nil && info.VendorID != *s.VendorID {
		return false
	}
	if s.ProductID != nil && info.ProductID != *s.ProductID {
		return false
	}
	if s.Serial != "" && info.SerialNumber != s.Serial {
		return false
	}
	if s.ID != "" && !strings.HasPrefix(info.ID, s.ID) {
		return false
	}
	return true
}

// Select returns the single board matching sel.
func Select(infos []Info, sel Selector) (Info, error) {
	var found []Info
	for _, info := range infos {
		if sel.Match(info) {
			found = append(found, info)
		}
	}
	switch len(found) {
	case 0:
		return Info{}, pkg.ErrNoDevice
	case 1:
		return found[0], nil
	default:
		return Info{}, fmt.Errorf("%w: %d boards", pkg.ErrAmbiguous, len(found))
	}
}

// FindResetInterface locates the reset interface in a configuration
// descriptor.
func FindResetInterface(config []byte, subClass, protocol uint8) (device.InterfaceNumber, error) {
	var desc device.InterfaceDescriptor
	ok, err := device.FindInterface(config, picoreset.ClassVendorSpecific, subClass, protocol, &desc)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, pkg.ErrNoInterface
	}
	return device.InterfaceNumber(desc.InterfaceNumber), nil
}
