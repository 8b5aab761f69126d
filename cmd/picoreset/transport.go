package main

import (
	"fmt"

	"github.com/ardnew/picoreset/host"
	"github.com/ardnew/picoreset/host/fifo"
	"github.com/ardnew/picoreset/host/libusb"
	"github.com/ardnew/picoreset/internal/config"
	"github.com/ardnew/picoreset/pkg"
)

// openTransport creates the board transport selected by the configuration.
func openTransport(c *config.Config) (host.Transport, error) {
	sub, proto := c.Reset.SubClass, c.Reset.Protocol
	switch c.Host.Transport {
	case config.TransportLibUSB:
		return libusb.New(
			libusb.WithClass(sub, proto),
			libusb.WithTimeout(c.Host.Timeout),
		), nil
	case config.TransportFIFO:
		return fifo.New(c.FIFO.BusDir,
			fifo.WithClass(sub, proto),
			fifo.WithTimeout(c.Host.Timeout),
		), nil
	default:
		return nil, fmt.Errorf("%w: transport %q", pkg.ErrInvalidParameter, c.Host.Transport)
	}
}
