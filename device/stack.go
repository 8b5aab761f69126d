package device

import (
	"context"
	"errors"
	"sync"

	"github.com/ardnew/picoreset/device/hal"
	"github.com/ardnew/picoreset/pkg"
)

// Stack runs the control endpoint of a Device on top of a HAL.
type Stack struct {
	device *Device
	hal    hal.DeviceHAL

	// State
	running bool
	mutex   sync.RWMutex
	done    chan struct{}

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// Reusable setup packet for zero-allocation reads
	setupBuf hal.SetupPacket

	// EP0 buffers for the OUT and IN data stages
	ep0ReadBuf  [MaxControlDataSize]byte
	ep0WriteBuf [MaxControlDataSize]byte
}

// NewStack creates a new device stack.
func NewStack(dev *Device, h hal.DeviceHAL) *Stack {
	return &Stack{
		device: dev,
		hal:    h,
	}
}

// Start initializes the HAL, attaches to the bus and starts serving control
// transfers in a background goroutine.
func (s *Stack) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return pkg.ErrAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mutex.Unlock()

	if err := s.hal.Init(s.ctx); err != nil {
		s.cancel()
		return err
	}
	if err := s.hal.Start(); err != nil {
		s.cancel()
		return err
	}

	s.mutex.Lock()
	s.running = true
	s.done = make(chan struct{})
	s.mutex.Unlock()

	s.device.setState(StatePowered)
	s.device.Reset()

	pkg.LogDebug(pkg.ComponentStack, "device stack started")

	go s.controlLoop(s.done)

	return nil
}

// Stop stops the control loop and detaches from the bus.
func (s *Stack) Stop() error {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mutex.Unlock()

	err := s.hal.Stop()
	<-done

	s.device.setState(StateAttached)
	pkg.LogDebug(pkg.ComponentStack, "device stack stopped")
	return err
}

// IsRunning returns true if the stack is running.
func (s *Stack) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// Device returns the underlying device.
func (s *Stack) Device() *Device {
	return s.device
}

// IsConnected returns true if the device is connected to a host.
func (s *Stack) IsConnected() bool {
	return s.hal.IsConnected()
}

// WaitConnect blocks until the device connects to a host or the context is cancelled.
func (s *Stack) WaitConnect(ctx context.Context) error {
	return s.hal.WaitConnect(ctx)
}

// controlLoop handles control transfers on EP0.
func (s *Stack) controlLoop(done chan struct{}) {
	defer close(done)

	for {
		if s.ctx.Err() != nil {
			return
		}

		if err := s.hal.ReadSetup(s.ctx, &s.setupBuf); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if errors.Is(err, pkg.ErrReset) {
				s.device.Reset()
				continue
			}
			if errors.Is(err, pkg.ErrCancelled) {
				return
			}
			pkg.LogWarn(pkg.ComponentStack, "error reading setup",
				"error", err)
			continue
		}

		setup := SetupPacket{
			RequestType: s.setupBuf.RequestType,
			Request:     s.setupBuf.Request,
			Value:       s.setupBuf.Value,
			Index:       s.setupBuf.Index,
			Length:      s.setupBuf.Length,
		}

		if err := s.handleSetup(&setup); err != nil {
			pkg.LogDebug(pkg.ComponentStack, "control transfer stalled",
				"error", err,
				"request", setup.String())
			if err := s.hal.StallEP0(); err != nil {
				pkg.LogWarn(pkg.ComponentStack, "error stalling EP0",
					"error", err)
			}
		}
	}
}

// handleSetup runs the data and status stages of one control transfer.
// A returned error stalls EP0.
func (s *Stack) handleSetup(setup *SetupPacket) error {
	pkg.LogDebug(pkg.ComponentStack, "setup received",
		"request", setup.String())

	var data []byte
	if setup.IsHostToDevice() && setup.Length > 0 {
		if int(setup.Length) > MaxControlDataSize {
			return pkg.ErrBufferTooSmall
		}
		n, err := s.hal.ReadEP0(s.ctx, s.ep0ReadBuf[:setup.Length])
		if err != nil {
			return err
		}
		data = s.ep0ReadBuf[:n]
	}

	n, err := s.device.HandleSetup(setup, data, s.ep0WriteBuf[:])
	if err != nil {
		return err
	}

	if setup.IsDeviceToHost() {
		return s.hal.WriteEP0(s.ctx, s.ep0WriteBuf[:n])
	}

	if err := s.hal.AckEP0(); err != nil {
		return err
	}

	// The new address takes effect after the status stage.
	if setup.IsStandard() && setup.Request == RequestSetAddress &&
		setup.Recipient() == RequestRecipientDevice {
		if err := s.hal.SetAddress(s.device.Address()); err != nil {
			pkg.LogWarn(pkg.ComponentStack, "error setting address",
				"error", err)
		}
	}
	return nil
}
