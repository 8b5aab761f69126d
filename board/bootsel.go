// Package board holds board-level tasks that sit beside the USB device
// stack.
package board

import (
	"context"
	"time"

	"github.com/ardnew/picoreset/pkg"
	"github.com/ardnew/picoreset/rom"
)

// Default BOOTSEL watcher timing.
const (
	BootselPollInterval = 200 * time.Millisecond
	BootselSettleDelay  = 100 * time.Millisecond
)

// BootselWatcher reboots into the USB bootloader when the BOOTSEL button is
// pressed. Intended for debug builds.
type BootselWatcher struct {
	// Pressed samples the button.
	Pressed func() bool

	// Reset enters the bootloader; nil uses rom.ResetToUSBBoot.
	Reset rom.ResetFunc

	// Interval between samples and the delay between a press and the
	// reset. Zero selects the defaults.
	Interval time.Duration
	Delay    time.Duration
}

// Run polls the button until ctx is cancelled. On a press it does not
// return.
func (w *BootselWatcher) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = BootselPollInterval
	}
	delay := w.Delay
	if delay <= 0 {
		delay = BootselSettleDelay
	}
	reset := w.Reset
	if reset == nil {
		reset = rom.ResetToUSBBoot
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if w.Pressed() {
			pkg.LogInfo(pkg.ComponentBoard, "reboot into bootsel")
			// Let the log drain before the USB connection drops.
			time.Sleep(delay)
			reset(0, rom.DisableMassStorage)
			panic("board: reset to USB boot returned")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WatchBootsel runs a BootselWatcher with the default timing.
func WatchBootsel(ctx context.Context, pressed func() bool, reset rom.ResetFunc) error {
	w := BootselWatcher{Pressed: pressed, Reset: reset}
	return w.Run(ctx)
}
