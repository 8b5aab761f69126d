package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ardnew/picoreset/board"
	"github.com/ardnew/picoreset/device"
	"github.com/ardnew/picoreset/device/class/picoreset"
	"github.com/ardnew/picoreset/device/hal/fifo"
	"github.com/ardnew/picoreset/internal/config"
	"github.com/ardnew/picoreset/pkg"
	"github.com/ardnew/picoreset/rom"
)

// loadConfig merges the config file, environment and command-line flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	cfg, err := config.Load(cfgFile,
		config.WithFlag("fifo.bus_dir", flags.Lookup("bus")),
		config.WithFlag("reset.bootsel", flags.Lookup("bootsel")),
		config.WithFlag("reset.activity_led", flags.Lookup("led")),
		config.WithFlag("reset.disable_interface", flags.Lookup("disable")),
		config.WithFlag("reset.strict_length", flags.Lookup("strict")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if jsonLog {
		cfg.Log.Format = "json"
	}
	if err := cfg.ApplyLogging(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildDevice assembles the board's device with the reset interface.
func buildDevice(cfg *config.Config, reset rom.ResetFunc) (*device.Device, *picoreset.State, error) {
	resetCfg, err := cfg.ResetConfig()
	if err != nil {
		return nil, nil, err
	}

	b := device.NewBuilder(cfg.DeviceConfig())
	state := picoreset.NewState(reset)
	picoreset.Configure(b, state, resetCfg)

	dev, err := b.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build device: %w", err)
	}
	return dev, state, nil
}

// detachingReset detaches from the bus before handing over to reset, so
// the host sees the board disappear the way real hardware does.
func detachingReset(h *fifo.HAL, reset rom.ResetFunc) rom.ResetFunc {
	return func(gpioActivityMask, disableInterfaceMask uint32) {
		if err := h.Stop(); err != nil {
			pkg.LogWarn(pkg.ComponentBoard, "error detaching from bus",
				"error", err)
		}
		reset(gpioActivityMask, disableInterfaceMask)
	}
}

// signalButton reports a BOOTSEL press for each signal received on sig.
func signalButton(ctx context.Context, sig <-chan os.Signal) func() bool {
	var pressed atomic.Bool
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sig:
				pressed.Store(true)
			}
		}
	}()
	return func() bool {
		return pressed.Swap(false)
	}
}

func runSim(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := fifo.New(cfg.FIFO.BusDir)
	reset := detachingReset(h, rom.ResetToUSBBoot)

	dev, state, err := buildDevice(cfg, reset)
	if err != nil {
		return err
	}

	stack := device.NewStack(dev, h)
	if err := stack.Start(ctx); err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	defer stack.Stop()

	pkg.LogInfo(pkg.ComponentBoard, "board attached",
		"dir", h.DeviceDir(),
		"vid", fmt.Sprintf("%04x", cfg.Device.VendorID),
		"pid", fmt.Sprintf("%04x", cfg.Device.ProductID),
		"interface", state.Control().Interface())

	if cfg.Reset.Bootsel {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGUSR1)
		defer signal.Stop(sig)

		go board.WatchBootsel(ctx, signalButton(ctx, sig), reset)
		pkg.LogInfo(pkg.ComponentBoard, "send SIGUSR1 to press BOOTSEL",
			"pid", os.Getpid())
	}

	<-ctx.Done()
	pkg.LogInfo(pkg.ComponentBoard, "shutting down")
	return nil
}
