// Package config loads the settings shared by the emulator and the host
// tool.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ardnew/picoreset/device"
	"github.com/ardnew/picoreset/device/class/picoreset"
	"github.com/ardnew/picoreset/pkg"
)

// EnvPrefix prefixes every environment variable, e.g. PICORESET_LOG_LEVEL.
const EnvPrefix = "PICORESET"

// Transport names for host.transport.
const (
	TransportLibUSB = "libusb"
	TransportFIFO   = "fifo"
)

// Config represents the application configuration
type Config struct {
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
	Device DeviceConfig `mapstructure:"device" yaml:"device"`
	Reset  ResetConfig  `mapstructure:"reset" yaml:"reset"`
	FIFO   FIFOConfig   `mapstructure:"fifo" yaml:"fifo"`
	Host   HostConfig   `mapstructure:"host" yaml:"host"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DeviceConfig is the USB identity of the emulated board.
type DeviceConfig struct {
	VendorID      uint16 `mapstructure:"vendor_id" yaml:"vendor_id"`
	ProductID     uint16 `mapstructure:"product_id" yaml:"product_id"`
	Manufacturer  string `mapstructure:"manufacturer" yaml:"manufacturer"`
	Product       string `mapstructure:"product" yaml:"product"`
	Serial        string `mapstructure:"serial" yaml:"serial"`
	MaxPowerMA    uint16 `mapstructure:"max_power_ma" yaml:"max_power_ma"`
	MaxPacketSize uint8  `mapstructure:"max_packet_size" yaml:"max_packet_size"`
}

// ResetConfig configures the reset interface.
type ResetConfig struct {
	// DisableInterface is "none", "mass-storage" or "picoboot".
	DisableInterface string `mapstructure:"disable_interface" yaml:"disable_interface"`

	// ActivityLED is the bootloader activity pin, negative for none.
	ActivityLED int `mapstructure:"activity_led" yaml:"activity_led"`

	SubClass     uint8 `mapstructure:"subclass" yaml:"subclass"`
	Protocol     uint8 `mapstructure:"protocol" yaml:"protocol"`
	StrictLength bool  `mapstructure:"strict_length" yaml:"strict_length"`

	// Bootsel enables the BOOTSEL button reboot watcher.
	Bootsel bool `mapstructure:"bootsel" yaml:"bootsel"`
}

// FIFOConfig locates the emulated bus.
type FIFOConfig struct {
	BusDir string `mapstructure:"bus_dir" yaml:"bus_dir"`
}

// HostConfig configures the host tool.
type HostConfig struct {
	Transport string        `mapstructure:"transport" yaml:"transport"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	dev := device.DefaultDeviceConfig()
	reset := picoreset.DefaultConfig()
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Device: DeviceConfig{
			VendorID:      dev.VendorID,
			ProductID:     dev.ProductID,
			Manufacturer:  dev.Manufacturer,
			Product:       dev.Product,
			Serial:        dev.SerialNumber,
			MaxPowerMA:    dev.MaxPowerMA,
			MaxPacketSize: dev.MaxPacketSize0,
		},
		Reset: ResetConfig{
			DisableInterface: reset.DisableInterface.String(),
			ActivityLED:      -1,
			SubClass:         reset.SubClass,
			Protocol:         reset.Protocol,
		},
		FIFO: FIFOConfig{
			BusDir: filepath.Join(os.TempDir(), "usb-bus"),
		},
		Host: HostConfig{
			Transport: TransportLibUSB,
			Timeout:   5 * time.Second,
		},
	}
}

// Option customizes Load.
type Option func(*viper.Viper) error

// WithFlag binds a command-line flag to a configuration key. A flag the
// user did not set leaves the key to the file, environment or default.
func WithFlag(key string, flag *pflag.Flag) Option {
	return func(v *viper.Viper) error {
		if flag == nil {
			return fmt.Errorf("%w: no flag for %s", pkg.ErrInvalidParameter, key)
		}
		return v.BindPFlag(key, flag)
	}
}

// Load loads configuration from file and returns merged config
// Priority: flags > environment variables > config file > defaults
func Load(configPath string, opts ...Option) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(".picoreset")
		v.SetConfigType("yaml")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(homeDir)
		}
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/picoreset/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.FIFO.BusDir = expandPath(cfg.FIFO.BusDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so that environment variables reach
// Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("device.vendor_id", d.Device.VendorID)
	v.SetDefault("device.product_id", d.Device.ProductID)
	v.SetDefault("device.manufacturer", d.Device.Manufacturer)
	v.SetDefault("device.product", d.Device.Product)
	v.SetDefault("device.serial", d.Device.Serial)
	v.SetDefault("device.max_power_ma", d.Device.MaxPowerMA)
	v.SetDefault("device.max_packet_size", d.Device.MaxPacketSize)
	v.SetDefault("reset.disable_interface", d.Reset.DisableInterface)
	v.SetDefault("reset.activity_led", d.Reset.ActivityLED)
	v.SetDefault("reset.subclass", d.Reset.SubClass)
	v.SetDefault("reset.protocol", d.Reset.Protocol)
	v.SetDefault("reset.strict_length", d.Reset.StrictLength)
	v.SetDefault("reset.bootsel", d.Reset.Bootsel)
	v.SetDefault("fifo.bus_dir", d.FIFO.BusDir)
	v.SetDefault("host.transport", d.Host.Transport)
	v.SetDefault("host.timeout", d.Host.Timeout)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, path[1:])
		}
	}
	return path
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := pkg.ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := pkg.ParseLogFormat(c.Log.Format); err != nil {
		return err
	}
	dev := c.DeviceConfig()
	if err := dev.Validate(); err != nil {
		return err
	}
	reset, err := c.ResetConfig()
	if err != nil {
		return err
	}
	if err := reset.Validate(); err != nil {
		return err
	}
	switch c.Host.Transport {
	case TransportLibUSB, TransportFIFO:
	default:
		return fmt.Errorf("%w: host transport %q (must be %s or %s)",
			pkg.ErrInvalidParameter, c.Host.Transport, TransportLibUSB, TransportFIFO)
	}
	if c.Host.Timeout <= 0 {
		return fmt.Errorf("%w: host timeout %v", pkg.ErrInvalidParameter, c.Host.Timeout)
	}
	return nil
}

// DeviceConfig converts the device section for device.NewBuilder.
func (c *Config) DeviceConfig() device.DeviceConfig {
	dev := device.DefaultDeviceConfig()
	dev.VendorID = c.Device.VendorID
	dev.ProductID = c.Device.ProductID
	dev.Manufacturer = c.Device.Manufacturer
	dev.Product = c.Device.Product
	dev.SerialNumber = c.Device.Serial
	dev.MaxPowerMA = c.Device.MaxPowerMA
	dev.MaxPacketSize0 = c.Device.MaxPacketSize
	return dev
}

// ResetConfig converts the reset section for picoreset.Configure.
func (c *Config) ResetConfig() (picoreset.Config, error) {
	disable, err := picoreset.ParseDisableInterface(c.Reset.DisableInterface)
	if err != nil {
		return picoreset.Config{}, err
	}
	cfg := picoreset.Config{
		DisableInterface: disable,
		SubClass:         c.Reset.SubClass,
		Protocol:         c.Reset.Protocol,
		StrictLength:     c.Reset.StrictLength,
	}
	if c.Reset.ActivityLED >= 0 {
		if c.Reset.ActivityLED > 0xFF {
			return picoreset.Config{}, fmt.Errorf("%w: activity pin %d",
				pkg.ErrInvalidParameter, c.Reset.ActivityLED)
		}
		cfg.ActivityLED = picoreset.LED(uint8(c.Reset.ActivityLED))
	}
	return cfg, nil
}

// ApplyLogging configures the shared logger from the log section.
func (c *Config) ApplyLogging() error {
	level, err := pkg.ParseLogLevel(c.Log.Level)
	if err != nil {
		return err
	}
	format, err := pkg.ParseLogFormat(c.Log.Format)
	if err != nil {
		return err
	}
	pkg.SetLogLevel(level)
	pkg.SetLogFormat(format)
	return nil
}
