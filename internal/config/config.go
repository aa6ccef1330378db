// Package config loads and live-reloads the miner's JSON configuration
// (pools plus hardware configuration), grounded on main.go's
// cobra/viper/pflag/fsnotify wiring, generalized from gominer's flat
// device/baudrate/driver keys to the nested pools/hardwareConfiguration
// shape spec.md section 3 describes.
package config

import (
	"fmt"

	"github.com/AGPFMiner/argonminer/internal/hardware"
	"github.com/AGPFMiner/argonminer/internal/types"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// GPUConfig is the config-file shape of one GPU entry, decoded into
// hardware.GPUDevice.
type GPUConfig struct {
	Enabled        bool    `json:"enabled" mapstructure:"enabled"`
	Name           string  `json:"name" mapstructure:"name"`
	ID             uint16  `json:"id" mapstructure:"id"`
	Vendor         string  `json:"vendor" mapstructure:"vendor"`
	Intensity      float64 `json:"intensity" mapstructure:"intensity"`
	DesktopLag     float64 `json:"desktopLag" mapstructure:"desktopLag"`
}

// HardwareConfig is the config-file shape of the hardwareConfiguration
// key.
type HardwareConfig struct {
	CPU struct {
		Enabled             bool   `json:"enabled" mapstructure:"enabled"`
		ThreadCount         uint32 `json:"threadCount" mapstructure:"threadCount"`
		OptimizationMethod  string `json:"optimizationMethod" mapstructure:"optimizationMethod"`
	} `json:"cpu" mapstructure:"cpu"`

	GPUs []GPUConfig `json:"gpus" mapstructure:"gpus"`
}

// Config is the fully parsed, live-reloadable configuration.
type Config struct {
	Pools         []types.Pool
	DevFeePercent float64
	LogLevel      string
	StatusListen  string
	Hardware      HardwareConfig
}

var optimizationMethods = map[string]hardware.OptimizationMethod{
	"":       hardware.OptimizationAuto,
	"auto":   hardware.OptimizationAuto,
	"none":   hardware.OptimizationNone,
	"sse2":   hardware.OptimizationSSE2,
	"sse41":  hardware.OptimizationSSE41,
	"ssse3":  hardware.OptimizationSSSE3,
	"avx2":   hardware.OptimizationAVX2,
	"avx512": hardware.OptimizationAVX512,
	"neon":   hardware.OptimizationNEON,
}

// ToHardwareConfig translates the config-file shape into a running
// hardware.Config.
func (c HardwareConfig) ToHardwareConfig() *hardware.Config {
	hw := hardware.NewDefaultConfig()

	method, ok := optimizationMethods[c.CPU.OptimizationMethod]
	if !ok {
		method = hardware.OptimizationAuto
	}

	cpu := hardware.CPUConfig{
		Enabled:            c.CPU.Enabled,
		ThreadCount:        c.CPU.ThreadCount,
		OptimizationMethod: method,
	}

	gpus := make([]hardware.GPUDevice, 0, len(c.GPUs))
	for _, g := range c.GPUs {
		gpus = append(gpus, hardware.GPUDevice{
			Enabled:    g.Enabled,
			Name:       g.Name,
			ID:         g.ID,
			Vendor:     g.Vendor,
			Intensity:  g.Intensity,
			DesktopLag: g.DesktopLag,
		})
	}

	hw.CPU = cpu
	hw.GPUs = gpus

	return hw
}

const defaultConfigName = "config"

// RegisterFlags binds the config file path flag to cmd, the way
// main.go's init() binds "cfg" via pflag/viper.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("cfg", defaultConfigName+".json", "config file path")
	viper.BindPFlag("cfg", flags.Lookup("cfg"))
}

// Load reads configuration from the bound cfg flag (or its default
// search paths), applying sane defaults for any missing key.
func Load() (*Config, error) {
	viper.SetDefault("devFeePercent", 2.5)
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("statusListen", ":4545")

	cfgFile := viper.GetString("cfg")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(defaultConfigName)
		viper.SetConfigType("json")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/argonminer")
	}

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading config file: %w", err)
	}

	return decode()
}

func decode() (*Config, error) {
	var pools []types.Pool
	if err := viper.UnmarshalKey("pools", &pools); err != nil {
		return nil, fmt.Errorf("config: decoding pools: %w", err)
	}

	var hw HardwareConfig
	if err := viper.UnmarshalKey("hardwareConfiguration", &hw); err != nil {
		return nil, fmt.Errorf("config: decoding hardwareConfiguration: %w", err)
	}

	return &Config{
		Pools:         pools,
		DevFeePercent: viper.GetFloat64("devFeePercent"),
		LogLevel:      viper.GetString("logLevel"),
		StatusListen:  viper.GetString("statusListen"),
		Hardware:      hw,
	}, nil
}

// WatchConfig installs a file-change watcher invoking onChange with the
// freshly decoded configuration, the generalization of main.go's
// viper.OnConfigChange wiring.
func WatchConfig(onChange func(*Config)) {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode()
		if err != nil {
			return
		}
		onChange(cfg)
	})
}
