// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ffutop/modbus-node/internal/registers/mirror"
	"github.com/ffutop/modbus-node/internal/slave"
	"github.com/ffutop/modbus-node/modbus"
	"github.com/grid-x/serial"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Line types
const (
	LineSerial     = "serial"
	LineRtuOverTcp = "rtu-over-tcp"
)

// Config defines the global configuration structure
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Trace     TraceConfig     `mapstructure:"trace"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Nodes     []NodeConfig    `mapstructure:"nodes"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// SchedulerConfig defines the cooperative loop
type SchedulerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// TraceConfig defines the frame trace file. Empty File disables tracing.
type TraceConfig struct {
	File string `mapstructure:"file"`
}

// MetricsConfig defines the prometheus endpoint. Empty Listen disables it.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// NodeConfig defines a single slave instance
type NodeConfig struct {
	Name       string        `mapstructure:"name"`
	Address    int           `mapstructure:"address"`
	Line       LineConfig    `mapstructure:"line"`
	BufferSize int           `mapstructure:"buffer_size"` // Receive/transmit ring depth
	Layout     string        `mapstructure:"layout"`      // Register layout file, empty for the default layout
	Storage    StorageConfig `mapstructure:"storage"`
	App        AppConfig     `mapstructure:"app"`
}

// LineConfig defines where the node listens for its master
type LineConfig struct {
	Type   string       `mapstructure:"type"`   // "serial", "rtu-over-tcp"
	Serial SerialConfig `mapstructure:"serial"` // Used if Type is "serial"
	Tcp    TcpConfig    `mapstructure:"tcp"`    // Used if Type is "rtu-over-tcp"
}

// StorageConfig defines where register values live
type StorageConfig struct {
	Type string `mapstructure:"type"` // "memory", "mmap"
	Path string `mapstructure:"path"` // File path for "mmap" type
}

// AppConfig defines the comms manager of a node
type AppConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ButtonFile string `mapstructure:"button_file"`
	LEDFile    string `mapstructure:"led_file"`
	ClockHz    uint32 `mapstructure:"clock_hz"`
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address string `mapstructure:"address"` // e.g. "0.0.0.0:5020"
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"`
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// Port returns the serial port configuration.
func (s SerialConfig) Port() serial.Config {
	return serial.Config{
		Address:  s.Device,
		BaudRate: s.BaudRate,
		DataBits: s.DataBits,
		StopBits: s.StopBits,
		Parity:   s.Parity,
		Timeout:  s.Timeout,
		RS485: serial.RS485Config{
			Enabled:            s.RS485,
			DelayRtsBeforeSend: s.DelayRtsBeforeSend,
			DelayRtsAfterSend:  s.DelayRtsAfterSend,
			RtsHighDuringSend:  s.RtsHighDuringSend,
			RtsHighAfterSend:   s.RtsHighAfterSend,
			RxDuringTx:         s.RxDuringTx,
		},
	}
}

// Defaults
const (
	DefaultBaudRate   = 19200
	DefaultBufferSize = 256
	DefaultClockHz    = 4000000
)

// Flags returns the command line flags LoadConfig understands.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("modbus-node", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "Configuration file path.")
	fs.StringP("log.level", "v", "info", "Log verbosity level (debug, info, warn, error).")
	fs.StringP("log.file", "L", "", "Log file name ('-' for logging to STDOUT only).")
	fs.Duration("scheduler.poll_interval", 100*time.Microsecond, "Pause between two scheduler cycles.")
	fs.String("trace.file", "", "Append frame trace events to this file.")
	fs.String("metrics.listen", "", "Serve prometheus metrics on this address.")
	return fs
}

// LoadConfig loads configuration from file. Flags in fs that were set on the
// command line override the file; fs may be nil.
func LoadConfig(configFile string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbus-node/")
		v.AddConfigPath("$HOME/.modbus-node")
		v.AddConfigPath(".")
	}

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("scheduler.poll_interval", 100*time.Microsecond)

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind pflags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		return nil, fmt.Errorf("failed to found config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for i := range config.Nodes {
		fixupNode(&config.Nodes[i])
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func fixupNode(n *NodeConfig) {
	if n.Line.Type == "" {
		n.Line.Type = LineSerial
	}
	if n.BufferSize == 0 {
		n.BufferSize = DefaultBufferSize
	}
	if n.Storage.Type == "" {
		n.Storage.Type = mirror.TypeMemory
	}
	if n.App.ClockHz == 0 {
		n.App.ClockHz = DefaultClockHz
	}

	s := &n.Line.Serial
	s.Parity = strings.ToUpper(s.Parity)
	if s.Parity == "" {
		s.Parity = "E"
	}
	if s.BaudRate == 0 {
		s.BaudRate = DefaultBaudRate
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
}

// Validate checks the node list.
func Validate(cfg *Config) error {
	if len(cfg.Nodes) == 0 {
		return errors.New("config: no nodes configured")
	}
	if len(cfg.Nodes) > slave.MaxInstances {
		return fmt.Errorf("config: %d nodes configured, at most %d supported", len(cfg.Nodes), slave.MaxInstances)
	}

	seen := make(map[int]string)
	for i, n := range cfg.Nodes {
		name := n.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		if n.Address < 1 || n.Address > int(modbus.MaxSlaveAddress) {
			return fmt.Errorf("config: node %s: address %d out of range 1..%d", name, n.Address, modbus.MaxSlaveAddress)
		}
		if other, ok := seen[n.Address]; ok {
			return fmt.Errorf("config: node %s: address %d already used by node %s", name, n.Address, other)
		}
		seen[n.Address] = name

		switch n.Line.Type {
		case LineSerial:
			if n.Line.Serial.Device == "" {
				return fmt.Errorf("config: node %s: serial line requires a device", name)
			}
			switch n.Line.Serial.Parity {
			case "N", "E", "O":
			default:
				return fmt.Errorf("config: node %s: unknown parity %q", name, n.Line.Serial.Parity)
			}
		case LineRtuOverTcp:
			if n.Line.Tcp.Address == "" {
				return fmt.Errorf("config: node %s: rtu-over-tcp line requires an address", name)
			}
		default:
			return fmt.Errorf("config: node %s: unknown line type %q", name, n.Line.Type)
		}

		switch n.Storage.Type {
		case mirror.TypeMemory:
		case mirror.TypeMmap:
			if n.Storage.Path == "" {
				return fmt.Errorf("config: node %s: mmap storage requires a path", name)
			}
		default:
			return fmt.Errorf("config: node %s: unknown storage type %q", name, n.Storage.Type)
		}
	}
	return nil
}
