package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/arloliu/go-hdlc/crc"
	"github.com/arloliu/go-hdlc/link"
	"github.com/arloliu/go-hdlc/logger"
	"github.com/arloliu/go-hdlc/serial"
)

// config is the effective hdlcctl configuration: defaults, then the TOML
// file, then command line flags.
type config struct {
	Port        string
	Baud        int
	DataBits    int
	Parity      string
	StopBits    string
	ReadTimeout time.Duration

	MTU         int
	CRC         crc.Mode
	RecvSlots   int
	ChunkSize   int
	SendTimeout time.Duration

	LogLevel  string
	LogFormat string
}

func defaultConfig() config {
	return config{
		Baud:        serial.DefaultBaudRate,
		DataBits:    serial.DefaultDataBits,
		Parity:      "none",
		StopBits:    "1",
		ReadTimeout: serial.DefaultReadTimeout,
		MTU:         link.DefaultMTU,
		CRC:         link.DefaultCRC,
		RecvSlots:   link.DefaultRecvSlots,
		ChunkSize:   link.DefaultChunkSize,
		SendTimeout: link.DefaultSendTimeout,
		LogLevel:    "info",
		LogFormat:   "console",
	}
}

type fileConfig struct {
	Port        string   `toml:"port"`
	Baud        int      `toml:"baud"`
	DataBits    int      `toml:"data_bits"`
	Parity      string   `toml:"parity"`
	StopBits    string   `toml:"stop_bits"`
	ReadTimeout string   `toml:"read_timeout"`
	MTU         int      `toml:"mtu"`
	CRC         crc.Mode `toml:"crc"`
	RecvSlots   int      `toml:"recv_slots"`
	ChunkSize   int      `toml:"chunk_size"`
	SendTimeout string   `toml:"send_timeout"`
	LogLevel    string   `toml:"log_level"`
	LogFormat   string   `toml:"log_format"`
}

// loadConfig returns the defaults overlaid with the keys present in the
// TOML file at path. An empty path returns the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud") {
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("data_bits") {
		cfg.DataBits = raw.DataBits
	}
	if meta.IsDefined("parity") {
		cfg.Parity = strings.TrimSpace(raw.Parity)
	}
	if meta.IsDefined("stop_bits") {
		cfg.StopBits = strings.TrimSpace(raw.StopBits)
	}
	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return config{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}
	if meta.IsDefined("mtu") {
		cfg.MTU = raw.MTU
	}
	if meta.IsDefined("crc") {
		cfg.CRC = raw.CRC
	}
	if meta.IsDefined("recv_slots") {
		cfg.RecvSlots = raw.RecvSlots
	}
	if meta.IsDefined("chunk_size") {
		cfg.ChunkSize = raw.ChunkSize
	}
	if meta.IsDefined("send_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.SendTimeout))
		if err != nil {
			return config{}, fmt.Errorf("parse send_timeout: %w", err)
		}
		cfg.SendTimeout = d
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.LogLevel))
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(raw.LogFormat))
	}

	return cfg, nil
}

func (cfg config) serialOptions() []serial.Option {
	return []serial.Option{
		serial.WithBaudRate(cfg.Baud),
		serial.WithDataBits(cfg.DataBits),
		serial.WithParity(cfg.Parity),
		serial.WithStopBits(cfg.StopBits),
		serial.WithReadTimeout(cfg.ReadTimeout),
	}
}

func (cfg config) linkConfig(l logger.Logger) (*link.Config, error) {
	return link.NewConfig(
		link.WithMTU(cfg.MTU),
		link.WithCRC(cfg.CRC),
		link.WithRecvSlots(cfg.RecvSlots),
		link.WithChunkSize(cfg.ChunkSize),
		link.WithSendTimeout(cfg.SendTimeout),
		link.WithLogger(l),
	)
}

// newLogger builds the zerolog logger selected by LogLevel and LogFormat
// ("console" or "json").
func (cfg config) newLogger(w io.Writer) (logger.Logger, error) {
	level, ok := logger.ParseLevel(cfg.LogLevel)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}

	switch cfg.LogFormat {
	case "console", "":
		return logger.NewZerolog(w, level, true), nil
	case "json":
		return logger.NewZerolog(w, level, false), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
}
