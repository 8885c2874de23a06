// Command hdlcctl encodes, decodes and exchanges HDLC frames.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-hdlc/crc"
	"github.com/arloliu/go-hdlc/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// app carries the settings shared by all subcommands.
type app struct {
	configPath string
	cfg        config
	logger     logger.Logger

	// flag values, applied over cfg only when set on the command line
	port     string
	baud     int
	mtu      int
	crcName  string
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "hdlcctl",
		Short: "Encode, decode and exchange HDLC frames",
		Long: `hdlcctl frames payloads as FLAG | stuffed(payload + crc) | FLAG.

encode and decode work on stdin and stdout. send and listen exchange
frames with a device over a serial port.

Settings are read from a TOML file given with --config; flags override it.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "TOML configuration file")
	pf.StringVarP(&a.port, "port", "p", "", "Serial port")
	pf.IntVarP(&a.baud, "baud", "b", 0, "Baud rate")
	pf.IntVar(&a.mtu, "mtu", 0, "Maximum payload size per frame")
	pf.StringVar(&a.crcName, "crc", "", "Checksum: off, crc8, crc16 or crc32")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "hdlcctl %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}

	rootCmd.AddCommand(
		a.newEncodeCmd(),
		a.newDecodeCmd(),
		a.newSendCmd(),
		a.newListenCmd(),
		a.newPortsCmd(),
		versionCmd,
	)

	return rootCmd
}

// setup loads the configuration file, applies explicit flags and creates
// the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = a.port
	}
	if flags.Changed("baud") {
		cfg.Baud = a.baud
	}
	if flags.Changed("mtu") {
		cfg.MTU = a.mtu
	}
	if flags.Changed("crc") {
		mode, err := crc.ParseMode(a.crcName)
		if err != nil {
			return err
		}
		cfg.CRC = mode
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = strings.ToLower(a.logLevel)
	}

	if cfg.MTU < 1 {
		return fmt.Errorf("mtu must be positive, got %d", cfg.MTU)
	}
	if cfg.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}

	l, err := cfg.newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = l

	return nil
}
