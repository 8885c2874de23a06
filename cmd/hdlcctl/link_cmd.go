package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/arloliu/go-hdlc/link"
	"github.com/arloliu/go-hdlc/serial"
)

// openTransport opens the byte stream a link runs over. Tests replace it.
var openTransport = func(cfg config) (io.ReadWriteCloser, error) {
	if cfg.Port == "" {
		return nil, errors.New("no serial port given, use --port or the config file")
	}

	return serial.Open(cfg.Port, cfg.serialOptions()...)
}

// openLink opens the transport and starts a link over it.
func (a *app) openLink(ctx context.Context) (*link.Link, error) {
	lc, err := a.cfg.linkConfig(a.logger)
	if err != nil {
		return nil, err
	}

	rw, err := openTransport(a.cfg)
	if err != nil {
		return nil, err
	}

	l, err := link.NewLink(ctx, rw, lc)
	if err != nil {
		_ = rw.Close()
		return nil, err
	}
	if err := l.Open(); err != nil {
		return nil, err
	}

	return l, nil
}

func (a *app) newSendCmd() *cobra.Command {
	var (
		hexIn    bool
		filePath string
	)

	cmd := &cobra.Command{
		Use:   "send [payload]",
		Short: "Send frames over a serial port",
		Long: `Send the payload given as argument as one frame, or send a file split
into MTU sized frames with --file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var (
				payload []byte
				err     error
			)
			switch {
			case filePath != "":
				payload, err = os.ReadFile(filePath)
				if err != nil {
					return fmt.Errorf("failed to read file: %w", err)
				}
			case len(args) == 1:
				payload, err = readInput(cmd, args, hexIn)
				if err != nil {
					return err
				}
			default:
				return errors.New("nothing to send, give a payload or --file")
			}

			l, err := a.openLink(ctx)
			if err != nil {
				return err
			}
			defer l.Close()

			return a.sendAll(ctx, cmd.ErrOrStderr(), l, payload, filePath != "")
		},
	}
	cmd.Flags().BoolVar(&hexIn, "hex-in", false, "Payload argument is hex text")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Send this file in MTU sized frames")

	return cmd
}

// sendAll sends payload in MTU sized frames, with a progress bar when
// showProgress is set.
func (a *app) sendAll(ctx context.Context, progressOut io.Writer, l *link.Link, payload []byte, showProgress bool) error {
	pieces := splitPayload(payload, a.cfg.MTU)

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(len(payload),
			progressbar.OptionSetWriter(progressOut),
			progressbar.OptionSetDescription("Sending"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	start := time.Now()
	for i, piece := range pieces {
		if err := l.Send(ctx, piece); err != nil {
			return fmt.Errorf("frame %d of %d: %w", i+1, len(pieces), err)
		}
		if bar != nil {
			_ = bar.Add(len(piece))
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	a.logger.Info("sent", "frames", len(pieces), "bytes", len(payload), "elapsed", time.Since(start).String())

	return nil
}

func (a *app) newListenCmd() *cobra.Command {
	var (
		count   int
		raw     bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print frames received on a serial port",
		Long: `Print every payload received on the serial port as hex, one per line,
until interrupted, --count frames were received, or --timeout passed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			l, err := a.openLink(ctx)
			if err != nil {
				return err
			}
			defer l.Close()

			return a.listen(ctx, cmd.OutOrStdout(), l, count, raw)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Stop after this many frames (0 = unlimited)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Write payloads as raw bytes")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Stop after this long (0 = no limit)")

	return cmd
}

func (a *app) listen(ctx context.Context, out io.Writer, l *link.Link, count int, raw bool) error {
	received := 0
	for count == 0 || received < count {
		payload, err := l.Recv(ctx)
		if err != nil {
			// interrupt, timeout or link shutdown all end a listen normally
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, link.ErrLinkClosed) {
				break
			}

			return err
		}

		received++
		if raw {
			_, _ = out.Write(payload)
		} else {
			fmt.Fprintln(out, hex.EncodeToString(payload))
		}
	}

	cm := l.CodecMetrics()
	a.logger.Info("listen finished",
		"frames", received,
		"crcErrors", cm.CRCErrCount.Load(),
		"oversize", cm.OversizeCount.Load(),
		"dropped", l.Metrics().RecvDropCount.Load())

	return nil
}

// listPorts is replaced in tests.
var listPorts = serial.List

func (a *app) newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List available serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := listPorts()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(ports) == 0 {
				fmt.Fprintln(out, "No serial ports found")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PORT\tUSB\tVID:PID\tSERIAL\tPRODUCT")
			for _, p := range ports {
				usb, ids := "no", "-"
				if p.IsUSB {
					usb, ids = "yes", p.VID+":"+p.PID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Name, usb, ids, dash(p.SerialNumber), dash(p.Product))
			}

			return tw.Flush()
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
