package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-hdlc/hdlc"
)

func (a *app) newEncodeCmd() *cobra.Command {
	var hexIn, hexOut bool

	cmd := &cobra.Command{
		Use:   "encode [payload]",
		Short: "Frame a payload",
		Long: `Frame the payload given as argument, or stdin when no argument is given.

Input longer than the MTU is split into MTU sized frames.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readInput(cmd, args, hexIn)
			if err != nil {
				return err
			}

			wire, frames, err := a.encode(payload)
			if err != nil {
				return err
			}
			a.logger.Debug("encoded", "frames", frames, "payloadBytes", len(payload), "wireBytes", len(wire))

			return writeOutput(cmd.OutOrStdout(), wire, hexOut)
		},
	}
	cmd.Flags().BoolVar(&hexIn, "hex-in", false, "Input is hex text")
	cmd.Flags().BoolVarP(&hexOut, "hex", "x", false, "Write hex text instead of raw bytes")

	return cmd
}

func (a *app) newDecodeCmd() *cobra.Command {
	var hexIn, raw bool

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Extract payloads from framed bytes on stdin",
		Long: `Decode framed bytes from stdin and print one payload per line in hex.

Malformed frames are reported on stderr and skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wire, err := readInput(cmd, nil, hexIn)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			frames, errs, err := a.decode(wire, func(payload []byte) {
				if raw {
					_, _ = out.Write(payload)
					return
				}
				fmt.Fprintln(out, hex.EncodeToString(payload))
			})
			if err != nil {
				return err
			}
			a.logger.Info("decoded", "frames", frames, "errors", errs, "wireBytes", len(wire))

			return nil
		},
	}
	cmd.Flags().BoolVar(&hexIn, "hex-in", false, "Input is hex text")
	cmd.Flags().BoolVar(&raw, "raw", false, "Write payloads as raw bytes")

	return cmd
}

// encode frames payload, one frame per MTU sized piece.
func (a *app) encode(payload []byte) ([]byte, int, error) {
	tx, err := hdlc.NewTransmitter(hdlc.WithCRC(a.cfg.CRC), hdlc.WithLogger(a.logger))
	if err != nil {
		return nil, 0, err
	}

	var wire bytes.Buffer
	out := make([]byte, a.cfg.ChunkSize)
	pieces := splitPayload(payload, a.cfg.MTU)
	for _, piece := range pieces {
		if err := tx.Put(piece); err != nil {
			return nil, 0, err
		}
		for {
			n := tx.Run(out)
			if n == 0 {
				break
			}
			wire.Write(out[:n])
		}
	}

	return wire.Bytes(), len(pieces), nil
}

// decode feeds wire to a receiver in chunks and calls onFrame for every
// valid frame. It returns the number of frames and frame errors.
func (a *app) decode(wire []byte, onFrame func([]byte)) (frames, errs int, err error) {
	rx, err := hdlc.NewReceiver(make([]byte, hdlc.BufferSize(a.cfg.MTU, a.cfg.CRC, 1)),
		hdlc.WithMTU(a.cfg.MTU),
		hdlc.WithCRC(a.cfg.CRC),
		hdlc.WithLogger(a.logger),
		hdlc.WithFrameSink(hdlc.FrameSinkFunc(func(payload []byte) {
			frames++
			onFrame(payload)
		})),
	)
	if err != nil {
		return 0, 0, err
	}

	for len(wire) > 0 {
		chunk := wire[:min(len(wire), a.cfg.ChunkSize)]
		n, err := rx.Run(chunk)
		wire = wire[n:]
		if err != nil {
			errs++
			a.logger.Warn("frame skipped", "error", err)
		}
	}

	return frames, errs, nil
}

// splitPayload cuts p into pieces of at most size bytes.
func splitPayload(p []byte, size int) [][]byte {
	if len(p) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]byte{p}
	}

	pieces := make([][]byte, 0, (len(p)+size-1)/size)
	for len(p) > 0 {
		n := min(len(p), size)
		pieces = append(pieces, p[:n])
		p = p[n:]
	}

	return pieces
}

func readInput(cmd *cobra.Command, args []string, hexIn bool) ([]byte, error) {
	var data []byte
	if len(args) > 0 {
		data = []byte(args[0])
	} else {
		var err error
		data, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
	}

	if !hexIn {
		return data, nil
	}

	text := strings.Join(strings.Fields(string(data)), "")
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("decode hex input: %w", err)
	}

	return decoded, nil
}

func writeOutput(w io.Writer, data []byte, hexOut bool) error {
	if hexOut {
		_, err := fmt.Fprintln(w, hex.EncodeToString(data))
		return err
	}
	_, err := w.Write(data)

	return err
}
