// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/imulink/imulink/pkg/device"
	"github.com/imulink/imulink/pkg/imuwire"
	"github.com/imulink/imulink/pkg/link"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw register notifications",
	Long: `Print every register notification as it arrives, undecoded, with a
timestamp, the register name and a hex dump of the value.

The sensors from the configuration are enabled so that imu-data
notifications flow. Supports BLE, serial and WebSocket links.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

// rawLogger prints notifications before the client decodes them.
type rawLogger struct {
	link.Transport
}

func (r rawLogger) Subscribe(ctx context.Context, reg link.Register, fn link.NotifyHandler) error {
	return r.Transport.Subscribe(ctx, reg, func(data []byte) {
		timestamp := time.Now().Format("15:04:05.000")
		fmt.Printf("[%s] %s len=%d\n%s", timestamp, reg, len(data), imuwire.FormatHex(data))
		fn(data)
	})
}

func runRawLog(cmd *cobra.Command, args []string) error {
	requested, err := opts.Sensors.Requested()
	if err != nil {
		return err
	}

	transport, err := OpenTransport(opts.Link)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	client := device.NewClient(rawLogger{transport}, opts.DeviceOptions())
	client.Bus.Subscribe(logConnectionEvents)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	s := &session{client: client}
	defer s.Close()

	fmt.Printf("imulink - Raw Notification Log\n")
	fmt.Printf("Connection: %s\n", transport.Name())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	rate := opts.Sensors.Rate
	if _, err := client.Configure(ctx, requested, &rate); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}
