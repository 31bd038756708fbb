// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imulink/imulink/pkg/device"
)

var batteryWatch bool

var batteryCmd = &cobra.Command{
	Use:   "battery",
	Short: "Show the battery level",
	Long: `Read the module's battery level in percent.

With --watch, keep printing battery notifications until Ctrl+C.`,
	RunE: runBattery,
}

func init() {
	rootCmd.AddCommand(batteryCmd)
	batteryCmd.Flags().BoolVarP(&batteryWatch, "watch", "w", false, "Print battery notifications")
}

func runBattery(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	s, err := connect(ctx, "")
	if err != nil {
		return err
	}
	defer s.client.Session.Disconnect()
	client := s.client

	events, closeEvents := client.Bus.Channel(16)
	defer closeEvents()

	level, err := client.Battery(ctx)
	if err != nil {
		return err
	}
	printField("Battery", fmt.Sprintf("%d%%", level))
	if !batteryWatch {
		return nil
	}

	p := printer{}
	for {
		select {
		case e := <-events:
			switch e.(type) {
			case device.BatteryEvent, device.ConnectionEvent:
				p.print(e)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
