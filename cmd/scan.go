// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"tinygo.org/x/bluetooth"

	"github.com/imulink/imulink/pkg/link/ble"
	"github.com/imulink/imulink/pkg/link/bridge"
)

var (
	scanDuration time.Duration
	scanSerial   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List nearby modules or serial ports",
	Long: `Scan for modules advertising the IMU service over BLE and print their
addresses, names and signal strength.

With --serial, list the serial ports a bridge dongle may be attached to instead.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 5*time.Second, "How long to scan")
	scanCmd.Flags().BoolVar(&scanSerial, "serial", false, "List serial ports instead of scanning BLE")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanSerial {
		ports, err := bridge.ListSerialPorts()
		if err != nil {
			return fmt.Errorf("failed to list serial ports: %w", err)
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}

	sigCtx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(sigCtx, scanDuration)
	defer cancel()

	fmt.Printf("Scanning for %s...\n", scanDuration)
	found, err := ble.Scan(ctx, bluetooth.DefaultAdapter)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Println("No modules found")
		return nil
	}

	fmt.Printf("%-20s %6s  %s\n", "ADDRESS", "RSSI", "NAME")
	for _, adv := range found {
		fmt.Printf("%-20s %6d  %s\n", adv.Address, adv.RSSI, adv.Name)
	}
	return nil
}
