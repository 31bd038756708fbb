// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/imulink/imulink/internal/config"
)

var (
	// opts is loaded before every command runs
	opts = config.NewImulinkOpt()
)

var rootCmd = &cobra.Command{
	Use:   "imulink",
	Short: "Host client for the wearable IMU module",
	Long: `imulink - connect to the wearable IMU module, stream its sensors, track
calibration and upload inference models.

Connection modes:
  BLE:       [--ble AA:BB:CC:DD:EE:FF]   (first module found when omitted)
  Serial:    --port /dev/ttyACM0 [--baud 115200]   (bridge dongle)
  WebSocket: --url ws://host/path [--username user] (bridge dongle)

Settings are read from --config, $IMULINK_CONFIG, or config.yaml in
$HOME/.config/imulink, /etc/imulink and the current directory. Flags override
environment variables (IMULINK_*), which override the file.

For WebSocket authentication, the password is read from the IMULINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Configuration file")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	// BLE connection flags
	rootCmd.PersistentFlags().String("ble", "", "BLE address of the module")

	// Serial connection flags
	rootCmd.PersistentFlags().StringP("port", "p", "", "Serial port of a bridge dongle")
	rootCmd.PersistentFlags().IntP("baud", "b", config.DefaultBaudRate, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringP("url", "u", "", "WebSocket URL of a bridge (ws:// or wss://)")
	rootCmd.PersistentFlags().String("username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	desc := config.NewImulinkDesc()
	if err := desc.Parse(cmd); err != nil {
		return err
	}
	desc.PostParse()
	opts = desc.Opt
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
