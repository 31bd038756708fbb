// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imulink/imulink/pkg/imuwire"
)

var (
	configureEnable  []string
	configureDisable []string
	configureRate    uint16
	configureOff     bool
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Show or change the sensor configuration",
	Long: `Read the module's sensor configuration and optionally change it.

Sensors named with --enable or --disable are changed; all others keep their
current state. The rate is rounded down to a multiple of 20 Hz. Without any
flag the current configuration is printed.

Sensors: acceleration, gravity, linearAcceleration, rotationRate,
magnetometer, quaternion`,
	Example: `  imulink configure
  imulink configure --enable gravity,quaternion --rate 100
  imulink configure --off`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
	configureCmd.Flags().StringSliceVarP(&configureEnable, "enable", "e", nil, "Sensors to enable")
	configureCmd.Flags().StringSliceVarP(&configureDisable, "disable", "d", nil, "Sensors to disable")
	configureCmd.Flags().Uint16VarP(&configureRate, "rate", "r", 0, "Sample rate in Hz")
	configureCmd.Flags().BoolVar(&configureOff, "off", false, "Disable every sensor")
}

func runConfigure(cmd *cobra.Command, args []string) error {
	requested := make(map[imuwire.SensorType]bool)
	for _, names := range []struct {
		list    []string
		enabled bool
	}{{configureEnable, true}, {configureDisable, false}} {
		for _, name := range names.list {
			t, err := imuwire.ParseSensorType(name)
			if err != nil {
				return err
			}
			requested[t] = names.enabled
		}
	}
	var rate *uint16
	if cmd.Flags().Changed("rate") {
		rate = &configureRate
	}

	ctx, stop := signalContext()
	defer stop()

	s, err := connect(ctx, "")
	if err != nil {
		return err
	}
	// leave the new configuration in place
	defer s.client.Session.Disconnect()

	cfg, err := s.client.Config.Current(ctx)
	if err != nil {
		return err
	}

	switch {
	case configureOff:
		if err := s.client.Config.DisableAll(ctx); err != nil {
			return err
		}
		cfg = cfg.DisableAll()
	case len(requested) > 0 || rate != nil:
		cfg, err = s.client.Configure(ctx, requested, rate)
		if err != nil {
			return err
		}
	}

	fmt.Println(titleStyle.Render("Sensor configuration"))
	fmt.Print(imuwire.FormatConfig(cfg))
	return nil
}
