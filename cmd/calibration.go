// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imulink/imulink/pkg/device"
	"github.com/imulink/imulink/pkg/imuwire"
)

var calibrationWatch bool

var calibrationCmd = &cobra.Command{
	Use:   "calibration",
	Short: "Show calibration progress",
	Long: `Print the module's calibration scores (0-3) for the system, gyroscope,
accelerometer and magnetometer.

With --watch, keep printing every calibration notification until the module
is fully calibrated or Ctrl+C is pressed. Move the module through a figure
eight and hold it still in several orientations to raise the scores.`,
	RunE: runCalibration,
}

func init() {
	rootCmd.AddCommand(calibrationCmd)
	calibrationCmd.Flags().BoolVarP(&calibrationWatch, "watch", "w", false, "Watch until fully calibrated")
}

func runCalibration(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	s, err := connect(ctx, "")
	if err != nil {
		return err
	}
	defer s.Close()
	client := s.client

	events, closeEvents := client.Bus.Channel(64)
	defer closeEvents()

	state, err := client.Calibration.Refresh(ctx)
	if err != nil {
		return err
	}
	fmt.Print(boxStyle.Render(imuwire.FormatCalibration(state)) + "\n")
	if !calibrationWatch || state.FullyCalibrated() {
		return nil
	}

	// calibration notifications only flow while a sensor is running
	if _, err := client.Config.Enable(ctx, imuwire.Quaternion); err != nil {
		return err
	}

	p := printer{}
	for {
		select {
		case e := <-events:
			p.print(e)
			if _, ok := e.(device.FullyCalibratedEvent); ok {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}
