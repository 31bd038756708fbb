// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// imulink - IMU module host tool
//
// Connects to a wearable IMU module over BLE or a bridge dongle, streams
// decoded sensor samples, tracks calibration and uploads inference models.

package main

import (
	"os"

	"github.com/imulink/imulink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
