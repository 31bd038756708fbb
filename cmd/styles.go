// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/imulink/imulink/pkg/device"
	"github.com/imulink/imulink/pkg/imuwire"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func printField(label string, value interface{}) {
	fmt.Printf("%s %s\n", labelStyle.Render(fmt.Sprintf("%-14s", label+":")), valueStyle.Render(fmt.Sprint(value)))
}

// printer renders bus events as text lines.
type printer struct {
	samples bool
}

func (p printer) print(e device.Event) {
	timestamp := time.Now().Format("15:04:05.000")
	switch ev := e.(type) {
	case device.SampleEvent:
		if p.samples {
			fmt.Print(imuwire.FormatSample(ev.Sample))
		}
	case device.CalibrationEvent:
		fmt.Printf("[%s] Calibration\n%s", timestamp, imuwire.FormatCalibration(ev.State))
	case device.FullyCalibratedEvent:
		fmt.Printf("[%s] %s\n", timestamp, valueStyle.Render("FULLY CALIBRATED"))
	case device.BatteryEvent:
		fmt.Printf("[%s] Battery: %d%%\n", timestamp, ev.Level)
	case device.InferenceEvent:
		fmt.Printf("[%s] Inference result:\n%s", timestamp, imuwire.FormatHex(ev.Result))
	case device.ConnectionEvent:
		switch ev.State {
		case device.StateReconnecting:
			if ev.Attempt == 0 {
				fmt.Printf("[%s] %s\n", timestamp, warningStyle.Render("LINK LOST, reconnecting"))
			}
		case device.StateConnected:
			fmt.Printf("[%s] %s\n", timestamp, valueStyle.Render("CONNECTED"))
		case device.StateDisconnected:
			if ev.Err != nil {
				fmt.Printf("[%s] %s %v\n", timestamp, errorStyle.Render("DISCONNECTED:"), ev.Err)
			}
		}
	case device.TransferErrorEvent:
		fmt.Printf("[%s] %s %s\n", timestamp, errorStyle.Render("DEVICE ERROR:"), ev.Message)
	}
}
