// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/imulink/imulink/pkg/device"
	"github.com/imulink/imulink/pkg/imuwire"
	"github.com/imulink/imulink/pkg/record"
)

var (
	streamSensors       []string
	streamRate          uint16
	streamCapture       string
	streamInflux        bool
	streamQuiet         bool
	streamStatsInterval int
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream decoded sensor samples",
	Long: `Enable the requested sensors and print every decoded sample as it arrives,
together with calibration changes and battery notifications.

Sensors and rate default to the "sensors" section of the configuration. The
rate is rounded down to a multiple of 20 Hz. All sensors are disabled again
on exit.

  --capture FILE   record raw notifications for later "imulink replay"
  --influx         export samples to the InfluxDB server in the configuration`,
	RunE: runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)
	streamCmd.Flags().StringSliceVarP(&streamSensors, "sensors", "s", nil, "Sensors to enable (e.g. acceleration,quaternion)")
	streamCmd.Flags().Uint16VarP(&streamRate, "rate", "r", 0, "Sample rate in Hz")
	streamCmd.Flags().StringVar(&streamCapture, "capture", "", "Record raw notifications to FILE")
	streamCmd.Flags().BoolVar(&streamInflux, "influx", false, "Export to InfluxDB")
	streamCmd.Flags().BoolVarP(&streamQuiet, "quiet", "q", false, "Do not print samples")
	streamCmd.Flags().IntVar(&streamStatsInterval, "stats-interval", 10, "Statistics interval in seconds (0 disables)")
}

func runStream(cmd *cobra.Command, args []string) error {
	sensors := opts.Sensors
	if cmd.Flags().Changed("sensors") {
		sensors.Enabled = streamSensors
	}
	if cmd.Flags().Changed("rate") {
		sensors.Rate = streamRate
	}
	requested, err := sensors.Requested()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	s, err := connect(ctx, streamCapture)
	if err != nil {
		return err
	}
	defer s.Close()
	client := s.client

	var wg sync.WaitGroup
	sinkCtx, stopSink := context.WithCancel(context.Background())
	defer func() {
		stopSink()
		wg.Wait()
	}()
	if streamInflux || opts.Influx.Enabled {
		sink := record.NewInfluxSink(opts.Influx.InfluxOptions)
		defer sink.Close()
		detach := sink.Attach(client.Bus)
		defer detach()
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Run(sinkCtx)
			written, dropped, failed := sink.Counts()
			log.Infof("influx: %d points written, %d dropped, %d failed", written, dropped, failed)
		}()
		log.Infof("exporting to InfluxDB at %s", opts.Influx.URL)
	}

	events, closeEvents := client.Bus.Channel(1024)
	defer closeEvents()

	rate := sensors.Rate
	cfg, err := client.Configure(ctx, requested, &rate)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("imulink - Sensor Stream"))
	if id, err := client.Identity(ctx); err == nil && id != "" {
		printField("Device", id)
	}
	printField("Sensors", imuwire.FormatSensorSet(cfg.Enabled()))
	printField("Rate", fmt.Sprintf("%d Hz", imuwire.ClampRate(rate)))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if _, err := client.Calibration.Refresh(ctx); err != nil {
		log.Debugf("reading calibration: %v", err)
	}

	var tick <-chan time.Time
	if streamStatsInterval > 0 {
		ticker := time.NewTicker(time.Duration(streamStatsInterval) * time.Second)
		defer ticker.Stop()
		tick = ticker.C
	}

	p := printer{samples: !streamQuiet}
	for {
		select {
		case e := <-events:
			p.print(e)
			if ev, ok := e.(device.ConnectionEvent); ok && ev.State == device.StateDisconnected && ev.Err != nil {
				return fmt.Errorf("connection lost: %w", ev.Err)
			}
		case <-tick:
			fmt.Print(client.Telemetry.Statistics())
		case <-ctx.Done():
			fmt.Print("\n" + client.Telemetry.Statistics().String())
			return nil
		}
	}
}
