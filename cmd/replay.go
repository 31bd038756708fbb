// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/imulink/imulink/pkg/device"
	"github.com/imulink/imulink/pkg/record"
)

var (
	replaySpeed  float64
	replayQuiet  bool
	replayInflux bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Replay a captured session",
	Long: `Feed a capture written by "imulink stream --capture" through the decoder as
if a module were attached, printing samples and calibration changes.

--speed 1 keeps the captured timing, 2 plays twice as fast, 0 plays without
pauses. Statistics are printed at the end.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1, "Playback speed (0 = as fast as possible)")
	replayCmd.Flags().BoolVarP(&replayQuiet, "quiet", "q", false, "Do not print samples")
	replayCmd.Flags().BoolVar(&replayInflux, "influx", false, "Export to InfluxDB")
}

func runReplay(cmd *cobra.Command, args []string) error {
	reader, err := record.Open(args[0])
	if err != nil {
		return err
	}
	defer reader.Close()
	player := record.NewPlayer(reader)

	ctx, stop := signalContext()
	defer stop()

	client := device.NewClient(player, opts.DeviceOptions())
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Session.Disconnect()

	if replayInflux || opts.Influx.Enabled {
		sink := record.NewInfluxSink(opts.Influx.InfluxOptions)
		defer sink.Close()
		detach := sink.Attach(client.Bus)
		defer detach()
		sinkCtx, stopSink := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			sink.Run(sinkCtx)
		}()
		defer func() {
			stopSink()
			<-done
		}()
	}

	p := printer{samples: !replayQuiet}
	unsubscribe := client.Bus.Subscribe(p.print)
	defer unsubscribe()

	fmt.Println(titleStyle.Render("imulink - Replay"))
	printField("File", args[0])
	printField("Speed", replaySpeed)

	err = player.Play(ctx, replaySpeed)
	played, skipped := player.Counts()
	fmt.Println()
	printField("Played", played)
	if skipped > 0 {
		printField("Skipped", skipped)
	}
	fmt.Print(client.Telemetry.Statistics())

	if errors.Is(err, context.Canceled) {
		log.Debug("replay interrupted")
		return nil
	}
	return err
}
