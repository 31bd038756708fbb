// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/imulink/imulink/pkg/device"
)

var (
	inferOn      bool
	inferOff     bool
	inferTrigger bool
	inferWait    time.Duration
)

var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Control on-device inference",
	Long: `Enable or disable on-device inference, or trigger a single inference and
print its raw result.

Firmware without the inference registers reports "not supported".`,
	Example: `  imulink infer --on
  imulink infer --trigger --wait 3s`,
	RunE: runInfer,
}

func init() {
	rootCmd.AddCommand(inferCmd)
	inferCmd.Flags().BoolVar(&inferOn, "on", false, "Enable inference")
	inferCmd.Flags().BoolVar(&inferOff, "off", false, "Disable inference")
	inferCmd.Flags().BoolVarP(&inferTrigger, "trigger", "t", false, "Make one inference")
	inferCmd.Flags().DurationVar(&inferWait, "wait", 5*time.Second, "How long to wait for results")
	inferCmd.MarkFlagsMutuallyExclusive("on", "off")
}

func runInfer(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	s, err := connect(ctx, "")
	if err != nil {
		return err
	}
	defer s.client.Session.Disconnect()
	client := s.client

	results, closeResults := client.Bus.Channel(16)
	defer closeResults()

	if inferOn || inferOff {
		if err := client.SetInferenceEnabled(ctx, inferOn); err != nil {
			return err
		}
		state := "disabled"
		if inferOn {
			state = "enabled"
		}
		printField("Inference", state)
	}
	if !inferTrigger && !inferOn {
		return nil
	}
	if inferTrigger {
		if err := client.MakeInference(ctx); err != nil {
			return err
		}
	}

	timeout := time.NewTimer(inferWait)
	defer timeout.Stop()
	p := printer{}
	for {
		select {
		case e := <-results:
			if _, ok := e.(device.InferenceEvent); !ok {
				continue
			}
			p.print(e)
			if inferTrigger {
				return nil
			}
		case <-timeout.C:
			if inferTrigger {
				return fmt.Errorf("no inference result within %s", inferWait)
			}
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
