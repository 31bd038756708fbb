// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/imulink/imulink/pkg/link"
)

var (
	pingTimeout time.Duration
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure register round-trip time",
	Long: `Read the identity register repeatedly and report the round-trip time of
each read.

This is useful for verifying:
  - the link is established (BLE, serial or WebSocket)
  - the bridge forwards requests to the module
  - round-trip latency is stable

Exit codes:
  0 - All reads successful
  1 - One or more reads failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 5*time.Second, "Timeout for each read")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of reads")
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	ctx, stop := signalContext()
	defer stop()

	s, err := connect(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	session := s.client.Session

	fmt.Printf("imulink - Link Ping\n")
	fmt.Printf("Connection: %s\n", session.Name())
	fmt.Printf("Timeout: %s per read\n", pingTimeout)
	fmt.Printf("Count: %d reads\n\n", pingCount)

	successCount := 0
	var total time.Duration
	for i := 1; i <= pingCount && ctx.Err() == nil; i++ {
		fmt.Printf("Read %d/%d: ", i, pingCount)

		readCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		start := time.Now()
		data, err := session.Read(readCtx, link.RegIdentity)
		rtt := time.Since(start)
		cancel()

		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
		} else {
			fmt.Printf("%d bytes from %s, rtt=%v\n", len(data), link.RegIdentity, rtt.Round(time.Millisecond))
			successCount++
			total += rtt
		}

		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}
	session.Disconnect()

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d reads sent, %d answered, %.0f%% loss", pingCount, successCount,
		float64(pingCount-successCount)/float64(pingCount)*100)
	if successCount > 0 {
		fmt.Printf(", avg rtt=%v", (total / time.Duration(successCount)).Round(time.Millisecond))
	}
	fmt.Println()

	if successCount < pingCount {
		os.Exit(1)
	}
	return nil
}
