// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command visioncore-query dumps the status and rolling statistics of a
// running visioncore service, the same role the teacher's cmd/lepton-query
// played over I²C for a single Lepton's internal registers, generalized
// from device registers to the control surface's get_status/get_stats RPCs.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/maruel/visioncore/control"
	"github.com/spf13/cobra"
)

var (
	flagAddr   string
	flagWindow time.Duration
	flagReset  bool
)

func main() {
	root := &cobra.Command{
		Use:   "visioncore-query",
		Short: "Query status and statistics from a running visioncore service",
		RunE:  runQuery,
	}
	root.Flags().StringVar(&flagAddr, "addr", "http://127.0.0.1:8080", "base URL of the running visioncore control surface")
	root.Flags().DurationVar(&flagWindow, "window", 0, "statistics window to request (0 means since the aggregator's last periodic snapshot)")
	root.Flags().BoolVar(&flagReset, "reset", false, "reset statistics counters after printing them")
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "visioncore-query:", err)
		os.Exit(1)
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := control.NewClient(flagAddr)

	status, err := client.GetStatus(ctx)
	if err != nil {
		return fmt.Errorf("querying status: %w", err)
	}
	fmt.Printf("State:  %s\n", status.State)
	fmt.Printf("Uptime: %s\n", status.Uptime)
	for _, cs := range status.Cameras {
		fmt.Printf("  %-12s state=%-12s breaker=%-10s good=%d dropped=%d reconnects=%d\n",
			cs.ID, cs.State, cs.BreakerState, cs.GoodFrames, cs.DroppedFrames, cs.Reconnects)
	}

	snap, err := client.GetStats(ctx, flagWindow)
	if err != nil {
		return fmt.Errorf("querying stats: %w", err)
	}
	fmt.Printf("\nWindow:      %s .. %s\n", snap.WindowStart.Format(time.RFC3339), snap.WindowEnd.Format(time.RFC3339))
	fmt.Printf("Total:       %d (pass=%d fail=%d uncertain=%d)\n", snap.Total, snap.PassCount, snap.FailCount, snap.UncertainCount)
	fmt.Printf("Throughput:  %.2f bottles/s\n", snap.ThroughputPerSec)
	fmt.Printf("End-to-end:  p50=%.0fus p95=%.0fus p99=%.0fus max=%.0fus\n",
		snap.EndToEndUS.P50, snap.EndToEndUS.P95, snap.EndToEndUS.P99, snap.EndToEndUS.Max)
	for reason, count := range snap.FailuresByReason {
		fmt.Printf("  fail[%s]: %d\n", reason, count)
	}
	for cam, drop := range snap.PerCameraDropRates {
		fmt.Printf("  camera[%s]: frames=%d drop_rate=%.3f%%\n", cam, snap.PerCameraFrameCounts[cam], drop*100)
	}

	if flagReset {
		if err := client.ResetStats(ctx); err != nil {
			return fmt.Errorf("resetting stats: %w", err)
		}
		fmt.Println("\nstatistics reset")
	}
	return nil
}
