// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command visioncore-grab fires a single software trigger against a running
// visioncore service and prints the cameras' status counters read once right
// after the trigger was accepted. It plays the role the teacher's
// cmd/lepton-grab played for a single FLIR Lepton: a small, scriptable "take
// one picture" utility, generalized from decoding a raw sensor frame itself
// to asking the running core to trigger. It does not wait for or print the
// inspection decision of the triggered FrameSet.
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
	flagAddr    string
	flagCamera  string
	flagTimeout time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "visioncore-grab",
		Short: "Fire a single software trigger and print camera status",
		RunE:  runGrab,
	}
	root.Flags().StringVar(&flagAddr, "addr", "http://127.0.0.1:8080", "base URL of the running visioncore control surface")
	root.Flags().StringVar(&flagCamera, "camera", "", "camera id to trigger (required; the service rejects an empty id)")
	root.Flags().DurationVar(&flagTimeout, "timeout", 5*time.Second, "how long to wait for the core to acknowledge")
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "visioncore-grab:", err)
		os.Exit(1)
	}
}

func runGrab(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
	defer cancel()

	client := control.NewClient(flagAddr)
	before, err := client.GetStatus(ctx)
	if err != nil {
		return fmt.Errorf("querying status before trigger: %w", err)
	}
	if err := client.Trigger(ctx, flagCamera); err != nil {
		return fmt.Errorf("triggering: %w", err)
	}
	fmt.Printf("trigger sent (pre-trigger state %s, %d cameras)\n", before.State, len(before.Cameras))

	after, err := client.GetStatus(ctx)
	if err != nil {
		return fmt.Errorf("querying status after trigger: %w", err)
	}
	for _, cs := range after.Cameras {
		if flagCamera != "" && cs.ID != flagCamera {
			continue
		}
		fmt.Printf("%-12s state=%-12s breaker=%-10s good=%d dropped=%d reconnects=%d\n",
			cs.ID, cs.State, cs.BreakerState, cs.GoodFrames, cs.DroppedFrames, cs.Reconnects)
	}
	return nil
}
