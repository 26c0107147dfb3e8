// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package supervisor

import (
	"context"
	"time"

	"github.com/maruel/visioncore/camera"
	"github.com/maruel/visioncore/model"
	"github.com/rs/zerolog"
)

// Reconnector retries camera.Adapter.Connect with exponential backoff and
// jitter, giving up after RetryConfig.MaxRetries consecutive failures and
// leaving the Adapter Faulted for the operator to intervene.
type Reconnector struct {
	cfg model.RetryConfig
	log zerolog.Logger
}

// NewReconnector builds a Reconnector from a RetryConfig.
func NewReconnector(cfg model.RetryConfig, log zerolog.Logger) *Reconnector {
	return &Reconnector{cfg: cfg, log: log}
}

// Run attempts to reconnect adapter with camCfg until ctx is done, it
// succeeds, or MaxRetries consecutive attempts have failed.
func (r *Reconnector) Run(ctx context.Context, adapter *camera.Adapter, camCfg model.CameraConfig) error {
	var lastErr error
	for attempt := 1; r.cfg.MaxRetries <= 0 || attempt <= r.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := adapter.Connect(ctx, camCfg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		delay := Backoff(attempt, r.cfg.MinBackoff, r.cfg.MaxBackoff, r.cfg.Factor, r.cfg.JitterFrac)
		r.log.Warn().Str("camera", camCfg.ID).Int("attempt", attempt).Dur("next_retry_in", delay).Err(lastErr).
			Msg("supervisor: camera reconnect attempt failed")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// DegradedDecision is the Supervisor's verdict on whether the line should
// keep running in degraded mode (missing one or more non-quorum cameras) or
// halt entirely.
type DegradedDecision struct {
	Continue bool
	Reason   string
}

// EvaluateDegraded decides whether to keep running given the set of
// currently faulted camera positions out of the full configured set. The
// line continues in degraded mode as long as strictly fewer than half of
// the configured cameras are down; losing half or more halts the line,
// since too little coverage remains to make a reliable accept/reject call.
func EvaluateDegraded(faulted, total int) DegradedDecision {
	if total == 0 {
		return DegradedDecision{Continue: false, Reason: "no cameras configured"}
	}
	if faulted*2 >= total {
		return DegradedDecision{Continue: false, Reason: "half or more configured cameras are faulted"}
	}
	if faulted == 0 {
		return DegradedDecision{Continue: true}
	}
	return DegradedDecision{Continue: true, Reason: "running degraded: one or more cameras faulted"}
}
