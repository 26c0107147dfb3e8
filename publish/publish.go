// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package publish is the Result Publisher (C11): it fans every
// InspectionResult out to three independent sinks — an actuator sink with a
// hard deadline tied to line mechanics, an async lossless statistics sink,
// and an async lossy newer-wins dashboard sink — and recovers a panic in
// any sink so it cannot reach the others. The actuator sink is served first
// for each result; Publish then waits for the statistics and dashboard
// sinks, so a sink that blocks delays the next result's actuation.
package publish

import (
	"sync"

	"github.com/maruel/visioncore/model"
	"github.com/rs/zerolog"
)

// Sink accepts published InspectionResults. Implementations must not block
// the caller past their own documented deadline.
type Sink interface {
	Publish(result *model.InspectionResult)
	Close() error
}

// Publisher fans InspectionResults out to its configured sinks: the
// actuator sink first, then the statistics and dashboard sinks concurrently
// with each other.
type Publisher struct {
	actuator  Sink
	stats     Sink
	dashboard Sink
	log       zerolog.Logger
}

// New constructs a Publisher wired to the three sinks. Any of them may be
// nil, in which case that fan-out leg is skipped.
func New(actuator, stats, dashboard Sink, log zerolog.Logger) *Publisher {
	return &Publisher{actuator: actuator, stats: stats, dashboard: dashboard, log: log}
}

// Publish dispatches result to every configured sink. The actuator sink
// runs synchronously on the caller first (it owns its own hard-deadline
// bound); the statistics and dashboard sinks then run on their own
// goroutines, and Publish returns only after both have returned, so a
// blocked statistics or dashboard sink holds up the caller and the next
// result's actuation. A panic in any sink is recovered and logged.
func (p *Publisher) Publish(result *model.InspectionResult) {
	if p.actuator != nil {
		p.safePublish(p.actuator, "actuator", result)
	}
	var wg sync.WaitGroup
	if p.stats != nil {
		wg.Add(1)
		go func() { defer wg.Done(); p.safePublish(p.stats, "stats", result) }()
	}
	if p.dashboard != nil {
		wg.Add(1)
		go func() { defer wg.Done(); p.safePublish(p.dashboard, "dashboard", result) }()
	}
	wg.Wait()
}

func (p *Publisher) safePublish(s Sink, name string, result *model.InspectionResult) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Str("sink", name).Interface("panic", r).Msg("publish: sink panicked")
		}
	}()
	s.Publish(result)
}

// Close closes every non-nil configured sink, returning the first error
// encountered.
func (p *Publisher) Close() error {
	var first error
	for _, s := range []Sink{p.actuator, p.stats, p.dashboard} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
