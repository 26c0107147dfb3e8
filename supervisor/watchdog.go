// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package supervisor

import (
	"sync"
	"time"
)

// Watchdog expects a heartbeat from each registered key at least every
// Timeout; a missed heartbeat is reported by Expired and by the periodic
// sweep started with Run.
type Watchdog struct {
	mu       sync.Mutex
	timeout  time.Duration
	lastBeat map[string]time.Time
	now      func() time.Time
}

// NewWatchdog returns a Watchdog with the given per-key timeout.
func NewWatchdog(timeout time.Duration) *Watchdog {
	return &Watchdog{timeout: timeout, lastBeat: map[string]time.Time{}, now: time.Now}
}

// Beat records a heartbeat for key at the current time.
func (w *Watchdog) Beat(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastBeat[key] = w.now()
}

// Expired returns the keys whose last Beat is at least Timeout old. A key
// is only tracked from its first Beat, so keys that never beat are not
// reported.
func (w *Watchdog) Expired() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	var expired []string
	for key, last := range w.lastBeat {
		if now.Sub(last) >= w.timeout {
			expired = append(expired, key)
		}
	}
	return expired
}

// Run polls Expired every interval and invokes onExpired with the stale
// keys, until stop is closed.
func (w *Watchdog) Run(interval time.Duration, onExpired func([]string), stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if expired := w.Expired(); len(expired) > 0 {
				onExpired(expired)
			}
		case <-stop:
			return
		}
	}
}
