// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package eventlog is the append-only, size-rotated record of startup,
// config-change, fault, and reconnection events described in §6.4 "On-disk
// persisted state": no raw pixels, just a durable newline-delimited JSON
// trail an operator or the dashboard can tail.
package eventlog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Kind names one class of durable event.
type Kind string

// Recognized event kinds.
const (
	Startup        Kind = "startup"
	Shutdown       Kind = "shutdown"
	ConfigChange   Kind = "config_change"
	Fault          Kind = "fault"
	Reconnection   Kind = "reconnection"
	DegradedMode   Kind = "degraded_mode"
	ResyncAll      Kind = "resync_all"
	BufferLeak     Kind = "buffer_leak"
)

// Event is one durable record.
type Event struct {
	Time    time.Time         `json:"time"`
	Kind    Kind              `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Log appends Events to a newline-delimited JSON file, rotating to a
// ".1" backup once the file crosses maxBytes — the size-bounded,
// append-only rotation idiom common across the retrieved pack's
// storage-adjacent examples, applied here to a process event trail instead
// of a data buffer.
type Log struct {
	mu       sync.Mutex
	path     string
	f        *os.File
	written  int64
	maxBytes int64
}

// Open opens (creating if necessary) path for appending, rotating once its
// size exceeds maxBytes on the next Write.
func Open(path string, maxBytes int64) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Log{path: path, f: f, written: info.Size(), maxBytes: maxBytes}, nil
}

// Write appends one Event, rotating the file first if it has grown past
// maxBytes.
func (l *Log) Write(e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.maxBytes > 0 && l.written >= l.maxBytes {
		if err := l.rotateLocked(); err != nil {
			return err
		}
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	n, err := l.f.Write(data)
	l.written += int64(n)
	return err
}

func (l *Log) rotateLocked() error {
	if err := l.f.Close(); err != nil {
		return err
	}
	backup := l.path + ".1"
	_ = os.Remove(backup)
	if err := os.Rename(l.path, backup); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	l.f = f
	l.written = 0
	return nil
}

// Record is a convenience that stamps time.Now and writes an Event of kind
// with message and optional key/value fields (must be given in pairs).
func (l *Log) Record(kind Kind, message string, kv ...string) error {
	fields := map[string]string{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i]] = kv[i+1]
	}
	if len(fields) == 0 {
		fields = nil
	}
	return l.Write(Event{Time: time.Now(), Kind: kind, Message: message, Fields: fields})
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
