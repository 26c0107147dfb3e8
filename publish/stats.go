// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package publish

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"github.com/maruel/visioncore/model"
	"github.com/rs/zerolog"
)

// StatsSink accepts InspectionResults losslessly and writes them to an
// append-only newline-delimited JSON file (§6.4), encoding and flushing each
// record as it is dequeued. It follows the teacher's
// `Image.PNGBase64()` idiom of carrying thumbnails as base64 text inside a
// JSON record rather than a separate binary blob.
type StatsSink struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	queue  chan *model.InspectionResult
	done   chan struct{}
	log    zerolog.Logger
}

// NewStatsSink opens (creating/appending to) path and starts the
// asynchronous writer goroutine. queueDepth bounds how many results may be
// in flight before Publish applies backpressure by blocking the caller —
// the statistics sink is lossless, so it never drops rather than blocks.
func NewStatsSink(path string, queueDepth int, log zerolog.Logger) (*StatsSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	s := &StatsSink{
		f: f, w: bufio.NewWriter(f),
		queue: make(chan *model.InspectionResult, queueDepth),
		done:  make(chan struct{}),
		log:   log,
	}
	go s.run()
	return s, nil
}

func (s *StatsSink) run() {
	for r := range s.queue {
		s.mu.Lock()
		if err := json.NewEncoder(s.w).Encode(r); err != nil {
			s.log.Error().Err(err).Msg("publish: stats sink encode failed")
		}
		if err := s.w.Flush(); err != nil {
			s.log.Error().Err(err).Msg("publish: stats sink flush failed")
		}
		s.mu.Unlock()
	}
	close(s.done)
}

// Publish implements Sink; it never drops a result, queuing it for the
// background writer even if that means blocking the caller.
func (s *StatsSink) Publish(result *model.InspectionResult) {
	s.queue <- result
}

// Close stops accepting new results, flushes the remainder, and closes the
// backing file.
func (s *StatsSink) Close() error {
	close(s.queue)
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.w.Flush()
	return s.f.Close()
}
