// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package publish

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/maruel/visioncore/model"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"
)

// DashboardSink exposes the latest InspectionResult (and, via SetStatus,
// the latest status/statistics snapshot) to pull-RPC HTTP clients and to
// live websocket subscribers. It is async and lossy by design: a newer
// result simply overwrites whatever the previous Publish call left in the
// single-slot holder. This directly generalizes the teacher's
// `cmd/lepton WebServer.AddImg`/`stream` cond-broadcast pattern from one
// `LeptonBuffer` slot to one InspectionResult slot plus a status snapshot.
type DashboardSink struct {
	cond   sync.Cond
	latest *model.InspectionResult
	status interface{}
	closed bool

	mux *http.ServeMux
	log zerolog.Logger
}

// NewDashboardSink constructs a DashboardSink and wires its HTTP routes
// (snapshot pull, websocket stream, Prometheus /metrics) onto mux.
// promHandler is typically promhttp.HandlerFor(aggregator.Registry(), ...).
func NewDashboardSink(mux *http.ServeMux, promHandler http.Handler, log zerolog.Logger) *DashboardSink {
	d := &DashboardSink{
		cond: *sync.NewCond(&sync.Mutex{}),
		mux:  mux,
		log:  log,
	}
	mux.HandleFunc("/api/v1/latest", d.handleLatest)
	mux.Handle("/api/v1/stream", websocket.Handler(d.stream))
	if promHandler != nil {
		mux.Handle("/metrics", promHandler)
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}
	return d
}

// Publish implements Sink: it overwrites the latest result (newer-wins,
// lossy) and wakes any blocked websocket streamers.
func (d *DashboardSink) Publish(result *model.InspectionResult) {
	d.cond.L.Lock()
	d.latest = result
	d.cond.Broadcast()
	d.cond.L.Unlock()
}

// SetStatus publishes the current system status / statistics snapshot for
// the pull RPC to serve; v is typically a model.StatisticsSnapshot or a
// small status struct from the control surface.
func (d *DashboardSink) SetStatus(v interface{}) {
	d.cond.L.Lock()
	d.status = v
	d.cond.L.Unlock()
}

func (d *DashboardSink) handleLatest(w http.ResponseWriter, r *http.Request) {
	d.cond.L.Lock()
	resp := struct {
		Result *model.InspectionResult `json:"result"`
		Status interface{}             `json:"status"`
	}{d.latest, d.status}
	d.cond.L.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		d.log.Error().Err(err).Msg("publish: dashboard snapshot encode failed")
	}
}

// stream pushes every newly published InspectionResult to one websocket
// subscriber as it arrives, mirroring the teacher's cond.Wait/Broadcast
// loop in cmd/lepton/server.go's stream handler.
func (d *DashboardSink) stream(ws *websocket.Conn) {
	defer ws.Close()
	d.cond.L.Lock()
	var lastSent *model.InspectionResult
	for !d.closed {
		for !d.closed && d.latest == lastSent {
			d.cond.Wait()
		}
		if d.closed {
			break
		}
		r := d.latest
		lastSent = r
		d.cond.L.Unlock()
		if err := websocket.JSON.Send(ws, r); err != nil {
			d.log.Debug().Err(err).Msg("publish: dashboard stream closed")
			return
		}
		d.cond.L.Lock()
	}
	d.cond.L.Unlock()
}

// Close wakes every blocked streamer so their goroutines can exit.
func (d *DashboardSink) Close() error {
	d.cond.L.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.cond.L.Unlock()
	return nil
}
