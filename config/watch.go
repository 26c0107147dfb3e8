// Copyright 2016 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/maruel/visioncore/model"
	"github.com/rs/zerolog"
)

// Watcher reloads a Config file on change and hands each successfully
// validated reload to onReload. It mirrors the teacher's
// cmd/lepton/watch_linux.go fsnotify loop, generalized from "restart the
// process on any change" to "hot-swap the live Config on a valid change,
// log and keep running on an invalid one".
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	log      zerolog.Logger
	onReload func(*model.Config)
}

// NewWatcher starts watching path for changes. onReload is invoked with
// each newly loaded, validated Config; invalid reloads are logged and
// skipped, leaving the previously live Config in place.
func NewWatcher(path string, log zerolog.Logger, onReload func(cfg *model.Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		_ = w.Close()
		return nil, err
	}
	watcher := &Watcher{path: path, watcher: w, log: log, onReload: onReload}
	go watcher.run()
	return watcher, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.log.Warn().Err(err).Str("path", w.path).Msg("config: hot-reload rejected invalid config, keeping previous")
				continue
			}
			w.onReload(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("config: watcher error")
		}
	}
}

// Close stops watching the config file.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
