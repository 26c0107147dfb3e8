// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads and hot-reloads the model.Config document: a
// schema-validated YAML file (gopkg.in/yaml.v3, grounded on the presence of
// the same library across the retrieved pack's config loaders) swapped
// atomically at a safe point between FrameSets, per §4 "Config is
// immutable-after-start ... Live updates produce a new Config atomically
// swapped at a safe point".
package config

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/maruel/visioncore/model"
	"gopkg.in/yaml.v3"
)

// Load reads path, parses it as YAML into a model.Config, and validates it.
// A parse or validation failure is the system-fatal ConfigInvalid condition
// (§6.5): the caller is expected to exit with code 3.
func Load(path string) (*model.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// Store holds the live model.Config behind an atomic pointer so pipeline
// workers can snapshot it once per FrameSet without locking, per §5
// "Config is swapped via atomic pointer; readers take a snapshot at the
// start of each FrameSet."
type Store struct {
	p atomic.Pointer[model.Config]
}

// NewStore constructs a Store seeded with the given initial Config.
func NewStore(initial *model.Config) *Store {
	s := &Store{}
	s.p.Store(initial)
	return s
}

// Get returns the currently live Config. Safe for concurrent use.
func (s *Store) Get() *model.Config {
	return s.p.Load()
}

// Swap installs next as the live Config and returns the Config it replaced.
// Callers must only invoke Swap at a safe point between FrameSets, never
// mid-FrameSet.
func (s *Store) Swap(next *model.Config) *model.Config {
	return s.p.Swap(next)
}
