// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/maruel/visioncore/model"
)

// Client is a thin JSON-over-HTTP client for the control surface, used by
// cmd/visioncore-query and cmd/visioncore-grab instead of talking to a
// Service directly.
type Client struct {
	baseURL string
	hc      *http.Client
}

// NewClient returns a Client dialing baseURL (e.g. "http://127.0.0.1:8080").
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, hc: &http.Client{Timeout: 10 * time.Second}}
}

func (c *Client) do(ctx context.Context, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if query != nil {
		u += "?" + query.Encode()
	}
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return fmt.Errorf("control: %s: %s (%s)", path, eb.Message, eb.Kind)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Start invokes the start command.
func (c *Client) Start(ctx context.Context) error { return c.do(ctx, "/control/start", nil, nil, nil) }

// Stop invokes the stop command.
func (c *Client) Stop(ctx context.Context) error { return c.do(ctx, "/control/stop", nil, nil, nil) }

// Pause invokes the pause command.
func (c *Client) Pause(ctx context.Context) error { return c.do(ctx, "/control/pause", nil, nil, nil) }

// Resume invokes the resume command.
func (c *Client) Resume(ctx context.Context) error {
	return c.do(ctx, "/control/resume", nil, nil, nil)
}

// GetStatus invokes get_status.
func (c *Client) GetStatus(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, "/control/status", nil, nil, &st)
	return st, err
}

// GetStats invokes get_stats(window).
func (c *Client) GetStats(ctx context.Context, window time.Duration) (model.StatisticsSnapshot, error) {
	var snap model.StatisticsSnapshot
	q := url.Values{}
	if window > 0 {
		q.Set("window", window.String())
	}
	err := c.do(ctx, "/control/stats", q, nil, &snap)
	return snap, err
}

// UpdateConfig invokes update_config(new_config).
func (c *Client) UpdateConfig(ctx context.Context, next *model.Config) error {
	return c.do(ctx, "/control/update_config", nil, next, nil)
}

// ResetStats invokes reset_stats.
func (c *Client) ResetStats(ctx context.Context) error {
	return c.do(ctx, "/control/reset_stats", nil, nil, nil)
}

// Trigger invokes trigger(camera_id).
func (c *Client) Trigger(ctx context.Context, cameraID string) error {
	q := url.Values{}
	q.Set("camera_id", cameraID)
	return c.do(ctx, "/control/trigger", q, nil, nil)
}
