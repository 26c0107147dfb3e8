// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package control

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/maruel/visioncore/model"
	"github.com/maruel/visioncore/verror"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	started, stopped, paused, resumed, resetStats bool
	lastTriggerID                                 string
	lastConfig                                    *model.Config
	triggerErr                                    error
}

func (f *fakeService) Start(ctx context.Context) error  { f.started = true; return nil }
func (f *fakeService) Stop(ctx context.Context) error    { f.stopped = true; return nil }
func (f *fakeService) Pause(ctx context.Context) error   { f.paused = true; return nil }
func (f *fakeService) Resume(ctx context.Context) error  { f.resumed = true; return nil }

func (f *fakeService) Status(ctx context.Context) (Status, error) {
	return Status{State: "running", Uptime: time.Minute, Cameras: []CameraStatus{{ID: "cam-top", State: "acquiring"}}}, nil
}

func (f *fakeService) Stats(ctx context.Context, window time.Duration) (model.StatisticsSnapshot, error) {
	return model.StatisticsSnapshot{Total: 42, PassCount: 40, FailCount: 2}, nil
}

func (f *fakeService) UpdateConfig(ctx context.Context, next *model.Config) error {
	f.lastConfig = next
	return nil
}

func (f *fakeService) ResetStats(ctx context.Context) error { f.resetStats = true; return nil }

func (f *fakeService) Trigger(ctx context.Context, cameraID string) error {
	f.lastTriggerID = cameraID
	return f.triggerErr
}

func newTestServer(t *testing.T, svc *fakeService) (*Client, func()) {
	mux := http.NewServeMux()
	NewServer(mux, svc, zerolog.Nop())
	srv := httptest.NewServer(mux)
	return NewClient(srv.URL), srv.Close
}

func TestClientServerRoundTrip(t *testing.T) {
	svc := &fakeService{}
	c, closeFn := newTestServer(t, svc)
	defer closeFn()
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	require.True(t, svc.started)

	require.NoError(t, c.Pause(ctx))
	require.True(t, svc.paused)

	st, err := c.GetStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, "running", st.State)
	require.Len(t, st.Cameras, 1)

	snap, err := c.GetStats(ctx, 10*time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 42, snap.Total)

	require.NoError(t, c.UpdateConfig(ctx, &model.Config{}))
	require.NotNil(t, svc.lastConfig)

	require.NoError(t, c.ResetStats(ctx))
	require.True(t, svc.resetStats)

	require.NoError(t, c.Trigger(ctx, "cam-top"))
	require.Equal(t, "cam-top", svc.lastTriggerID)

	require.NoError(t, c.Stop(ctx))
	require.True(t, svc.stopped)
}

func TestClientSurfacesTypedError(t *testing.T) {
	svc := &fakeService{triggerErr: verror.New(verror.DriverError, "camera not acquiring")}
	c, closeFn := newTestServer(t, svc)
	defer closeFn()

	err := c.Trigger(context.Background(), "cam-side")
	require.Error(t, err)
	require.Contains(t, err.Error(), "driver_error")
}
