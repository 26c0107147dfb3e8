// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command visioncore runs the bottle-inspection core: camera acquisition,
// frame synchronization, the defect-detection pipeline, fault supervision,
// and the result publishers, fronted by a small HTTP control surface. It
// replaces the teacher's single-camera lepton viewer CLI with a
// multi-camera production service, keeping the same "one flag-parsed
// main, one interrupt.Channel shutdown" shape.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/maruel/interrupt"
	"github.com/maruel/visioncore/buffer"
	"github.com/maruel/visioncore/camera"
	"github.com/maruel/visioncore/clock"
	"github.com/maruel/visioncore/config"
	"github.com/maruel/visioncore/control"
	"github.com/maruel/visioncore/detect"
	"github.com/maruel/visioncore/eventlog"
	"github.com/maruel/visioncore/framesync"
	"github.com/maruel/visioncore/metrics"
	"github.com/maruel/visioncore/model"
	"github.com/maruel/visioncore/pipeline"
	"github.com/maruel/visioncore/publish"
	"github.com/maruel/visioncore/ring"
	"github.com/maruel/visioncore/rtthread"
	"github.com/maruel/visioncore/supervisor"
	"github.com/maruel/visioncore/verror"
	"github.com/maruel/visioncore/visioncoretest"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/gpio/gpiotest"
	"periph.io/x/periph/host"
)

var (
	flagConfig      string
	flagAddr        string
	flagFake        bool
	flagActuatorPin string
	flagStatsPath   string
	flagEventLog    string
	flagWorkers     int
)

const (
	statsPublishInterval = 5 * time.Second
	supervisorInterval   = 2 * time.Second
)

func main() {
	root := &cobra.Command{
		Use:   "visioncore",
		Short: "Run the multi-camera bottle-inspection core",
		RunE:  runServe,
	}
	root.Flags().StringVar(&flagConfig, "config", "visioncore.yaml", "path to the YAML config document")
	root.Flags().StringVar(&flagAddr, "addr", ":8080", "listen address for the dashboard/control/metrics HTTP server")
	root.Flags().BoolVar(&flagFake, "fake", false, "use synthetic camera drivers instead of real hardware")
	root.Flags().StringVar(&flagActuatorPin, "actuator-pin", "GPIO17", "GPIO pin name driving the reject actuator (ignored with --fake)")
	root.Flags().StringVar(&flagStatsPath, "stats-log", "stats.jsonl", "path to the rolling statistics newline-delimited JSON log")
	root.Flags().StringVar(&flagEventLog, "event-log", "events.jsonl", "path to the durable event newline-delimited JSON log")
	root.Flags().IntVar(&flagWorkers, "workers", 4, "pipeline worker pool size")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "visioncore:", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	var ve *verror.Error
	if errors.As(err, &ve) {
		return ve.Kind.ExitCode()
	}
	return 1
}

func runServe(cmd *cobra.Command, args []string) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return verror.Wrap(verror.ConfigInvalid, "loading config", err)
	}
	store := config.NewStore(cfg)

	evlog, err := eventlog.Open(flagEventLog, 10*1024*1024)
	if err != nil {
		return verror.Wrap(verror.PoolAllocationFailed, "opening event log", err)
	}
	defer evlog.Close()
	_ = evlog.Record(eventlog.Startup, "visioncore starting", "config", flagConfig)

	pool, err := buffer.New(cfg.Pool.Count, cfg.Pool.MaxImageBytes)
	if err != nil {
		return verror.Wrap(verror.PoolAllocationFailed, "allocating buffer pool", err)
	}

	clk := clock.New()
	agg := metrics.New(360, time.Hour)
	sup := supervisor.New(cfg.Retry, heartbeatTimeout(cfg), log)

	frameRing := ring.NewMPMC[*model.Frame](cfg.CameraRing.Capacity, cfg.CameraRing.Overflow)
	frameSetRing := ring.NewMPMC[*model.FrameSet](cfg.WorkerRing.Capacity, cfg.WorkerRing.Overflow)
	resultRing := ring.NewMPMC[*model.InspectionResult](cfg.WorkerRing.Capacity, cfg.WorkerRing.Overflow)

	stop := make(chan struct{})
	adapters := make(map[string]*camera.Adapter, len(cfg.Cameras))
	for i, camCfg := range cfg.Cameras {
		driver, err := newDriver(camCfg, i)
		if err != nil {
			return verror.Wrap(verror.SchedulingUnavailable, "constructing camera driver", err)
		}
		adapter := camera.NewAdapter(camCfg.ID, camCfg.Position, driver, pool, frameRing, clk, cfg.Pool.LeaseTimeout, log)
		sup.Register(camCfg.ID, adapter, camCfg, cfg.Breaker)
		adapter.SetMetrics(agg)
		adapters[camCfg.ID] = adapter

		connectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = adapter.Connect(connectCtx, camCfg)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("camera", camCfg.ID).Msg("visioncore: initial camera connect failed, leaving for reconnector")
		} else {
			assignment := cfg.Threads.CameraAdapter
			rtthread.Spawn(log, rtthread.RoleCameraAdapter, assignment, func() {
				runCtx, cancelRun := context.WithCancel(context.Background())
				go func() {
					<-stop
					cancelRun()
				}()
				if err := adapter.Start(runCtx); err != nil && runCtx.Err() == nil {
					log.Error().Err(err).Str("camera", camCfg.ID).Msg("visioncore: camera acquisition loop exited")
				}
			})
		}
	}

	mgr := framesync.New(cfg.CameraPositions(), cfg.Sync, frameSetRing, sup, log)
	sup.SetSyncManager(mgr)
	rtthread.Spawn(log, rtthread.RoleSyncManager, cfg.Threads.SyncManager, func() { mgr.Run(stop) })
	go drainFrames(frameRing, mgr, cfg, stop)

	registry := detect.NewRegistry()
	detectors, err := registry.Build(cfg.Detectors)
	if err != nil {
		return verror.Wrap(verror.ConfigInvalid, "building detector registry", err)
	}
	workerPool := pipeline.NewPool(
		frameSetRing, resultRing,
		pipeline.NewNormalizeStage(),
		detect.NewFanOutStage(detectors),
		pipeline.NewDedupClassifyStage(0.3),
		pipeline.NewThresholdDecideStage(cfg.Thresholds, 0.5, 0.05),
		agg, cfg.Latency, log,
	)
	workerPool.Run(flagWorkers, stop)

	mux := http.NewServeMux()
	promHandler := promhttp.HandlerFor(agg.Registry(), promhttp.HandlerOpts{})
	dashboardSink := publish.NewDashboardSink(mux, promHandler, log)

	rtthread.Spawn(log, rtthread.RoleHousekeeping, cfg.Threads.Housekeeping, func() {
		agg.Run(statsPublishInterval, stop, func(snap model.StatisticsSnapshot) {
			dashboardSink.SetStatus(snap)
		})
	})
	rtthread.Spawn(log, rtthread.RoleHousekeeping, cfg.Threads.Housekeeping, func() {
		sup.Run(pool, workerPool, evlog, supervisorInterval, stop)
	})

	statsSink, err := publish.NewStatsSink(flagStatsPath, 256, log)
	if err != nil {
		return verror.Wrap(verror.PoolAllocationFailed, "opening stats sink", err)
	}

	pin, err := actuatorPin(flagFake, flagActuatorPin)
	if err != nil {
		return verror.Wrap(verror.SchedulingUnavailable, "initializing actuator GPIO", err)
	}
	actuatorSink := publish.NewActuatorSink(pin, 1, cfg.HardDeadline(), 50*time.Millisecond, 3, log)

	publisher := publish.New(actuatorSink, statsSink, dashboardSink, log)
	defer publisher.Close()

	go drainResults(resultRing, publisher, agg, stop)

	svc := newCoreService(store, sup, agg, evlog, adapters)
	control.NewServer(mux, svc, log)

	httpServer := &http.Server{Addr: flagAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("visioncore: http server stopped")
		}
	}()

	interrupt.HandleCtrlC()
	<-interrupt.Channel
	log.Info().Msg("visioncore: shutdown requested")
	_ = evlog.Record(eventlog.Shutdown, "interrupt received")

	close(stop)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	for _, a := range adapters {
		_ = a.Disconnect()
	}
	return nil
}

func heartbeatTimeout(cfg *model.Config) time.Duration {
	if cfg.Sync.WindowDuration > 0 {
		return 10 * cfg.Sync.WindowDuration
	}
	return 5 * time.Second
}

func newDriver(camCfg model.CameraConfig, seed int) (camera.Driver, error) {
	if !flagFake {
		return nil, fmt.Errorf("visioncore: no real camera driver is wired in this build; run with --fake")
	}
	return visioncoretest.NewFakeDriver(int64(seed) + 1), nil
}

func actuatorPin(fake bool, name string) (gpio.PinOut, error) {
	if fake {
		return &gpiotest.Pin{N: name}, nil
	}
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("visioncore: unknown GPIO pin %q", name)
	}
	return p, nil
}

func drainFrames(in *ring.Ring[*model.Frame], mgr *framesync.Manager, cfg *model.Config, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		f, ok := in.PopTimeout(100 * time.Millisecond)
		if !ok {
			continue
		}
		mgr.Submit(f, time.Now().Add(cfg.Sync.WindowDuration))
	}
}

func drainResults(in *ring.Ring[*model.InspectionResult], pub *publish.Publisher, agg *metrics.Aggregator, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		r, ok := in.PopTimeout(100 * time.Millisecond)
		if !ok {
			continue
		}
		agg.ObserveResult(r)
		pub.Publish(r)
	}
}
