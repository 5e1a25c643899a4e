// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package driver owns the process-wide state of one driver instance: the
// configuration holder, telemetry, allocation accounting and the packet
// registry shared by its pipelines.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/mediahal/internal/codec"
	"github.com/ManuGH/mediahal/internal/config"
	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/log"
	"github.com/ManuGH/mediahal/internal/metrics"
	"github.com/ManuGH/mediahal/internal/mos"
	"github.com/ManuGH/mediahal/internal/packet"
	"github.com/ManuGH/mediahal/internal/pipeline"
	"github.com/ManuGH/mediahal/internal/telemetry"
	"github.com/ManuGH/mediahal/internal/version"
)

// ErrLeakedAllocations is returned by Close when resources allocated
// through the instance were never freed.
var ErrLeakedAllocations = errors.New("allocations outstanding at close")

// Options configure an Instance.
type Options struct {
	Config *config.Holder
	Device mos.Device
	// Telemetry is owned by the caller when set. Otherwise the instance
	// builds one from the telemetry section and shuts it down on Close.
	Telemetry *telemetry.Provider
	Logger    zerolog.Logger
}

// Instance is one driver instance bound to a device.
type Instance struct {
	id       uuid.UUID
	holder   *config.Holder
	cfg      config.Config
	dev      mos.Device
	counting *mos.Counting
	packets  *packet.Manager
	tel      *telemetry.Provider
	ownTel   bool
	logger   zerolog.Logger
	updates  chan config.Config

	mu        sync.Mutex
	pipelines map[uuid.UUID]*pipeline.Pipeline
	closed    bool
}

// New creates an instance. The platform section of the holder's current
// snapshot is fixed for the instance's lifetime.
func New(ctx context.Context, opts Options) (*Instance, error) {
	const op = "new driver instance"
	if opts.Config == nil || opts.Device == nil {
		return nil, errs.New(errs.CodeInvalidParameter, op, "config and device are required")
	}
	cfg := opts.Config.Get()

	id := uuid.New()
	logger := log.Component(opts.Logger, "driver").With().Str(log.FieldInstanceID, id.String()).Logger()

	if info := opts.Device.Info(); info.Generation != cfg.Platform.Generation {
		logger.Warn().
			Str(log.FieldGeneration, cfg.Platform.Generation).
			Str("device_generation", info.Generation).
			Msg("configured generation differs from the device")
	}

	tel, ownTel := opts.Telemetry, false
	if tel == nil {
		var err error
		tel, err = telemetry.NewProvider(ctx, telemetry.Config{
			Enabled:        cfg.Telemetry.Enabled,
			ServiceName:    cfg.Log.Service,
			ServiceVersion: version.Version,
			Environment:    cfg.Telemetry.Environment,
			ExporterType:   cfg.Telemetry.Exporter,
			Endpoint:       cfg.Telemetry.Endpoint,
			SamplingRate:   cfg.Telemetry.SamplingRate,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: telemetry: %w", op, err)
		}
		ownTel = true
	}

	counting := mos.NewCounting(opts.Device, metrics.SetAllocationsOutstanding)
	i := &Instance{
		id:        id,
		holder:    opts.Config,
		cfg:       cfg,
		dev:       mos.WithResources(opts.Device, counting),
		counting:  counting,
		packets:   packet.NewManager(logger),
		tel:       tel,
		ownTel:    ownTel,
		logger:    logger,
		updates:   make(chan config.Config, 1),
		pipelines: make(map[uuid.UUID]*pipeline.Pipeline),
	}
	opts.Config.RegisterListener(i.updates)

	logger.Info().
		Str("preset", cfg.Platform.Preset).
		Str(log.FieldGeneration, cfg.Platform.Generation).
		Int("video_pipes", cfg.Platform.VideoPipes).
		Bool("telemetry", cfg.Telemetry.Enabled).
		Msg("driver instance created")
	return i, nil
}

func (i *Instance) ID() uuid.UUID { return i.id }

// Config returns the snapshot the instance was created with.
func (i *Instance) Config() config.Config { return i.cfg }

// CreatePipeline builds a pipeline for codec and function on the
// instance's device. Overrides are read from the holder once per frame.
func (i *Instance) CreatePipeline(ctx context.Context, c codec.Codec, f codec.Function) (*pipeline.Pipeline, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil, errs.New(errs.CodeInvalidParameter, "create pipeline", "instance %s closed", i.id)
	}
	p, err := pipeline.New(ctx, pipeline.Config{
		Codec:        c,
		Function:     f,
		Device:       i.dev,
		Platform:     i.cfg.Platform,
		Overrides:    i.holder.Overrides,
		Packets:      i.packets,
		Telemetry:    i.tel,
		PollInterval: i.cfg.Status.PollInterval,
		Logger:       i.logger,
	})
	if err != nil {
		return nil, err
	}
	i.pipelines[p.ID()] = p
	return p, nil
}

// DestroyPipeline closes the pipeline registered under id.
func (i *Instance) DestroyPipeline(ctx context.Context, id uuid.UUID) error {
	i.mu.Lock()
	p, ok := i.pipelines[id]
	delete(i.pipelines, id)
	i.mu.Unlock()
	if !ok {
		return errs.New(errs.CodeNotFound, "destroy pipeline", "pipeline %s", id)
	}
	return p.Close(ctx)
}

// Pipelines returns the number of open pipelines.
func (i *Instance) Pipelines() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.pipelines)
}

// Allocations returns the live allocation count and the number of
// allocations made since creation.
func (i *Instance) Allocations() (live int, total uint64) {
	return len(i.counting.Outstanding()), i.counting.Total()
}

// Run polls the pipelines for completions and watches the configuration
// file until ctx ends. A watcher that cannot start is logged, not fatal.
func (i *Instance) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if err := i.holder.StartWatcher(ctx); err != nil {
		i.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
	}

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case cfg := <-i.updates:
				ov := cfg.Overrides
				i.logger.Info().
					Str(log.FieldEvent, "config.overrides_applied").
					Bool("disable_scalability", ov.DisableScalability).
					Bool("force_multi_pipe", ov.ForceMultiPipe).
					Int("user_pipes", ov.UserPipes).
					Bool("disable_real_tile", ov.DisableRealTile).
					Bool("real_tile_multi_phase", ov.RealTileMultiPhase).
					Msg("overrides take effect on the next frame")
			}
		}
	})

	g.Go(func() error {
		interval := i.cfg.Status.PollInterval
		if interval <= 0 {
			interval = time.Millisecond
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				i.poll()
			}
		}
	})

	err := g.Wait()
	i.holder.Stop()
	return err
}

func (i *Instance) poll() {
	i.mu.Lock()
	ps := make([]*pipeline.Pipeline, 0, len(i.pipelines))
	for _, p := range i.pipelines {
		ps = append(ps, p)
	}
	i.mu.Unlock()
	for _, p := range ps {
		p.Poll()
	}
}

// Close closes every pipeline, stops the watcher and reports resources
// that were never freed. Close is idempotent.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	ps := i.pipelines
	i.pipelines = make(map[uuid.UUID]*pipeline.Pipeline)
	i.mu.Unlock()

	var errList []error
	for id, p := range ps {
		if err := p.Close(ctx); err != nil {
			errList = append(errList, fmt.Errorf("close pipeline %s: %w", id, err))
		}
	}
	i.holder.Stop()

	if leaked := i.counting.Outstanding(); len(leaked) > 0 {
		sort.Strings(leaked)
		i.logger.Error().Strs("resources", leaked).Msg("resources leaked at close")
		errList = append(errList, fmt.Errorf("%w: %s", ErrLeakedAllocations, strings.Join(leaked, ", ")))
	}
	if i.ownTel {
		if err := i.tel.Shutdown(ctx); err != nil {
			errList = append(errList, fmt.Errorf("telemetry: %w", err))
		}
	}

	i.logger.Info().Uint64("allocations", i.counting.Total()).Msg("driver instance closed")
	return errors.Join(errList...)
}
