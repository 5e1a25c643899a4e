package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediahal/internal/codec"
	"github.com/ManuGH/mediahal/internal/config"
	"github.com/ManuGH/mediahal/internal/driver"
	"github.com/ManuGH/mediahal/internal/mos/sim"
	"github.com/ManuGH/mediahal/internal/pipeline"
	"github.com/ManuGH/mediahal/internal/statusreport"
	"github.com/ManuGH/mediahal/internal/workload"
)

// env is shared by the scenarios of one run.
type env struct {
	cfg     Config
	base    config.Config
	rng     *rand.Rand
	out     io.Writer
	logger  zerolog.Logger
	metrics *Gatherer
}

// harness is one driver instance with one HEVC pipeline on a fresh
// simulated device. The instance's poller runs until stop.
type harness struct {
	dev  *sim.Device
	inst *driver.Instance
	p    *pipeline.Pipeline

	cancel context.CancelFunc
	done   chan error
}

func startHarness(ctx context.Context, e *env, mutate func(*config.Config), simOpts func(*sim.Options)) (*harness, error) {
	cfg := e.base
	if mutate != nil {
		mutate(&cfg)
	}
	opts := sim.Options{
		Generation: cfg.Platform.Generation,
		VideoPipes: cfg.Platform.VideoPipes,
		Logger:     e.logger,
	}
	if simOpts != nil {
		simOpts(&opts)
	}
	dev := sim.New(opts)

	holder := config.NewHolder(cfg, nil, e.logger)
	inst, err := driver.New(ctx, driver.Options{Config: holder, Device: dev, Logger: e.logger})
	if err != nil {
		return nil, err
	}
	p, err := inst.CreatePipeline(ctx, codec.HEVC, codec.Decode)
	if err != nil {
		return nil, errors.Join(err, inst.Close(ctx))
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &harness{dev: dev, inst: inst, p: p, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- inst.Run(runCtx) }()
	return h, nil
}

// decode submits one frame and waits for its status. The frame's
// surfaces are freed before returning.
func (h *harness) decode(ctx context.Context, spec workload.Spec) (statusreport.Status, *codec.FrameRequest, error) {
	spec.Codec = codec.HEVC
	req, rel, err := workload.Build(h.dev, spec)
	if err != nil {
		return statusreport.Status{}, nil, err
	}
	defer func() { _ = rel.Release() }()

	fh, err := h.p.Submit(ctx, req)
	if fh.Frame != spec.Frame || fh.Pipeline != h.p.ID() {
		return statusreport.Status{}, req, err
	}
	st, werr := h.p.Wait(ctx, fh)
	if werr != nil {
		return st, req, werr
	}
	if _, cerr := h.p.Consume(fh); cerr != nil {
		return st, req, cerr
	}
	return st, req, nil
}

// stop ends the poller and closes the instance. Leaked allocations
// surface as an error.
func (h *harness) stop(ctx context.Context) error {
	h.cancel()
	runErr := <-h.done
	if err := h.inst.Close(ctx); err != nil {
		return errors.Join(runErr, fmt.Errorf("close instance: %w", err))
	}
	return runErr
}
