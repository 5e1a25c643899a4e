// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeline sequences the packets of one decode pipeline across
// engines, pipes and passes, and hands completion tracking to the status
// report queue.
//
// Submit never waits for the hardware. The only blocking point is the
// status ring reservation when every slot is in flight.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ManuGH/mediahal/internal/codec"
	"github.com/ManuGH/mediahal/internal/config"
	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/feature"
	"github.com/ManuGH/mediahal/internal/fence"
	"github.com/ManuGH/mediahal/internal/log"
	"github.com/ManuGH/mediahal/internal/mhw"
	"github.com/ManuGH/mediahal/internal/mos"
	"github.com/ManuGH/mediahal/internal/packet"
	"github.com/ManuGH/mediahal/internal/scalability"
	"github.com/ManuGH/mediahal/internal/statusreport"
	"github.com/ManuGH/mediahal/internal/telemetry"
)

const tracerName = "mediahal/pipeline"

// Config parameterizes a Pipeline.
type Config struct {
	Codec    codec.Codec
	Function codec.Function
	Device   mos.Device
	Platform config.PlatformConfig
	// Overrides is read once per frame. Nil means no user overrides.
	Overrides func() config.Overrides

	// Emitter defaults to the dword emitter.
	Emitter mhw.Emitter
	// Packets is shared between pipelines of one driver instance. A
	// private manager is created when nil.
	Packets   *packet.Manager
	Telemetry *telemetry.Provider

	PollInterval time.Duration
	Logger       zerolog.Logger
}

// FrameHandle names a submitted frame of one pipeline.
type FrameHandle struct {
	Pipeline uuid.UUID
	Frame    uint64
}

func (h FrameHandle) String() string { return fmt.Sprintf("%s/%d", h.Pipeline, h.Frame) }

// Pipeline decodes frames of one codec.
type Pipeline struct {
	id        uuid.UUID
	codec     codec.Codec
	dev       mos.Device
	emitter   mhw.Emitter
	traits    mhw.Traits
	hwPipes   int
	overrides func() config.Overrides

	logger   zerolog.Logger
	tracer   trace.Tracer
	observer *telemetry.DecisionObserver
	warn     *rate.Limiter

	features *feature.Manager
	sc       *feature.Scalability
	slot     *feature.Status
	selector *scalability.Selector
	coord    *fence.Coordinator
	status   *statusreport.Queue
	packets  *packet.Manager

	load    *packet.FirmwareLoad
	auth    *packet.FirmwareAuth
	ds      *packet.DownSampling
	stages  map[packet.ID]*packet.Lifecycle
	ordered []*packet.Lifecycle

	pollInterval time.Duration

	mu       sync.Mutex
	closed   bool
	tornDown bool

	orphanMu sync.Mutex
	orphans  []orphan
}

// orphan holds the tokens of a frame whose submission failed after part
// of it reached the hardware. The tokens return to the pool once the
// submitted part retired. Until then the frame's status slot index stays
// off limits for slot-owned buffers.
type orphan struct {
	slot   int
	fences []mos.Fence
	tokens []*fence.Token
}

// New builds a decode pipeline. Unsupported codec and function pairs fail
// with Unimplemented before anything is allocated.
func New(ctx context.Context, cfg Config) (*Pipeline, error) {
	const op = "new pipeline"
	if cfg.Device == nil {
		return nil, errs.New(errs.CodeInvalidParameter, op, "device is required")
	}
	if cfg.Function != codec.Decode {
		return nil, errs.New(errs.CodeUnimplemented, op, "%s %s", cfg.Codec, cfg.Function)
	}
	switch cfg.Codec {
	case codec.HEVC, codec.VP9, codec.AV1:
	default:
		return nil, errs.New(errs.CodeUnimplemented, op, "%s %s", cfg.Codec, cfg.Function)
	}
	traits, err := mhw.TraitsFor(cfg.Platform.Generation)
	if err != nil {
		return nil, err
	}
	if cfg.Emitter == nil {
		cfg.Emitter = mhw.NewEmitter()
	}
	if cfg.Overrides == nil {
		cfg.Overrides = func() config.Overrides { return config.Overrides{} }
	}

	id := uuid.New()
	logger := log.Component(cfg.Logger, "pipeline").With().
		Str(log.FieldPipelineID, id.String()).
		Str(log.FieldCodec, cfg.Codec.String()).
		Logger()
	if cfg.Packets == nil {
		cfg.Packets = packet.NewManager(logger)
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Millisecond
	}
	hwPipes := min(cfg.Platform.VideoPipes, cfg.Device.Info().NumVideoPipes)
	if hwPipes < 1 {
		hwPipes = 1
	}

	observer, err := telemetry.NewDecisionObserver(cfg.Telemetry)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		id:        id,
		codec:     cfg.Codec,
		dev:       cfg.Device,
		emitter:   cfg.Emitter,
		traits:    traits,
		hwPipes:   hwPipes,
		overrides: cfg.Overrides,
		logger:    logger,
		tracer:    cfg.Telemetry.Tracer(tracerName),
		observer:  observer,
		warn:      rate.NewLimiter(rate.Every(time.Second), 1),
		selector:  scalability.NewSelector(scalability.LimitsFor(cfg.Platform, traits)),
		packets:   cfg.Packets,
		stages:    make(map[packet.ID]*packet.Lifecycle),

		pollInterval: cfg.PollInterval,
	}

	if err := p.registerFeatures(cfg.Platform.StatusDepth); err != nil {
		return nil, err
	}

	p.coord, err = fence.New(fence.Config{
		Device:            cfg.Device,
		Emitter:           cfg.Emitter,
		Tokens:            cfg.Platform.SyncTokens,
		AuthRingDepth:     cfg.Platform.AuthRingDepth,
		WatchdogThreshold: cfg.Platform.WatchdogThreshold,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	p.status, err = statusreport.New(statusreport.Config{
		Resources:    cfg.Device,
		Depth:        cfg.Platform.StatusDepth,
		PollInterval: cfg.PollInterval,
		Logger:       logger,
	})
	if err != nil {
		_ = p.coord.Close()
		return nil, err
	}

	if err := p.registerPackets(ctx); err != nil {
		if terr := p.teardown(ctx); terr != nil {
			logger.Warn().Err(terr).Msg("cleanup after failed construction")
		}
		return nil, err
	}

	logger.Info().
		Int("hw_pipes", hwPipes).
		Str(log.FieldGeneration, traits.Generation).
		Msg("pipeline created")
	return p, nil
}

func (p *Pipeline) registerFeatures(depth int) error {
	p.features = feature.NewManager()
	p.sc = feature.NewScalability()
	p.slot = feature.NewStatus(depth)
	for _, r := range []struct {
		tag feature.Tag
		f   feature.Feature
	}{
		{feature.TagBasic, feature.NewBasic(p.codec)},
		{feature.TagTile, feature.NewTile()},
		{feature.TagSlice, feature.NewSlice()},
		{feature.TagRefList, feature.NewRefList()},
		{feature.TagDownSampling, feature.NewDownSampling()},
		{feature.TagFirmware, feature.NewFirmware(p.traits)},
		{feature.TagScalability, p.sc},
		{feature.TagStatus, p.slot},
	} {
		if err := p.features.Register(r.tag, r.f); err != nil {
			return err
		}
	}
	return nil
}

// registerPackets creates, registers and initializes the packets in the
// order they are prepared every frame.
func (p *Pipeline) registerPackets(ctx context.Context) error {
	deps := packet.Deps{
		Features:  p.features,
		Emitter:   p.emitter,
		Traits:    p.traits,
		Resources: p.dev,
		Logger:    p.logger,
	}
	var err error
	if p.load, err = packet.NewFirmwareLoad(deps); err != nil {
		return err
	}
	if p.auth, err = packet.NewFirmwareAuth(deps, p.coord); err != nil {
		return err
	}
	pic, err := packet.NewPicture(deps)
	if err != nil {
		return err
	}
	sl, err := packet.NewSlice(deps)
	if err != nil {
		return err
	}
	tile, err := packet.NewTile(deps)
	if err != nil {
		return err
	}
	if p.ds, err = packet.NewDownSampling(deps); err != nil {
		return err
	}

	for _, r := range []struct {
		id packet.ID
		p  packet.Packet
	}{
		{packet.IDFirmwareLoad, p.load},
		{packet.IDFirmwareAuth, p.auth},
		{packet.IDPicture, pic},
		{packet.IDSlice, sl},
		{packet.IDTile, tile},
		{packet.IDDownSampling, p.ds},
	} {
		lc, err := p.packets.Register(p.id, r.id, r.p)
		if err != nil {
			return err
		}
		p.stages[r.id] = lc
		p.ordered = append(p.ordered, lc)
		if err := lc.Init(ctx); err != nil {
			return fmt.Errorf("init %s: %w", r.id, err)
		}
	}
	return nil
}

// ID is the owner key of the pipeline's packets.
func (p *Pipeline) ID() uuid.UUID { return p.id }

func (p *Pipeline) Codec() codec.Codec { return p.codec }

// Option returns the scalability decision of the last submitted frame.
func (p *Pipeline) Option() (scalability.Decision, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selector.Current()
}

// HWPipes is the number of video pipes decisions may use.
func (p *Pipeline) HWPipes() int { return p.hwPipes }

func (p *Pipeline) handle(frame uint64) FrameHandle {
	return FrameHandle{Pipeline: p.id, Frame: frame}
}

func (p *Pipeline) own(h FrameHandle) error {
	if h.Pipeline != p.id {
		return errs.New(errs.CodeNotFound, "frame handle", "%s belongs to another pipeline", h)
	}
	return nil
}

// Poll refreshes every pending frame and returns how many left Pending.
func (p *Pipeline) Poll() int {
	n := p.status.Poll()
	p.reapOrphans()
	return n
}

// GetStatus reports the state of a submitted frame without consuming it.
func (p *Pipeline) GetStatus(h FrameHandle) (statusreport.Status, error) {
	if err := p.own(h); err != nil {
		return statusreport.Status{}, err
	}
	return p.status.GetStatus(h.Frame)
}

// Wait polls until the frame leaves Pending or ctx ends.
func (p *Pipeline) Wait(ctx context.Context, h FrameHandle) (statusreport.Status, error) {
	if err := p.own(h); err != nil {
		return statusreport.Status{}, err
	}
	return p.status.Wait(ctx, h.Frame)
}

// Consume frees the frame's status slot. Consuming a pending frame fails
// with InvalidParameter.
func (p *Pipeline) Consume(h FrameHandle) (statusreport.Status, error) {
	if err := p.own(h); err != nil {
		return statusreport.Status{}, err
	}
	return p.status.Consume(h.Frame)
}

// InFlight returns the number of frames not yet retired.
func (p *Pipeline) InFlight() int { return p.status.Pending() }

func (p *Pipeline) reapOrphans() {
	p.orphanMu.Lock()
	defer p.orphanMu.Unlock()
	kept := p.orphans[:0]
	for _, o := range p.orphans {
		if !allDone(o.fences) {
			kept = append(kept, o)
			continue
		}
		for _, t := range o.tokens {
			if err := p.coord.Pool().Discard(t); err != nil {
				p.logger.Warn().Err(err).Int(log.FieldSlot, t.Slot()).Msg("discard orphaned token")
			}
		}
	}
	p.orphans = kept
}

// orphanedSlot reports whether a partially submitted frame that has not
// retired yet held status slot i.
func (p *Pipeline) orphanedSlot(i int) bool {
	p.orphanMu.Lock()
	defer p.orphanMu.Unlock()
	for _, o := range p.orphans {
		if o.slot == i {
			return true
		}
	}
	return false
}

func (p *Pipeline) orphanCount() int {
	p.orphanMu.Lock()
	defer p.orphanMu.Unlock()
	return len(p.orphans)
}

func allDone(fences []mos.Fence) bool {
	for _, f := range fences {
		if done, _ := f.Status(); !done {
			return false
		}
	}
	return true
}

// Close waits for frames in flight, then destroys the packets and frees
// the pipeline's resources. Submit fails once Close has started. When ctx
// ends first nothing is freed, the error carries DeviceTimeout and a later
// Close tries again.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tornDown {
		return nil
	}
	p.closed = true

	if err := p.drain(ctx); err != nil {
		p.logger.Error().Err(err).Msg("close abandoned with frames in flight")
		return err
	}
	err := p.teardown(ctx)
	p.tornDown = true
	p.logger.Info().Msg("pipeline closed")
	return err
}

// drain polls until no submitted work is outstanding or ctx ends.
func (p *Pipeline) drain(ctx context.Context) error {
	p.Poll()
	if p.status.Pending() == 0 && p.orphanCount() == 0 {
		return nil
	}
	p.logger.Info().Int("in_flight", p.status.Pending()).Msg("waiting for frames in flight")
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return errs.Wrap(errs.CodeDeviceTimeout, "close pipeline",
				fmt.Errorf("%d frames in flight: %w", p.status.Pending(), ctx.Err()))
		case <-ticker.C:
			p.Poll()
			if p.status.Pending() == 0 && p.orphanCount() == 0 {
				return nil
			}
		}
	}
}

func (p *Pipeline) teardown(ctx context.Context) error {
	var errList []error
	if err := p.packets.Unregister(ctx, p.id); err != nil {
		errList = append(errList, err)
	}
	p.orphanMu.Lock()
	for _, o := range p.orphans {
		for _, t := range o.tokens {
			_ = p.coord.Pool().Discard(t)
		}
	}
	p.orphans = nil
	p.orphanMu.Unlock()
	if err := p.coord.Close(); err != nil {
		errList = append(errList, err)
	}
	if err := p.status.Close(); err != nil {
		errList = append(errList, err)
	}
	return errors.Join(errList...)
}
