// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/mediahal/internal/codec"
	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/fence"
	"github.com/ManuGH/mediahal/internal/log"
	"github.com/ManuGH/mediahal/internal/metrics"
	"github.com/ManuGH/mediahal/internal/mos"
	"github.com/ManuGH/mediahal/internal/scalability"
	"github.com/ManuGH/mediahal/internal/telemetry"
)

// Submit records and submits the command buffers of one frame and returns
// without waiting for the hardware. It blocks only while the status ring
// is full.
//
// Once a status slot is reserved every failure is also recorded there:
// the returned handle is valid whenever err came from the frame itself,
// and GetStatus reports Error with the originating code.
func (p *Pipeline) Submit(ctx context.Context, req *codec.FrameRequest) (FrameHandle, error) {
	if req == nil {
		return FrameHandle{}, errs.New(errs.CodeInvalidParameter, "submit", "nil frame request")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return FrameHandle{}, errs.New(errs.CodeInvalidParameter, "submit", "pipeline %s closed", p.id)
	}

	ctx = log.ContextWithFrame(log.ContextWithPipelineID(ctx, p.id.String()), req.Frame)
	ctx, span := p.tracer.Start(ctx, "pipeline.submit", trace.WithAttributes(
		telemetry.FrameAttributes(p.id.String(), req.Codec.String(), req.Frame,
			req.Pic.Width, req.Pic.Height, req.Pic.Columns(), req.Pic.Rows())...,
	))
	defer span.End()
	logger := p.logger.With().Uint64(log.FieldFrame, req.Frame).Logger()

	p.reapOrphans()
	slot, err := p.status.Reserve(ctx, req.Frame)
	if err != nil {
		spanError(span, err)
		return FrameHandle{}, err
	}
	h := p.handle(req.Frame)

	b := &frameBuilder{p: p, ctx: ctx, slot: slot}
	n, err := p.submitFrame(ctx, b, req)
	if err != nil {
		b.discard()
		if aerr := p.status.Abort(slot, err); aerr != nil {
			logger.Error().Err(aerr).Msg("record aborted frame")
		}
		spanError(span, err)
		logger.Warn().Err(err).Str(log.FieldCode, errs.CodeOf(err).String()).Msg("frame aborted")
		return h, err
	}

	span.SetAttributes(attribute.Int(telemetry.SubmissionsKey, n))
	logger.Debug().
		Str(log.FieldMode, b.opt.Mode.String()).
		Int(log.FieldNumPipe, b.opt.NumPipe).
		Int("submissions", n).
		Int(log.FieldSlot, slot.Index()).
		Msg("frame submitted")
	return h, nil
}

func spanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(telemetry.ErrorAttributes(errs.CodeOf(err).String())...)
}

// submitFrame runs the per-frame sequence: update features, decide, prepare
// packets, build every command buffer, then submit them producers first.
// Nothing reaches the hardware until every buffer is built.
func (p *Pipeline) submitFrame(ctx context.Context, b *frameBuilder, req *codec.FrameRequest) (int, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	if req.Codec != p.codec {
		return 0, errs.New(errs.CodeInvalidParameter, "submit", "frame %d is %s, pipeline decodes %s", req.Frame, req.Codec, p.codec)
	}
	if p.orphanedSlot(b.slot.Index()) {
		return 0, errs.New(errs.CodeNoSpace, "submit", "status slot %d still read by a partially submitted frame", b.slot.Index())
	}
	p.slot.Set(b.slot.Index())
	if err := p.features.UpdateAll(req); err != nil {
		return 0, err
	}
	if err := p.decide(ctx, b, req); err != nil {
		return 0, err
	}
	for _, lc := range p.ordered {
		if err := lc.Prepare(ctx); err != nil {
			return 0, fmt.Errorf("prepare %s: %w", lc.ID(), err)
		}
	}

	if err := b.build(); err != nil {
		return 0, err
	}
	cbs := make([]*mos.CommandBuffer, len(b.subs))
	for i, s := range b.subs {
		cb, err := s.build()
		if err != nil {
			return 0, err
		}
		cbs[i] = cb
	}

	fences, err := p.submitAll(b.subs, cbs)
	if err != nil {
		if len(fences) > 0 {
			p.keepOrphan(b.slot.Index(), fences, b.tokens)
			b.tokens = nil
		}
		return 0, err
	}

	tokens := b.tokens
	b.tokens = nil
	if err := p.status.Commit(b.slot, fences, p.onRetire(b.subs, fences, tokens)); err != nil {
		p.keepOrphan(b.slot.Index(), fences, tokens)
		return 0, err
	}
	metrics.RecordFrameSubmitted(p.codec.String(), b.opt.Mode.String())
	return len(fences), nil
}

// decide computes or reuses the scalability option and publishes it with
// its partition to the packets.
func (p *Pipeline) decide(ctx context.Context, b *frameBuilder, req *codec.FrameRequest) error {
	ov := scalability.OverridesFrom(p.overrides())
	ov.DisableScalability = ov.DisableScalability || req.DisableScalability
	pars := scalability.Pars{
		FrameWidth:    req.Pic.Width,
		FrameHeight:   req.Pic.Height,
		CTBLog2:       req.Pic.CTBLog2,
		TileColumns:   req.Pic.Columns(),
		TileRows:      req.Pic.Rows(),
		ScreenContent: req.Pic.ScreenContent,
		UsingSFC:      req.DownSample != nil,
		HWPipes:       p.hwPipes,
		Overrides:     ov,
	}

	var d scalability.Decision
	reused := p.selector.IsScalabilityOptionMatched(pars)
	if reused {
		d, _ = p.selector.Current()
	} else {
		d = p.selector.SetScalabilityOption(pars)
		metrics.RecordScalabilityDecision(d.Option.Mode.String(), string(d.Reason))
	}
	metrics.RecordOptionCache(reused)

	if n := d.Option.NumPipe; n < 1 || n > p.hwPipes {
		return errs.New(errs.CodeInvalidParameter, "scalability", "frame %d: %d pipes on %d", req.Frame, n, p.hwPipes)
	}
	cols, err := scalability.Partition(d.Option, req.Pic.Width, req.Pic.CTBLog2)
	if err != nil {
		return err
	}
	var plan scalability.RealTilePlan
	if d.Option.Mode == scalability.ModeRealTile {
		if plan, err = scalability.PlanRealTile(d.Option, req.Pic.Columns()); err != nil {
			return err
		}
	}
	p.sc.Set(d, reused, cols, plan)
	b.opt, b.plan = d.Option, plan

	if err := p.observer.Emit(ctx, d.Option.Mode.String(), string(d.Reason), d.Option.NumPipe, reused); err != nil {
		p.logger.Warn().Err(err).Msg("emit scalability decision")
	}
	if !reused {
		p.logger.Debug().
			Uint64(log.FieldFrame, req.Frame).
			Str(log.FieldMode, d.Option.Mode.String()).
			Int(log.FieldNumPipe, d.Option.NumPipe).
			Bool("fe_separate", d.Option.FESeparate).
			Str(log.FieldReason, string(d.Reason)).
			Msg("scalability option changed")
	}
	return nil
}

// submitAll hands the buffers to their engines in build order, which puts
// every signal ahead of its waits. It returns the fences of what was
// submitted even on failure.
func (p *Pipeline) submitAll(subs []*submission, cbs []*mos.CommandBuffer) ([]mos.Fence, error) {
	fences := make([]mos.Fence, 0, len(cbs))
	for i, cb := range cbs {
		id, err := p.coord.SwitchEngine(subs[i].engine)
		if err != nil {
			return fences, fmt.Errorf("switch to %s: %w", subs[i].engine, err)
		}
		f, err := p.dev.Submit(id, cb)
		if err != nil {
			return fences, fmt.Errorf("submit %s: %w", subs[i].label, err)
		}
		metrics.ObserveCommandBuffer(subs[i].engine.Engine.String(), cb.Bytes())
		fences = append(fences, f)
	}
	return fences, nil
}

// onRetire runs once every fence of the frame is done. Engine resets are
// counted per submission and the frame's tokens return to the pool.
func (p *Pipeline) onRetire(subs []*submission, fences []mos.Fence, tokens []*fence.Token) func() {
	return func() {
		for i, f := range fences {
			if _, err := f.Status(); errs.CodeOf(err) == errs.CodeDeviceTimeout {
				metrics.RecordDeviceReset(subs[i].engine.Engine.String())
				p.logger.Warn().Str(log.FieldEngine, subs[i].engine.String()).Str(log.FieldFence, f.ID()).Msg("engine reset")
			}
		}
		pool := p.coord.Pool()
		for _, t := range tokens {
			if err := pool.Release(t); err != nil {
				p.logger.Warn().Err(err).Int(log.FieldSlot, t.Slot()).Msg("release token")
				_ = pool.Discard(t)
			}
		}
	}
}

func (p *Pipeline) keepOrphan(slot int, fences []mos.Fence, tokens []*fence.Token) {
	p.orphanMu.Lock()
	defer p.orphanMu.Unlock()
	p.orphans = append(p.orphans, orphan{slot: slot, fences: fences, tokens: tokens})
}
