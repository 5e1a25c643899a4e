// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"fmt"

	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/fence"
	"github.com/ManuGH/mediahal/internal/log"
	"github.com/ManuGH/mediahal/internal/mhw"
	"github.com/ManuGH/mediahal/internal/mos"
	"github.com/ManuGH/mediahal/internal/packet"
	"github.com/ManuGH/mediahal/internal/scalability"
	"github.com/ManuGH/mediahal/internal/statusreport"
)

// step is one contribution to a command buffer and the most bytes it may
// write.
type step struct {
	name string
	size int
	emit func(cb *mos.CommandBuffer) error
}

// submission is one command buffer of a frame bound to an engine instance.
type submission struct {
	label  string
	engine mos.ContextParams
	steps  []step
}

func (s *submission) add(st step) { s.steps = append(s.steps, st) }

func (s *submission) size() int {
	n := 0
	for _, st := range s.steps {
		n += st.size
	}
	return n
}

// build writes every step into a buffer reserved for their summed sizes.
// A step writing past its own size aborts the frame.
func (s *submission) build() (*mos.CommandBuffer, error) {
	reserve := s.size()
	cb := mos.NewCommandBuffer(s.label, reserve)
	for _, st := range s.steps {
		before := cb.Bytes()
		if err := st.emit(cb); err != nil {
			return nil, fmt.Errorf("%s/%s: %w", s.label, st.name, err)
		}
		if wrote := cb.Bytes() - before; wrote > st.size {
			return nil, errs.New(errs.CodeNoSpace, "command buffer", "%s/%s wrote %d bytes, sized %d", s.label, st.name, wrote, st.size)
		}
	}
	if cb.Overrun() {
		return nil, errs.New(errs.CodeNoSpace, "command buffer", "%s wrote %d bytes, reserved %d", s.label, cb.Bytes(), reserve)
	}
	return cb, nil
}

// frontEndStream is the context stream of a separately submitted front end.
const frontEndStream = 1

// frameBuilder lays out the submissions of one frame: the optional
// firmware stage, the decode stage of the chosen mode, then the optional
// post-processing stage. Only edges between submissions get tokens.
type frameBuilder struct {
	p    *Pipeline
	ctx  context.Context
	slot *statusreport.Slot

	opt  scalability.Option
	plan scalability.RealTilePlan

	tokens []*fence.Token
	subs   []*submission
	// post collects the tokens decode submissions signal for down-sampling.
	post []*fence.Token
}

func (b *frameBuilder) submission(label string, engine mos.Engine, pipe int) *submission {
	s := &submission{label: label, engine: mos.ContextParams{Engine: engine, Pipe: pipe}}
	b.subs = append(b.subs, s)
	return s
}

// acquire takes a token. When the pool is exhausted it retires completed
// frames once, which returns their tokens, and tries again.
func (b *frameBuilder) acquire() (*fence.Token, error) {
	pool := b.p.coord.Pool()
	t, err := pool.Acquire()
	if errs.CodeOf(err) == errs.CodeNoSpace {
		if b.p.warn.Allow() {
			b.p.logger.Warn().Int("capacity", pool.Capacity()).Msg("sync tokens exhausted, polling completions")
		}
		b.p.status.Poll()
		t, err = pool.Acquire()
	}
	if err != nil {
		return nil, err
	}
	b.tokens = append(b.tokens, t)
	return t, nil
}

func (b *frameBuilder) packetStep(id packet.ID, t packet.Target) (step, error) {
	lc, ok := b.p.stages[id]
	if !ok {
		return step{}, errs.New(errs.CodeNotFound, "packet", "%s not registered", id)
	}
	n, err := lc.CalculateCommandSize()
	if err != nil {
		return step{}, err
	}
	return step{
		name: id.String(),
		size: n,
		emit: func(cb *mos.CommandBuffer) error { return lc.Execute(b.ctx, cb, t) },
	}, nil
}

func (b *frameBuilder) wait(t *fence.Token) step {
	return step{
		name: "wait",
		size: fence.WaitSize(),
		emit: func(cb *mos.CommandBuffer) error { return b.p.coord.Wait(cb, t) },
	}
}

func (b *frameBuilder) signal(t *fence.Token) step {
	return step{
		name: "signal",
		size: fence.SignalSize(),
		emit: func(cb *mos.CommandBuffer) error { return b.p.coord.Signal(cb, t) },
	}
}

func (b *frameBuilder) record(engine mos.Engine) step {
	return step{
		name: "status",
		size: statusreport.RecordSize(engine),
		emit: func(cb *mos.CommandBuffer) error { return b.slot.EmitRecord(b.p.emitter, cb, engine) },
	}
}

func (b *frameBuilder) command(name string, cmd mhw.Command) step {
	return step{
		name: name,
		size: mhw.SizeOf(cmd),
		emit: func(cb *mos.CommandBuffer) error { return b.p.emitter.Emit(cb, cmd) },
	}
}

// segment appends one decode stage: its packets, a pipeline flush and a
// status record. PipeModeSelect clears the engine's status registers, so
// every segment records before the next one starts.
func (b *frameBuilder) segment(s *submission, t packet.Target, ids ...packet.ID) error {
	for _, id := range ids {
		st, err := b.packetStep(id, t)
		if err != nil {
			return err
		}
		s.add(st)
	}
	s.add(b.command("flush", mhw.PipelineFlush{HevcDone: true}))
	s.add(b.record(mos.EngineVideo))
	return nil
}

// finish closes a decode submission. With down-sampling every decode
// submission signals its own token for the post-processing stage.
func (b *frameBuilder) finish(s *submission, downSample bool) error {
	if downSample {
		t, err := b.acquire()
		if err != nil {
			return err
		}
		s.add(b.signal(t))
		b.post = append(b.post, t)
	}
	s.add(b.command("end", mhw.BatchBufferEnd{}))
	return nil
}

func (b *frameBuilder) build() error {
	var fw *fence.Token
	if b.p.load.Needed() {
		t, err := b.acquire()
		if err != nil {
			return err
		}
		fw = t
		s := b.submission("firmware", mos.EngineFirmware, 0)
		if err := b.firmware(s); err != nil {
			return err
		}
		s.add(b.record(mos.EngineFirmware))
		s.add(b.signal(fw))
		s.add(b.command("end", mhw.BatchBufferEnd{}))
	}

	ds := b.p.ds.Enabled()
	var err error
	switch b.opt.Mode {
	case scalability.ModeSingle:
		err = b.buildSingle(fw, ds)
	case scalability.ModeVirtualTile:
		err = b.buildVirtualTile(fw, ds)
	case scalability.ModeRealTile:
		err = b.buildRealTile(fw, ds)
	default:
		err = errs.New(errs.CodeInvalidParameter, "build frame", "mode %s", b.opt.Mode)
	}
	if err != nil {
		return err
	}

	if ds {
		s := b.submission("post", mos.EngineVideoProcess, 0)
		for _, t := range b.post {
			s.add(b.wait(t))
		}
		st, err := b.packetStep(packet.IDDownSampling, packet.Target{Stage: packet.StagePostProcess})
		if err != nil {
			return err
		}
		s.add(st)
		s.add(b.record(mos.EngineVideoProcess))
		s.add(b.command("end", mhw.BatchBufferEnd{}))
	}
	return nil
}

// firmware lays out the slice-to-long payload. On generations that check
// authentication the payload sits between the auth loop, which arms the
// watchdog, and the watchdog stop.
func (b *frameBuilder) firmware(s *submission) error {
	t := packet.Target{Stage: packet.StageFirmware}
	checked := b.p.auth.Checked()
	if checked {
		st, err := b.packetStep(packet.IDFirmwareAuth, t)
		if err != nil {
			return err
		}
		s.add(st)
	}
	st, err := b.packetStep(packet.IDFirmwareLoad, t)
	if err != nil {
		return err
	}
	s.add(st)
	if checked {
		s.add(step{
			name: "watchdog",
			size: fence.StopWatchdogSize(),
			emit: func(cb *mos.CommandBuffer) error { return b.p.coord.StopWatchdog(cb) },
		})
	}
	return nil
}

func (b *frameBuilder) buildSingle(fw *fence.Token, ds bool) error {
	s := b.submission("long", mos.EngineVideo, 0)
	if fw != nil {
		s.add(b.wait(fw))
	}
	if err := b.segment(s, packet.Target{Stage: packet.StageLong}, packet.IDPicture, packet.IDSlice, packet.IDTile); err != nil {
		return err
	}
	return b.finish(s, ds)
}

// buildVirtualTile parses the frame once on the front end, then runs one
// back end per pipe over its column. A shared front end runs ahead of back
// end 0 in the same buffer. A separate one gets its own context on pipe 0
// and every back end waits for it.
func (b *frameBuilder) buildVirtualTile(fw *fence.Token, ds bool) error {
	fe, err := b.acquire()
	if err != nil {
		return err
	}
	front := b.submission("fe", mos.EngineVideo, 0)
	if b.opt.FESeparate {
		front.engine.Stream = frontEndStream
	}
	if fw != nil {
		front.add(b.wait(fw))
	}
	if err := b.segment(front, packet.Target{Stage: packet.StageFrontEnd}, packet.IDPicture, packet.IDSlice); err != nil {
		return err
	}
	front.add(b.signal(fe))

	if b.opt.FESeparate {
		front.add(b.command("end", mhw.BatchBufferEnd{}))
	} else {
		front.label = "fe+be0"
	}

	for pipe := 0; pipe < b.opt.NumPipe; pipe++ {
		s := front
		if pipe > 0 || b.opt.FESeparate {
			s = b.submission(fmt.Sprintf("be%d", pipe), mos.EngineVideo, pipe)
			s.add(b.wait(fe))
		}
		t := packet.Target{Stage: packet.StageBackEnd, Pipe: pipe}
		if err := b.segment(s, t, packet.IDPicture, packet.IDTile); err != nil {
			return err
		}
		if err := b.finish(s, ds); err != nil {
			return err
		}
	}
	return nil
}

// buildRealTile gives every pipe one submission holding its passes in
// order. A pipe idle in the last pass simply has one segment less.
func (b *frameBuilder) buildRealTile(fw *fence.Token, ds bool) error {
	for pipe := 0; pipe < b.opt.NumPipe; pipe++ {
		s := b.submission(fmt.Sprintf("rt%d", pipe), mos.EngineVideo, pipe)
		if fw != nil {
			s.add(b.wait(fw))
		}
		for pass := 0; pass < b.plan.Passes; pass++ {
			if _, ok := b.plan.Column(pass, pipe); !ok {
				continue
			}
			t := packet.Target{Stage: packet.StageRealTile, Pipe: pipe, Pass: pass}
			if err := b.segment(s, t, packet.IDPicture, packet.IDSlice, packet.IDTile); err != nil {
				return err
			}
		}
		if err := b.finish(s, ds); err != nil {
			return err
		}
	}
	return nil
}

// discard returns tokens of a frame that never reached the hardware.
func (b *frameBuilder) discard() {
	for _, t := range b.tokens {
		if err := b.p.coord.Pool().Discard(t); err != nil {
			b.p.logger.Warn().Err(err).Int(log.FieldSlot, t.Slot()).Msg("discard token")
		}
	}
	b.tokens = nil
}
