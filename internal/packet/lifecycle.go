// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package packet

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/log"
	"github.com/ManuGH/mediahal/internal/mos"
	"github.com/ManuGH/mediahal/internal/pipeline/fsm"
)

// State is where a packet is in its per-frame protocol.
type State string

const (
	StateCreated   State = "created"
	StateReady     State = "ready"
	StatePreparing State = "preparing"
	StatePrepared  State = "prepared"
	StateExecuting State = "executing"
	StateDestroyed State = "destroyed"
)

type event string

const (
	evInit     event = "init"
	evPrepare  event = "prepare"
	evPrepared event = "prepared"
	evFailed   event = "failed"
	evExecute  event = "execute"
	evDestroy  event = "destroy"
)

func transitions() []fsm.Transition[State, event] {
	ts := []fsm.Transition[State, event]{
		{From: StateCreated, Event: evInit, To: StateReady},
		{From: StatePreparing, Event: evPrepared, To: StatePrepared},
		{From: StatePreparing, Event: evFailed, To: StateReady},
		{From: StatePrepared, Event: evExecute, To: StateExecuting},
		{From: StateExecuting, Event: evExecute, To: StateExecuting},
	}
	for _, s := range []State{StateReady, StatePrepared, StateExecuting} {
		ts = append(ts, fsm.Transition[State, event]{From: s, Event: evPrepare, To: StatePreparing})
	}
	for _, s := range []State{StateCreated, StateReady, StatePrepared, StateExecuting} {
		ts = append(ts, fsm.Transition[State, event]{From: s, Event: evDestroy, To: StateDestroyed})
	}
	return ts
}

// Lifecycle enforces the call order of a packet. A failed Prepare leaves
// the packet ready for the next frame, never executable with stale state.
type Lifecycle struct {
	id ID
	p  Packet
	m  *fsm.Machine[State, event]
}

// NewLifecycle wraps p.
func NewLifecycle(id ID, p Packet, logger zerolog.Logger) (*Lifecycle, error) {
	if p == nil {
		return nil, errs.New(errs.CodeInvalidParameter, "packet lifecycle", "%s: nil packet", id)
	}
	m, err := fsm.New(StateCreated, transitions())
	if err != nil {
		return nil, err
	}
	l := log.Component(logger, "packet").With().Str(log.FieldPacket, id.String()).Logger()
	m.OnTransition = func(from, to State, ev event) {
		l.Trace().Str(log.FieldOldState, string(from)).Str(log.FieldNewState, string(to)).Str(log.FieldEvent, string(ev)).Msg("packet transition")
	}
	return &Lifecycle{id: id, p: p, m: m}, nil
}

func (l *Lifecycle) ID() ID         { return l.id }
func (l *Lifecycle) Packet() Packet { return l.p }
func (l *Lifecycle) State() State   { return l.m.State() }

func (l *Lifecycle) Init(ctx context.Context) error {
	_, err := l.m.Fire(ctx, evInit)
	if err != nil {
		return err
	}
	if err := l.p.Init(ctx); err != nil {
		// Init may be retried after a failed allocation.
		l.m.Reset()
		return err
	}
	return nil
}

func (l *Lifecycle) Prepare(ctx context.Context) error {
	if _, err := l.m.Fire(ctx, evPrepare); err != nil {
		return err
	}
	if err := l.p.Prepare(); err != nil {
		_, _ = l.m.Fire(ctx, evFailed)
		return err
	}
	_, err := l.m.Fire(ctx, evPrepared)
	return err
}

// CalculateCommandSize is valid between Prepare and the next frame.
func (l *Lifecycle) CalculateCommandSize() (int, error) {
	switch s := l.m.State(); s {
	case StatePrepared, StateExecuting:
		return l.p.CalculateCommandSize(), nil
	default:
		return 0, errs.New(errs.CodeInvalidParameter, l.id.String(), "command size requested in state %s", s)
	}
}

func (l *Lifecycle) Execute(ctx context.Context, cb *mos.CommandBuffer, t Target) error {
	if !l.m.Can(evExecute) {
		return errs.New(errs.CodeInvalidParameter, l.id.String(), "execute in state %s", l.m.State())
	}
	if err := l.p.Execute(cb, t); err != nil {
		return err
	}
	_, err := l.m.Fire(ctx, evExecute)
	return err
}

func (l *Lifecycle) Destroy(ctx context.Context) error {
	if l.m.State() == StateDestroyed {
		return nil
	}
	if _, err := l.m.Fire(ctx, evDestroy); err != nil {
		return err
	}
	return l.p.Destroy()
}
