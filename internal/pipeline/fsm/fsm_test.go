// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediahal/internal/errs"
)

type state string
type event string

func newTestMachine(t *testing.T, guard error) *Machine[state, event] {
	t.Helper()
	m, err := New[state, event]("idle", []Transition[state, event]{
		{From: "idle", Event: "start", To: "running"},
		{From: "running", Event: "stop", To: "idle", Guard: func(context.Context, state, event) error { return guard }},
	})
	require.NoError(t, err)
	return m
}

func TestMachine_Fire(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, nil)
	var seen []string
	m.OnTransition = func(from, to state, ev event) { seen = append(seen, string(from)+">"+string(to)) }

	assert.True(t, m.Can("start"))
	assert.False(t, m.Can("stop"))

	to, err := m.Fire(context.Background(), "start")
	require.NoError(t, err)
	assert.Equal(t, state("running"), to)

	_, err = m.Fire(context.Background(), "start")
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
	assert.Equal(t, state("running"), m.State())

	_, err = m.Fire(context.Background(), "stop")
	require.NoError(t, err)
	assert.Equal(t, []string{"idle>running", "running>idle"}, seen)
}

func TestMachine_GuardRejects(t *testing.T) {
	t.Parallel()

	blocked := errors.New("blocked")
	m := newTestMachine(t, blocked)
	_, err := m.Fire(context.Background(), "start")
	require.NoError(t, err)

	from, err := m.Fire(context.Background(), "stop")
	assert.ErrorIs(t, err, blocked)
	assert.Equal(t, state("running"), from)

	m.Reset()
	assert.Equal(t, state("idle"), m.State())
}

func TestNew_DuplicateTransition(t *testing.T) {
	t.Parallel()

	_, err := New[state, event]("idle", []Transition[state, event]{
		{From: "idle", Event: "start", To: "a"},
		{From: "idle", Event: "start", To: "b"},
	})
	assert.ErrorIs(t, err, errs.ErrAlreadyRegistered)
}
