// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package packet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/mediahal/internal/errs"
)

// Key identifies a registered packet. Owner separates pipeline instances
// sharing one manager.
type Key struct {
	Owner uuid.UUID
	ID    ID
}

func (k Key) String() string { return fmt.Sprintf("%s/%s", k.Owner, k.ID) }

// Manager is the packet registry. Registration happens at pipeline
// construction, lookups once per frame.
type Manager struct {
	logger zerolog.Logger

	mu      sync.RWMutex
	entries map[Key]*Lifecycle
	order   map[uuid.UUID][]ID
}

func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		logger:  logger,
		entries: make(map[Key]*Lifecycle),
		order:   make(map[uuid.UUID][]ID),
	}
}

// Register wraps p in a Lifecycle under (owner, id).
func (m *Manager) Register(owner uuid.UUID, id ID, p Packet) (*Lifecycle, error) {
	if owner == uuid.Nil {
		return nil, errs.New(errs.CodeInvalidParameter, "register packet", "%s: nil owner", id)
	}
	lc, err := NewLifecycle(id, p, m.logger)
	if err != nil {
		return nil, err
	}
	k := Key{Owner: owner, ID: id}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[k]; ok {
		return nil, errs.New(errs.CodeAlreadyRegistered, "register packet", "%s", k)
	}
	m.entries[k] = lc
	m.order[owner] = append(m.order[owner], id)
	return lc, nil
}

// Get returns the packet registered under (owner, id).
func (m *Manager) Get(owner uuid.UUID, id ID) (*Lifecycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lc, ok := m.entries[Key{Owner: owner, ID: id}]
	if !ok {
		return nil, errs.New(errs.CodeNotFound, "get packet", "%s/%s", owner, id)
	}
	return lc, nil
}

// Owned lists the packets of owner in registration order.
func (m *Manager) Owned(owner uuid.UUID) []ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ID(nil), m.order[owner]...)
}

// Unregister destroys and forgets every packet of owner, newest first.
func (m *Manager) Unregister(ctx context.Context, owner uuid.UUID) error {
	m.mu.Lock()
	ids := m.order[owner]
	lcs := make([]*Lifecycle, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		k := Key{Owner: owner, ID: ids[i]}
		lcs = append(lcs, m.entries[k])
		delete(m.entries, k)
	}
	delete(m.order, owner)
	m.mu.Unlock()

	var errList []error
	for _, lc := range lcs {
		if err := lc.Destroy(ctx); err != nil {
			errList = append(errList, fmt.Errorf("destroy %s: %w", lc.ID(), err))
		}
	}
	return errors.Join(errList...)
}

// Len counts registered packets across owners.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
