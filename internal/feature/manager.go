// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package feature holds the per-frame parameter state packets read.
package feature

import (
	"github.com/ManuGH/mediahal/internal/codec"
	"github.com/ManuGH/mediahal/internal/errs"
)

// Tag identifies a feature inside one pipeline.
type Tag int

const (
	TagBasic Tag = iota
	TagTile
	TagSlice
	TagRefList
	TagDownSampling
	TagFirmware
	TagScalability
	TagStatus
)

func (t Tag) String() string {
	switch t {
	case TagBasic:
		return "basic"
	case TagTile:
		return "tile"
	case TagSlice:
		return "slice"
	case TagRefList:
		return "ref_list"
	case TagDownSampling:
		return "down_sampling"
	case TagFirmware:
		return "firmware"
	case TagScalability:
		return "scalability"
	case TagStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Feature owns one slice of the current frame's parameters. Update is the
// only writer and runs once per frame before any packet reads the state.
type Feature interface {
	Update(req *codec.FrameRequest) error
}

// Manager is the registry of a pipeline's features. It is populated once
// at construction and then only read.
type Manager struct {
	features map[Tag]Feature
	order    []Tag
}

// NewManager returns an empty registry.
func NewManager() *Manager {
	return &Manager{features: make(map[Tag]Feature)}
}

// Register adds f under tag.
func (m *Manager) Register(tag Tag, f Feature) error {
	if f == nil {
		return errs.New(errs.CodeInvalidParameter, "register feature", "nil %s feature", tag)
	}
	if _, exists := m.features[tag]; exists {
		return errs.New(errs.CodeAlreadyRegistered, "register feature", "%s", tag)
	}
	m.features[tag] = f
	m.order = append(m.order, tag)
	return nil
}

// Get returns the feature registered under tag. The reference is borrowed;
// NotFound is a configuration error.
func (m *Manager) Get(tag Tag) (Feature, error) {
	f, ok := m.features[tag]
	if !ok {
		return nil, errs.New(errs.CodeNotFound, "get feature", "%s", tag)
	}
	return f, nil
}

// Tags lists registered tags in registration order.
func (m *Manager) Tags() []Tag {
	out := make([]Tag, len(m.order))
	copy(out, m.order)
	return out
}

// UpdateAll updates every feature in registration order and stops at the
// first failure.
func (m *Manager) UpdateAll(req *codec.FrameRequest) error {
	if req == nil {
		return errs.New(errs.CodeInvalidParameter, "update features", "nil frame request")
	}
	for _, tag := range m.order {
		if err := m.features[tag].Update(req); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the feature under tag as its concrete type.
func Lookup[T Feature](m *Manager, tag Tag) (T, error) {
	var zero T
	if m == nil {
		return zero, errs.New(errs.CodeInvalidParameter, "lookup feature", "nil manager")
	}
	f, err := m.Get(tag)
	if err != nil {
		return zero, err
	}
	t, ok := f.(T)
	if !ok {
		return zero, errs.New(errs.CodeInvalidParameter, "lookup feature", "%s is %T", tag, f)
	}
	return t, nil
}
