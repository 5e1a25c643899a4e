// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package mos describes the OS-level services the media HAL consumes:
// GPU-visible resources, per-engine execution contexts and command buffer
// submission. The HAL treats every implementation as opaque.
package mos

import (
	"fmt"
)

// Handle identifies a GPU-visible resource. The zero value is invalid.
type Handle uint32

// Valid reports whether h refers to an allocated resource.
func (h Handle) Valid() bool { return h != 0 }

// Engine identifies a class of hardware engine.
type Engine int

const (
	EngineVideo Engine = iota
	EngineFirmware
	EngineVideoProcess
)

// String returns the engine label used in logs and metrics.
func (e Engine) String() string {
	switch e {
	case EngineVideo:
		return "vdbox"
	case EngineFirmware:
		return "huc"
	case EngineVideoProcess:
		return "vebox"
	default:
		return "unknown"
	}
}

// ResourceKind hints the allocator about the intended use.
type ResourceKind int

const (
	KindBuffer ResourceKind = iota
	KindSurface
	KindBatchBuffer
)

// AllocParams describes one allocation request.
type AllocParams struct {
	Name string
	Size int
	Kind ResourceKind
}

// ResourceService allocates GPU-visible memory. Allocate reports
// errs.CodeNoSpace when the request cannot be satisfied.
type ResourceService interface {
	Allocate(p AllocParams) (Handle, error)
	// Lock maps the resource for CPU access. The returned slice aliases the
	// resource until Unlock.
	Lock(h Handle) ([]byte, error)
	Unlock(h Handle) error
	Free(h Handle) error
}

// ContextID identifies a GPU execution context.
type ContextID uint32

// ContextParams binds a context to an engine instance. Contexts with
// different Stream values on one engine instance are scheduled
// independently and order only through semaphores.
type ContextParams struct {
	Engine Engine
	Pipe   int
	Stream int
}

func (p ContextParams) String() string {
	if p.Stream > 0 {
		return fmt.Sprintf("%s%d.%d", p.Engine, p.Pipe, p.Stream)
	}
	return fmt.Sprintf("%s%d", p.Engine, p.Pipe)
}

// ContextService creates and selects execution contexts. At most one
// context is current at a time.
type ContextService interface {
	CreateContext(p ContextParams) (ContextID, error)
	DestroyContext(id ContextID) error
	SetCurrent(id ContextID) error
	Current() (ContextID, bool)
}

// Fence reports completion of one submission. Status never blocks; done is
// true once the engine retired the submission, err is non-nil when it was
// retired by a reset instead of completing.
type Fence interface {
	ID() string
	Status() (done bool, err error)
}

// Submitter hands a sealed command buffer to the engine bound to ctx.
// Ownership of cb transfers to the submission queue.
type Submitter interface {
	Submit(ctx ContextID, cb *CommandBuffer) (Fence, error)
}

// DeviceInfo is what the platform reports about itself.
type DeviceInfo struct {
	Generation    string
	NumVideoPipes int
}

// Device bundles the services a pipeline needs.
type Device interface {
	ResourceService
	ContextService
	Submitter
	Info() DeviceInfo
}
