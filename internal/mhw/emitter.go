// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mhw

import (
	"fmt"

	"github.com/ManuGH/mediahal/internal/mos"
)

// Emitter appends encoded commands to a command buffer and records one
// relocation per resource reference.
type Emitter interface {
	Emit(cb *mos.CommandBuffer, cmds ...Command) error
}

// DwordEmitter is the Emitter for every supported generation. Generation
// differences are carried by the command values themselves (see Traits).
type DwordEmitter struct{}

// NewEmitter returns the default emitter.
func NewEmitter() *DwordEmitter { return &DwordEmitter{} }

// Emit encodes cmds in order. On error nothing from the failing command
// is appended; earlier commands stay.
func (DwordEmitter) Emit(cb *mos.CommandBuffer, cmds ...Command) error {
	if cb == nil {
		return fmt.Errorf("emit: nil command buffer")
	}
	for _, cmd := range cmds {
		w, err := encode(cmd)
		if err != nil {
			return fmt.Errorf("emit: %w", err)
		}
		base := cb.Len()
		if err := cb.Append(w.dw...); err != nil {
			return err
		}
		for _, r := range w.relocs {
			if err := cb.AddReloc(mos.Reloc{
				Dword:    base + r.index,
				Resource: r.addr.Resource,
				Offset:   r.addr.Offset,
				Write:    r.write,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
