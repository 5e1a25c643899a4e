// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package packet

import (
	"context"
	"errors"

	"github.com/ManuGH/mediahal/internal/codec"
	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/feature"
	"github.com/ManuGH/mediahal/internal/mhw"
	"github.com/ManuGH/mediahal/internal/mos"
	"github.com/ManuGH/mediahal/internal/scalability"
)

const (
	rowStoreBytesPerCTB = 64
	rowStoreInitialCTBs = 32
)

// Picture programs pipe mode, surfaces and picture-level state.
type Picture struct {
	deps Deps

	rowStore     mos.Handle
	rowStoreSize int

	// retired row stores may still be referenced by frames in flight.
	retired []mos.Handle

	codec     codec.Codec
	pic       codec.PicParams
	widthCTB  int
	heightCTB int
	dest      mos.Handle
	refs      []mos.Handle
	opt       scalability.Option
	stride    int
}

func NewPicture(d Deps) (*Picture, error) {
	if err := d.validate("picture packet"); err != nil {
		return nil, err
	}
	return &Picture{deps: d}, nil
}

func (p *Picture) Init(context.Context) error {
	return p.ensureRowStore(rowStoreInitialCTBs * rowStoreBytesPerCTB)
}

// ensureRowStore grows the row store to at least size bytes.
func (p *Picture) ensureRowStore(size int) error {
	if p.rowStore.Valid() && p.rowStoreSize >= size {
		return nil
	}
	h, err := p.deps.Resources.Allocate(mos.AllocParams{Name: "row-store", Size: size, Kind: mos.KindBuffer})
	if err != nil {
		return err
	}
	if p.rowStore.Valid() {
		p.retired = append(p.retired, p.rowStore)
	}
	p.rowStore, p.rowStoreSize = h, size
	return nil
}

func (p *Picture) Prepare() error {
	basic, err := feature.Lookup[*feature.Basic](p.deps.Features, feature.TagBasic)
	if err != nil {
		return err
	}
	refs, err := feature.Lookup[*feature.RefList](p.deps.Features, feature.TagRefList)
	if err != nil {
		return err
	}
	sc, err := feature.Lookup[*feature.Scalability](p.deps.Features, feature.TagScalability)
	if err != nil {
		return err
	}

	p.codec = basic.Codec()
	p.pic = basic.Pic
	p.widthCTB, p.heightCTB = basic.WidthInCTBs, basic.HeightInCTBs
	p.dest = basic.Dest
	p.opt = sc.Option()
	p.refs = p.refs[:0]
	for i := 0; i < refs.Len(); i++ {
		h, err := refs.Ref(i)
		if err != nil {
			return err
		}
		p.refs = append(p.refs, h)
	}

	p.stride = p.widthCTB * rowStoreBytesPerCTB
	return p.ensureRowStore(p.stride * max(p.opt.NumPipe, 1))
}

func (p *Picture) CalculateCommandSize() int {
	return mhw.SizeOf(
		mhw.PipeModeSelect{},
		mhw.SurfaceState{},
		mhw.SurfaceState{},
		mhw.PictureState{Padding: p.deps.Traits.PicStatePadding},
	) + len(p.refs)*mhw.SizeOf(mhw.SurfaceState{})
}

func (p *Picture) Execute(cb *mos.CommandBuffer, t Target) error {
	mode, ok := t.Stage.PipeMode()
	if !ok {
		return wrongStage(IDPicture, t)
	}
	numPipes := 1
	if t.Stage != StageLong {
		numPipes = p.opt.NumPipe
	}
	if t.Pipe < 0 || t.Pipe >= numPipes {
		return errs.New(errs.CodeInvalidParameter, "picture packet", "pipe %d of %d", t.Pipe, numPipes)
	}

	cmds := make([]mhw.Command, 0, 4+len(p.refs))
	cmds = append(cmds,
		mhw.PipeModeSelect{Codec: uint32(p.codec), Mode: mode, Pipe: uint32(t.Pipe), NumPipes: uint32(numPipes)},
		mhw.SurfaceState{ID: mhw.SurfaceDest, Surface: mhw.Address{Resource: p.dest}, Width: uint32(p.pic.Width), Height: uint32(p.pic.Height)},
		mhw.SurfaceState{ID: mhw.SurfaceRowStore, Surface: mhw.Address{Resource: p.rowStore, Offset: uint32(t.Pipe * p.stride)}, Width: uint32(p.stride)},
	)
	for _, ref := range p.refs {
		cmds = append(cmds, mhw.SurfaceState{ID: mhw.SurfaceRef, Surface: mhw.Address{Resource: ref}, Width: uint32(p.pic.Width), Height: uint32(p.pic.Height)})
	}
	cmds = append(cmds, mhw.PictureState{
		WidthInCTBs:  uint32(p.widthCTB),
		HeightInCTBs: uint32(p.heightCTB),
		CTBLog2:      uint32(p.pic.CTBLog2),
		BitDepth:     uint32(p.pic.BitDepth),
		TileColumns:  uint32(p.pic.Columns()),
		TileRows:     uint32(p.pic.Rows()),
		Padding:      p.deps.Traits.PicStatePadding,
	})
	return p.deps.Emitter.Emit(cb, cmds...)
}

func (p *Picture) Destroy() error {
	var errList []error
	for _, h := range append(p.retired, p.rowStore) {
		if !h.Valid() {
			continue
		}
		if err := p.deps.Resources.Free(h); err != nil {
			errList = append(errList, err)
		}
	}
	p.retired, p.rowStore, p.rowStoreSize = nil, 0, 0
	return errors.Join(errList...)
}
