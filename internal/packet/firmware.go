// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package packet

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ManuGH/mediahal/internal/codec"
	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/fence"
	"github.com/ManuGH/mediahal/internal/feature"
	"github.com/ManuGH/mediahal/internal/mhw"
	"github.com/ManuGH/mediahal/internal/mos"
)

const (
	kernelBytes = 4096
	// One long-format slice record per slice: offset, size, first CTB, type.
	dmemRecordBytes   = 16
	MaxFirmwareSlices = 256
)

// Slice-to-long conversion kernels.
var kernelIDs = map[codec.Codec]uint32{
	codec.HEVC: 0x10,
	codec.VP9:  0x11,
	codec.AV1:  0x12,
}

// FirmwareLoad runs the slice-to-long conversion kernel on the firmware
// engine. Prepare writes the slice records the kernel reads into a buffer
// owned by the frame's status slot, allocated on first use.
type FirmwareLoad struct {
	deps Deps

	kernel mos.Handle
	dmem   []mos.Handle

	needed   bool
	kernelID uint32
	slot     int
	nSlices  int
}

func NewFirmwareLoad(d Deps) (*FirmwareLoad, error) {
	if err := d.validate("firmware load packet"); err != nil {
		return nil, err
	}
	return &FirmwareLoad{deps: d}, nil
}

func (f *FirmwareLoad) Init(context.Context) error {
	st, err := feature.Lookup[*feature.Status](f.deps.Features, feature.TagStatus)
	if err != nil {
		return err
	}
	if st.Depth() < 1 {
		return errs.New(errs.CodeInvalidParameter, "firmware load packet", "status depth %d", st.Depth())
	}
	kernel, err := f.deps.Resources.Allocate(mos.AllocParams{Name: "huc-kernel", Size: kernelBytes, Kind: mos.KindBuffer})
	if err != nil {
		return err
	}
	f.kernel, f.dmem = kernel, make([]mos.Handle, st.Depth())
	return nil
}

// slotBuffer returns the slice record buffer of status slot i.
func (f *FirmwareLoad) slotBuffer(i int) (mos.Handle, error) {
	if i < 0 || i >= len(f.dmem) {
		return 0, errs.New(errs.CodeInvalidParameter, "firmware load packet", "status slot %d of %d", i, len(f.dmem))
	}
	if f.dmem[i].Valid() {
		return f.dmem[i], nil
	}
	h, err := f.deps.Resources.Allocate(mos.AllocParams{
		Name: fmt.Sprintf("huc-dmem-%d", i),
		Size: MaxFirmwareSlices * dmemRecordBytes,
		Kind: mos.KindBuffer,
	})
	if err != nil {
		return 0, err
	}
	f.dmem[i] = h
	return h, nil
}

func (f *FirmwareLoad) Prepare() error {
	basic, err := feature.Lookup[*feature.Basic](f.deps.Features, feature.TagBasic)
	if err != nil {
		return err
	}
	sl, err := feature.Lookup[*feature.Slice](f.deps.Features, feature.TagSlice)
	if err != nil {
		return err
	}
	fw, err := feature.Lookup[*feature.Firmware](f.deps.Features, feature.TagFirmware)
	if err != nil {
		return err
	}
	st, err := feature.Lookup[*feature.Status](f.deps.Features, feature.TagStatus)
	if err != nil {
		return err
	}

	f.needed = fw.Needed()
	if !f.needed {
		return nil
	}
	id, ok := kernelIDs[basic.Codec()]
	if !ok {
		return errs.New(errs.CodeUnimplemented, "firmware load packet", "no kernel for %s", basic.Codec())
	}
	if sl.Len() > MaxFirmwareSlices {
		return errs.New(errs.CodeInvalidParameter, "firmware load packet", "frame %d: %d slices exceed %d", basic.Frame, sl.Len(), MaxFirmwareSlices)
	}
	if len(f.dmem) == 0 {
		return errs.New(errs.CodeInvalidParameter, "firmware load packet", "not initialized")
	}

	slot := st.Slot()
	buf, err := f.slotBuffer(slot)
	if err != nil {
		return err
	}
	mem, err := f.deps.Resources.Lock(buf)
	if err != nil {
		return err
	}
	for i := 0; i < sl.Len(); i++ {
		sp, err := sl.At(i)
		if err != nil {
			_ = f.deps.Resources.Unlock(buf)
			return err
		}
		rec := mem[i*dmemRecordBytes:]
		binary.LittleEndian.PutUint32(rec[0:], sp.Offset)
		binary.LittleEndian.PutUint32(rec[4:], sp.Size)
		binary.LittleEndian.PutUint32(rec[8:], uint32(sp.FirstCTB))
		binary.LittleEndian.PutUint32(rec[12:], uint32(sp.Type))
	}
	if err := f.deps.Resources.Unlock(buf); err != nil {
		return err
	}

	f.kernelID, f.slot, f.nSlices = id, slot, sl.Len()
	return nil
}

// Needed reports whether the prepared frame uses the firmware stage.
func (f *FirmwareLoad) Needed() bool { return f.needed }

func (f *FirmwareLoad) CalculateCommandSize() int {
	return mhw.SizeOf(mhw.HucImemState{}, mhw.HucDmemState{}, mhw.HucStart{})
}

func (f *FirmwareLoad) Execute(cb *mos.CommandBuffer, t Target) error {
	if t.Stage != StageFirmware {
		return wrongStage(IDFirmwareLoad, t)
	}
	if !f.needed {
		return errs.New(errs.CodeInvalidParameter, "firmware load packet", "frame does not use the firmware stage")
	}
	return f.deps.Emitter.Emit(cb,
		mhw.HucImemState{Kernel: mhw.Address{Resource: f.kernel}, KernelID: f.kernelID},
		mhw.HucDmemState{Data: mhw.Address{Resource: f.dmem[f.slot]}, Size: uint32(f.nSlices * dmemRecordBytes)},
		mhw.HucStart{LastStream: true},
	)
}

func (f *FirmwareLoad) Destroy() error {
	var errList []error
	for _, h := range append(f.dmem, f.kernel) {
		if !h.Valid() {
			continue
		}
		if err := f.deps.Resources.Free(h); err != nil {
			errList = append(errList, err)
		}
	}
	f.dmem, f.kernel = nil, 0
	return errors.Join(errList...)
}

// Authenticator opens the authentication loop in front of a firmware
// payload.
type Authenticator interface {
	AddAuthCheck(cb *mos.CommandBuffer) error
}

// FirmwareAuth opens the authentication check on generations that require
// it. The pipeline places the load payload and the watchdog stop after it.
type FirmwareAuth struct {
	deps Deps
	auth Authenticator

	check bool
}

func NewFirmwareAuth(d Deps, auth Authenticator) (*FirmwareAuth, error) {
	if err := d.validate("firmware auth packet"); err != nil {
		return nil, err
	}
	if auth == nil {
		return nil, errs.New(errs.CodeInvalidParameter, "firmware auth packet", "authenticator is required")
	}
	return &FirmwareAuth{deps: d, auth: auth}, nil
}

func (f *FirmwareAuth) Init(context.Context) error { return nil }

func (f *FirmwareAuth) Prepare() error {
	fw, err := feature.Lookup[*feature.Firmware](f.deps.Features, feature.TagFirmware)
	if err != nil {
		return err
	}
	f.check = fw.AuthCheck()
	return nil
}

// Checked reports whether the prepared frame runs the authentication loop.
func (f *FirmwareAuth) Checked() bool { return f.check }

func (f *FirmwareAuth) CalculateCommandSize() int {
	if !f.check {
		return 0
	}
	return fence.AuthCheckSize()
}

func (f *FirmwareAuth) Execute(cb *mos.CommandBuffer, t Target) error {
	if t.Stage != StageFirmware {
		return wrongStage(IDFirmwareAuth, t)
	}
	if !f.check {
		return errs.New(errs.CodeInvalidParameter, "firmware auth packet", "frame runs without authentication")
	}
	return f.auth.AddAuthCheck(cb)
}

func (f *FirmwareAuth) Destroy() error { return nil }
