package mhw

import (
	"fmt"
)

type decodable[T any] interface {
	*T
	Command
	decodeBody(r *reader) error
}

type decodeFunc func(r *reader) (Command, error)

func decoderFor[T any, PT decodable[T]]() decodeFunc {
	return func(r *reader) (Command, error) {
		var c T
		if err := PT(&c).decodeBody(r); err != nil {
			return nil, err
		}
		return any(c).(Command), nil
	}
}

var decoders = map[uint32]decodeFunc{
	Header{Client: ClientMI, Opcode: OpNoop}.key():                      decoderFor[Noop](),
	Header{Client: ClientMI, Opcode: OpBatchBufferStart}.key():          decoderFor[BatchBufferStart](),
	Header{Client: ClientMI, Opcode: OpBatchBufferEnd}.key():            decoderFor[BatchBufferEnd](),
	Header{Client: ClientMI, Opcode: OpConditionalBatchBufferEnd}.key(): decoderFor[ConditionalBatchBufferEnd](),
	Header{Client: ClientMI, Opcode: OpStoreDataImm}.key():              decoderFor[StoreDataImm](),
	Header{Client: ClientMI, Opcode: OpStoreRegisterMem}.key():          decoderFor[StoreRegisterMem](),
	Header{Client: ClientMI, Opcode: OpLoadRegisterImm}.key():           decoderFor[LoadRegisterImm](),
	Header{Client: ClientMI, Opcode: OpFlushDw}.key():                   decoderFor[FlushDw](),
	Header{Client: ClientMI, Opcode: OpSemaphoreSignal}.key():           decoderFor[SemaphoreSignal](),
	Header{Client: ClientMI, Opcode: OpSemaphoreWait}.key():             decoderFor[SemaphoreWait](),

	Header{Client: ClientVideo, Opcode: OpPipeModeSelect}.key(): decoderFor[PipeModeSelect](),
	Header{Client: ClientVideo, Opcode: OpSurfaceState}.key():   decoderFor[SurfaceState](),
	Header{Client: ClientVideo, Opcode: OpPictureState}.key():   decoderFor[PictureState](),
	Header{Client: ClientVideo, Opcode: OpTileCoding}.key():     decoderFor[TileCoding](),
	Header{Client: ClientVideo, Opcode: OpSliceState}.key():     decoderFor[SliceState](),
	Header{Client: ClientVideo, Opcode: OpBsdObject}.key():      decoderFor[BsdObject](),
	Header{Client: ClientVideo, Opcode: OpPipelineFlush}.key():  decoderFor[PipelineFlush](),
	Header{Client: ClientVideo, Opcode: OpHucImemState}.key():   decoderFor[HucImemState](),
	Header{Client: ClientVideo, Opcode: OpHucDmemState}.key():   decoderFor[HucDmemState](),
	Header{Client: ClientVideo, Opcode: OpHucStart}.key():       decoderFor[HucStart](),
	Header{Client: ClientVideo, Opcode: OpSfcState}.key():       decoderFor[SfcState](),
	Header{Client: ClientVideo, Opcode: OpSfcFrameStart}.key():  decoderFor[SfcFrameStart](),
}

// Decode parses the command starting at dws[0] and returns it with its
// length in dwords.
func Decode(dws []uint32) (Command, int, error) {
	if len(dws) == 0 {
		return nil, 0, fmt.Errorf("decode: empty stream")
	}
	h := UnpackHeader(dws[0])
	if h.Dwords > len(dws) {
		return nil, 0, fmt.Errorf("decode: command %#x/%#x claims %d dwords, %d left", h.Client, h.Opcode, h.Dwords, len(dws))
	}
	dec, ok := decoders[h.key()]
	if !ok {
		return nil, 0, fmt.Errorf("decode: unknown command %#x/%#x", h.Client, h.Opcode)
	}
	r := &reader{dw: dws[1:h.Dwords]}
	cmd, err := dec(r)
	if err != nil {
		return nil, 0, fmt.Errorf("decode %T: %w", cmd, err)
	}
	if r.overrun() || r.pos != len(r.dw) {
		return nil, 0, fmt.Errorf("decode: command %#x/%#x body is %d dwords, parsed %d", h.Client, h.Opcode, len(r.dw), r.pos)
	}
	return cmd, h.Dwords, nil
}

// DecodeAll parses a complete stream.
func DecodeAll(dws []uint32) ([]Command, error) {
	var out []Command
	for pos := 0; pos < len(dws); {
		cmd, n, err := Decode(dws[pos:])
		if err != nil {
			return out, fmt.Errorf("at dword %d: %w", pos, err)
		}
		out = append(out, cmd)
		pos += n
	}
	return out, nil
}
