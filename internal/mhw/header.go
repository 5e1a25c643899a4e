// Package mhw encodes hardware commands into dword streams. It owns the
// bit layouts; the rest of the driver only builds command values.
package mhw

import "fmt"

// Header dword layout.
const (
	ClientShift = 29
	ClientMask  = uint32(0x7) << ClientShift

	OpcodeShift = 16
	OpcodeMask  = uint32(0x1FFF) << OpcodeShift

	LengthShift = 0
	LengthMask  = uint32(0xFFFF) << LengthShift

	// LengthBias is subtracted from the total dword count before packing.
	LengthBias = 2

	MaxOpcode  = 0x1FFF
	MaxDwords  = 0xFFFF + LengthBias
	maxClients = 0x7
)

// Client selects the command parser.
type Client uint32

const (
	ClientMI    Client = 0
	ClientVideo Client = 3
)

// Opcode identifies a command within its client.
type Opcode uint16

// Header is the unpacked first dword of every command.
type Header struct {
	Client Client
	Opcode Opcode
	// Dwords is the total command length including the header.
	Dwords int
}

// PackHeader encodes h. Lengths below LengthBias or above MaxDwords and
// out-of-range client/opcode values are rejected.
func PackHeader(h Header) (uint32, error) {
	if uint32(h.Client) > maxClients {
		return 0, fmt.Errorf("client %d out of range", h.Client)
	}
	if h.Opcode > MaxOpcode {
		return 0, fmt.Errorf("opcode %#x out of range", h.Opcode)
	}
	if h.Dwords < LengthBias || h.Dwords > MaxDwords {
		return 0, fmt.Errorf("length %d out of range", h.Dwords)
	}
	return uint32(h.Client)<<ClientShift&ClientMask |
		uint32(h.Opcode)<<OpcodeShift&OpcodeMask |
		uint32(h.Dwords-LengthBias)<<LengthShift&LengthMask, nil
}

// UnpackHeader decodes a header dword.
func UnpackHeader(dw uint32) Header {
	return Header{
		Client: Client((dw & ClientMask) >> ClientShift),
		Opcode: Opcode((dw & OpcodeMask) >> OpcodeShift),
		Dwords: int((dw&LengthMask)>>LengthShift) + LengthBias,
	}
}

func (h Header) key() uint32 { return uint32(h.Client)<<16 | uint32(h.Opcode) }
