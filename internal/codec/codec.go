package codec

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// FrameBytes returns the size of one frame for the given physical bit depth.
func FrameBytes(bitDepth int) int {
	return bitDepth / 8
}

// Decode discards the low don't-care bits of a raw frame.
// The shift is arithmetic so negative samples stay negative.
func Decode(frame int32, shift uint) int32 {
	return frame >> shift
}

// FrameAt reads the i-th little-endian signed frame from a block.
func FrameAt(block []byte, i int, bitDepth int) int32 {
	switch bitDepth {
	case 16:
		return int32(int16(binary.LittleEndian.Uint16(block[i*2:])))
	case 32:
		return int32(binary.LittleEndian.Uint32(block[i*4:]))
	default:
		panic(fmt.Sprintf("codec: unsupported bit depth %d", bitDepth))
	}
}

// PutFrame writes frame as a little-endian signed value at index i.
func PutFrame(block []byte, i int, bitDepth int, frame int32) {
	switch bitDepth {
	case 16:
		binary.LittleEndian.PutUint16(block[i*2:], uint16(int16(frame)))
	case 32:
		binary.LittleEndian.PutUint32(block[i*4:], uint32(frame))
	default:
		panic(fmt.Sprintf("codec: unsupported bit depth %d", bitDepth))
	}
}

// AppendLine appends the decimal form of v followed by a newline.
func AppendLine(dst []byte, v int32) []byte {
	dst = strconv.AppendInt(dst, int64(v), 10)
	return append(dst, '\n')
}

// AppendDecoded decodes every whole frame in block and appends one line per
// sample to dst. Trailing partial frames are ignored.
func AppendDecoded(dst, block []byte, bitDepth int, shift uint) []byte {
	n := len(block) / FrameBytes(bitDepth)
	for i := 0; i < n; i++ {
		dst = AppendLine(dst, Decode(FrameAt(block, i, bitDepth), shift))
	}
	return dst
}

// ToInt16 narrows a raw frame to a 16-bit sample for playback: the frame is
// decoded with shift and then reduced to its top 16 significant bits.
func ToInt16(frame int32, bitDepth int, shift uint) int16 {
	v := Decode(frame, shift)
	logical := bitDepth - int(shift)
	if logical > 16 {
		v >>= uint(logical - 16)
	}
	return int16(v)
}
