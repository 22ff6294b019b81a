package telemetry

import (
	"encoding/binary"
	"fmt"
	"math"
)

// BinaryFrameSize is the length of the fallback binary frame: two 4-byte
// IEEE-754 floats, heading first.
const BinaryFrameSize = 8

// Reading is one decoded (heading, IR bearing) pair, both in degrees. Values
// are passed through exactly as received; nothing is clamped or validated.
type Reading struct {
	Heading   float64 `json:"heading"`
	IRBearing float64 `json:"ir_bearing"`
}

func (r Reading) String() string {
	return fmt.Sprintf("heading=%.1f ir=%.1f", r.Heading, r.IRBearing)
}

// DecodeBinaryFrame interprets the first BinaryFrameSize bytes of raw as two
// little-endian float32 values. It reports false when raw is too short.
func DecodeBinaryFrame(raw []byte) (Reading, bool) {
	if len(raw) < BinaryFrameSize {
		return Reading{}, false
	}
	heading := math.Float32frombits(binary.LittleEndian.Uint32(raw[0:4]))
	ir := math.Float32frombits(binary.LittleEndian.Uint32(raw[4:8]))
	return Reading{Heading: float64(heading), IRBearing: float64(ir)}, true
}

// EncodeBinaryFrame is the inverse of DecodeBinaryFrame. Precision beyond
// float32 is lost.
func EncodeBinaryFrame(r Reading) []byte {
	frame := make([]byte, BinaryFrameSize)
	binary.LittleEndian.PutUint32(frame[0:4], math.Float32bits(float32(r.Heading)))
	binary.LittleEndian.PutUint32(frame[4:8], math.Float32bits(float32(r.IRBearing)))
	return frame
}
