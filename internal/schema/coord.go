package schema

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeCoords decodes n consecutive coordinate tuples from raw bytes
// (each tuple NumDims wide) into float64, the single representation
// every downstream comparison, overlap test and Hilbert computation
// operates on. This is the one place coordinate element type is
// dispatched on: everything after this call is type-generic.
func (s *Schema) DecodeCoords(raw []byte, n int) ([]float64, error) {
	width := s.CoordType.Size()
	want := n * s.NumDims * width
	if len(raw) < want {
		return nil, fmt.Errorf("schema: short coordinate buffer: have %d bytes, need %d", len(raw), want)
	}
	out := make([]float64, n*s.NumDims)
	for i := range out {
		off := i * width
		switch s.CoordType {
		case Int32:
			out[i] = float64(int32(binary.LittleEndian.Uint32(raw[off:])))
		case Int64:
			out[i] = float64(int64(binary.LittleEndian.Uint64(raw[off:])))
		case Float32:
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[off:])))
		case Float64:
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[off:]))
		default:
			return nil, fmt.Errorf("schema: unsupported coordinate type %v", s.CoordType)
		}
	}
	return out, nil
}

// EncodeCoord encodes one coordinate value back to its on-disk byte
// width. Used only by the synthetic-fragment test fixture generator.
func (s *Schema) EncodeCoord(v float64) ([]byte, error) {
	buf := make([]byte, s.CoordType.Size())
	switch s.CoordType {
	case Int32:
		binary.LittleEndian.PutUint32(buf, uint32(int32(v)))
	case Int64:
		binary.LittleEndian.PutUint64(buf, uint64(int64(v)))
	case Float32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	default:
		return nil, fmt.Errorf("schema: unsupported coordinate type %v", s.CoordType)
	}
	return buf, nil
}

// ToInt64Tuple converts a decoded float64 coordinate tuple to int64,
// valid only for dense fragments (which require integer coordinates).
func ToInt64Tuple(coords []float64) []int64 {
	out := make([]int64, len(coords))
	for i, c := range coords {
		out[i] = int64(c)
	}
	return out
}
