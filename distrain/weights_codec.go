package distrain

import (
	"encoding/binary"
	"math"
)

// Binary wire encoding for a WeightSet, used by the socket transport. All
// integers are big-endian uint32. Layout:
//   numTensors, then per tensor: numDims, dims..., float64 data bits...
// The format supports arbitrary-shape numeric array sequences.

func EncodeWeights(w WeightSet) []byte {
	size := 4
	for _, t := range w {
		size += 4 + 4*len(t.Shape) + 8*len(t.Data)
	}
	buf := make([]byte, size)
	pos := 0
	binary.BigEndian.PutUint32(buf[pos:], uint32(len(w)))
	pos += 4
	for _, t := range w {
		binary.BigEndian.PutUint32(buf[pos:], uint32(len(t.Shape)))
		pos += 4
		for _, d := range t.Shape {
			binary.BigEndian.PutUint32(buf[pos:], uint32(d))
			pos += 4
		}
		for _, x := range t.Data {
			binary.BigEndian.PutUint64(buf[pos:], math.Float64bits(x))
			pos += 8
		}
	}
	return buf
}

func DecodeWeights(buf []byte) (WeightSet, error) {
	pos := 0
	readUint32 := func() (uint32, bool) {
		if pos+4 > len(buf) {
			return 0, false
		}
		x := binary.BigEndian.Uint32(buf[pos:])
		pos += 4
		return x, true
	}

	numTensors, ok := readUint32()
	if !ok {
		return nil, SerializationError{Reason: "undersized weight payload"}
	}
	w := make(WeightSet, 0, numTensors)
	for i := 0; i < int(numTensors); i++ {
		numDims, ok := readUint32()
		if !ok {
			return nil, SerializationError{Reason: "truncated tensor header"}
		}
		// dims and elements come off the wire, so bound every count against
		// the bytes actually present before allocating or multiplying
		if int(numDims) > (len(buf)-pos)/4 {
			return nil, SerializationError{Reason: "tensor dim count exceeds payload"}
		}
		shape := make([]int, numDims)
		size := 1
		maxElems := len(buf) / 8
		for j := range shape {
			d, ok := readUint32()
			if !ok {
				return nil, SerializationError{Reason: "truncated tensor shape"}
			}
			shape[j] = int(d)
			if int(d) != 0 && size > maxElems/int(d) {
				return nil, SerializationError{Reason: "tensor size exceeds payload"}
			}
			size *= int(d)
		}
		if pos+8*size > len(buf) {
			return nil, SerializationError{Reason: "truncated tensor data"}
		}
		t := Tensor{Shape: shape, Data: make([]float64, size)}
		for j := 0; j < size; j++ {
			t.Data[j] = math.Float64frombits(binary.BigEndian.Uint64(buf[pos:]))
			pos += 8
		}
		w = append(w, t)
	}
	if pos != len(buf) {
		return nil, SerializationError{Reason: "trailing bytes after weight payload"}
	}
	return w, nil
}
