package fingerprint

import (
	"encoding/binary"
	"errors"
	"math"
)

// EncodedSize is the length of the binary form produced by MarshalBinary.
const EncodedSize = hashWords*8 + Channels*HistogramBuckets*4 + StructuralCells*8

var ErrBadEncoding = errors.New("invalid fingerprint encoding")

// MarshalBinary packs the fingerprint little-endian: hash words, then
// histogram counts as uint32, then structural averages as float64 bits.
func (f Fingerprint) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, EncodedSize)
	for _, w := range f.Bits {
		buf = binary.LittleEndian.AppendUint64(buf, w)
	}
	for c := range f.Histogram {
		for _, n := range f.Histogram[c] {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(n))
		}
	}
	for _, v := range f.Structural {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf, nil
}

func (f *Fingerprint) UnmarshalBinary(data []byte) error {
	if len(data) != EncodedSize {
		return ErrBadEncoding
	}

	off := 0
	for i := range f.Bits {
		f.Bits[i] = binary.LittleEndian.Uint64(data[off:])
		off += 8
	}
	for c := range f.Histogram {
		for k := range f.Histogram[c] {
			f.Histogram[c][k] = int(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
	}
	for i := range f.Structural {
		f.Structural[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[off:]))
		off += 8
	}
	return nil
}
