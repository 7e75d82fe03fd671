package fingerprint

import (
	"errors"
	"fmt"
	"image"
)

const (
	// GridSize is the side of the downsampled luminance grid used for the
	// perceptual hash.
	GridSize = 32
	// HashBits is the length L of the perceptual hash.
	HashBits = GridSize * GridSize

	HistogramBuckets = 8
	Channels         = 3

	StructuralGrid   = 3
	StructuralCells  = StructuralGrid * StructuralGrid
	StructuralStride = 10

	bytesPerPixel = 4
	hashWords     = HashBits / 64
)

var (
	ErrEmptyFrame  = errors.New("frame must be at least 1x1")
	ErrShortBuffer = errors.New("pixel buffer shorter than width*height*4")
)

// Fingerprint is the visual signature of one frame. It is a plain value and
// is never modified after Compute returns it.
type Fingerprint struct {
	// Bits is the perceptual hash, bit i = y*GridSize+x.
	Bits [hashWords]uint64

	// Histogram holds per-channel (R, G, B) bucket counts over every pixel.
	Histogram [Channels][HistogramBuckets]int

	// Structural holds the average luminance of each 3x3 region, row-major.
	Structural [StructuralCells]float64
}

// Bit reports whether perceptual hash bit i is set.
func (f *Fingerprint) Bit(i int) bool {
	return f.Bits[i/64]&(1<<uint(i%64)) != 0
}

func (f *Fingerprint) setBit(i int) {
	f.Bits[i/64] |= 1 << uint(i%64)
}

// Compute fingerprints an RGBA pixel buffer laid out row by row with no
// padding (4 bytes per pixel). Alpha is ignored.
func Compute(pix []byte, width, height int) (Fingerprint, error) {
	var fp Fingerprint

	if width < 1 || height < 1 {
		return fp, ErrEmptyFrame
	}
	if len(pix) < width*height*bytesPerPixel {
		return fp, fmt.Errorf("%w: got %d bytes for %dx%d", ErrShortBuffer, len(pix), width, height)
	}

	stride := width * bytesPerPixel
	fp.Bits = perceptualHash(pix, stride, width, height)
	fp.Histogram = colorHistogram(pix, width*height)
	fp.Structural = structuralSummary(pix, stride, width, height)

	return fp, nil
}

// FromImage fingerprints an *image.RGBA, honouring its stride and bounds.
func FromImage(img *image.RGBA) (Fingerprint, error) {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width < 1 || height < 1 {
		return Fingerprint{}, ErrEmptyFrame
	}

	if img.Stride == width*bytesPerPixel && b.Min == (image.Point{}) {
		return Compute(img.Pix, width, height)
	}

	pix := make([]byte, 0, width*height*bytesPerPixel)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		start := img.PixOffset(b.Min.X, y)
		pix = append(pix, img.Pix[start:start+width*bytesPerPixel]...)
	}
	return Compute(pix, width, height)
}

func luminance(pix []byte, offset int) float64 {
	return 0.299*float64(pix[offset]) + 0.587*float64(pix[offset+1]) + 0.114*float64(pix[offset+2])
}

func perceptualHash(pix []byte, stride, width, height int) [hashWords]uint64 {
	var cells [HashBits]float64
	var sum float64

	for y := 0; y < GridSize; y++ {
		srcY := y * height / GridSize
		for x := 0; x < GridSize; x++ {
			srcX := x * width / GridSize
			lum := luminance(pix, srcY*stride+srcX*bytesPerPixel)
			cells[y*GridSize+x] = lum
			sum += lum
		}
	}

	mean := sum / HashBits

	var fp Fingerprint
	for i, lum := range cells {
		if lum > mean {
			fp.setBit(i)
		}
	}
	return fp.Bits
}

func colorHistogram(pix []byte, pixels int) [Channels][HistogramBuckets]int {
	var hist [Channels][HistogramBuckets]int

	for p := 0; p < pixels; p++ {
		offset := p * bytesPerPixel
		for c := 0; c < Channels; c++ {
			hist[c][bucket(pix[offset+c])]++
		}
	}
	return hist
}

func bucket(v byte) int {
	b := int(v) * HistogramBuckets / 256
	if b > HistogramBuckets-1 {
		b = HistogramBuckets - 1
	}
	return b
}

func structuralSummary(pix []byte, stride, width, height int) [StructuralCells]float64 {
	var out [StructuralCells]float64

	for qy := 0; qy < StructuralGrid; qy++ {
		y0, y1 := qy*height/StructuralGrid, (qy+1)*height/StructuralGrid
		for qx := 0; qx < StructuralGrid; qx++ {
			x0, x1 := qx*width/StructuralGrid, (qx+1)*width/StructuralGrid

			var sum float64
			var n int
			for y := y0; y < y1; y += StructuralStride {
				for x := x0; x < x1; x += StructuralStride {
					sum += luminance(pix, y*stride+x*bytesPerPixel)
					n++
				}
			}
			if n > 0 {
				out[qy*StructuralGrid+qx] = sum / float64(n)
			}
		}
	}
	return out
}
