package fingerprint

import (
	"math"
	"math/bits"
)

const (
	perceptualWeight = 0.5
	histogramWeight  = 0.3
	structuralWeight = 0.2
)

// Compare scores how alike two fingerprints are, from 0 (nothing in common)
// to 100 (identical). A nil fingerprint scores 0 against anything.
func Compare(a, b *Fingerprint) float64 {
	if a == nil || b == nil {
		return 0
	}

	score := perceptualWeight*PerceptualSimilarity(a, b) +
		histogramWeight*HistogramSimilarity(a, b) +
		structuralWeight*StructuralSimilarity(a, b)

	return math.Max(0, math.Min(score, 100))
}

// HammingDistance counts the perceptual hash bits that differ.
func HammingDistance(a, b *Fingerprint) int {
	d := 0
	for i := range a.Bits {
		d += bits.OnesCount64(a.Bits[i] ^ b.Bits[i])
	}
	return d
}

func PerceptualSimilarity(a, b *Fingerprint) float64 {
	return float64(HashBits-HammingDistance(a, b)) / HashBits * 100
}

// HistogramSimilarity is the histogram intersection taken over all channel
// buckets at once.
func HistogramSimilarity(a, b *Fingerprint) float64 {
	var minSum, maxSum int
	for c := 0; c < Channels; c++ {
		for k := 0; k < HistogramBuckets; k++ {
			x, y := a.Histogram[c][k], b.Histogram[c][k]
			if x < y {
				minSum += x
				maxSum += y
			} else {
				minSum += y
				maxSum += x
			}
		}
	}
	if maxSum == 0 {
		return 100
	}
	return float64(minSum) / float64(maxSum) * 100
}

func StructuralSimilarity(a, b *Fingerprint) float64 {
	var maxSum, diffSum float64
	for i := range a.Structural {
		x, y := a.Structural[i], b.Structural[i]
		maxSum += math.Max(x, y)
		diffSum += math.Abs(x - y)
	}
	if maxSum == 0 {
		return 100
	}
	return (maxSum - diffSum) / maxSum * 100
}
