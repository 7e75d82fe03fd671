package extraction

import "github.com/kdimtricp/vslides/internal/fingerprint"

// StabilityDetector reports a candidate once enough consecutive samples look
// the same. The counter starts over after every candidate, so a long static
// stretch yields a candidate every required samples.
type StabilityDetector struct {
	required int
	previous *fingerprint.Fingerprint
	counter  int
}

func NewStabilityDetector(required int) *StabilityDetector {
	if required < 1 {
		required = 1
	}
	return &StabilityDetector{required: required}
}

// Observe feeds the next sample. It returns the similarity to the previous
// sample (0 for the first one) and whether fp is a candidate.
func (d *StabilityDetector) Observe(fp fingerprint.Fingerprint) (float64, bool) {
	if d.previous == nil {
		d.previous = &fp
		return 0, false
	}

	similarity := fingerprint.Compare(&fp, d.previous)
	if similarity >= StabilityThreshold {
		d.counter++
	} else {
		d.counter = 0
	}
	d.previous = &fp

	if d.counter >= d.required {
		d.counter = 0
		return similarity, true
	}
	return similarity, false
}

func (d *StabilityDetector) Counter() int {
	return d.counter
}
