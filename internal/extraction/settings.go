package extraction

import (
	"fmt"
	"time"

	"github.com/kdimtricp/vslides/internal/encoder"
)

const (
	DefaultSensitivity       = 95.0
	DefaultSamplingInterval  = 0.3
	DefaultRequiredStability = 3
	DefaultSettleDelay       = 50 * time.Millisecond

	// StabilityThreshold is the similarity two consecutive samples must reach
	// to count towards stability.
	StabilityThreshold = 98.0
)

// Settings control one extraction run.
type Settings struct {
	// SensitivityThreshold in [0, 100]. A candidate is kept when its
	// similarity to the last kept slide is below this value.
	SensitivityThreshold float64 `json:"sensitivity_threshold"`
	// SamplingInterval is the distance between samples, in seconds.
	SamplingInterval float64 `json:"sampling_interval"`
	// RequiredStabilityFrames is how many consecutive near-identical
	// samples make a candidate.
	RequiredStabilityFrames int `json:"required_stability_frames"`

	SettleDelay time.Duration `json:"settle_delay"`
	JPEGQuality int           `json:"jpeg_quality"`
}

func DefaultSettings() Settings {
	return Settings{
		SensitivityThreshold:    DefaultSensitivity,
		SamplingInterval:        DefaultSamplingInterval,
		RequiredStabilityFrames: DefaultRequiredStability,
		SettleDelay:             DefaultSettleDelay,
		JPEGQuality:             encoder.DefaultQuality,
	}
}

func (s Settings) Validate() error {
	if s.SensitivityThreshold < 0 || s.SensitivityThreshold > 100 {
		return fmt.Errorf("%w: sensitivity threshold %.2f outside [0, 100]", ErrInvalidSettings, s.SensitivityThreshold)
	}
	if !(s.SamplingInterval > 0) {
		return fmt.Errorf("%w: sampling interval must be positive, got %v", ErrInvalidSettings, s.SamplingInterval)
	}
	if s.RequiredStabilityFrames < 1 {
		return fmt.Errorf("%w: required stability frames must be at least 1, got %d", ErrInvalidSettings, s.RequiredStabilityFrames)
	}
	if s.SettleDelay < 0 {
		return fmt.Errorf("%w: negative settle delay", ErrInvalidSettings)
	}
	if s.JPEGQuality < 0 || s.JPEGQuality > 100 {
		return fmt.Errorf("%w: jpeg quality %d outside [0, 100]", ErrInvalidSettings, s.JPEGQuality)
	}
	return nil
}
