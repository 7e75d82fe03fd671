package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Settings)
		wantErr bool
	}{
		{name: "defaults", modify: func(*Settings) {}},
		{name: "sensitivity zero", modify: func(s *Settings) { s.SensitivityThreshold = 0 }},
		{name: "sensitivity hundred", modify: func(s *Settings) { s.SensitivityThreshold = 100 }},
		{name: "sensitivity above range", modify: func(s *Settings) { s.SensitivityThreshold = 101 }, wantErr: true},
		{name: "sensitivity negative", modify: func(s *Settings) { s.SensitivityThreshold = -1 }, wantErr: true},
		{name: "interval zero", modify: func(s *Settings) { s.SamplingInterval = 0 }, wantErr: true},
		{name: "interval negative", modify: func(s *Settings) { s.SamplingInterval = -0.5 }, wantErr: true},
		{name: "stability zero", modify: func(s *Settings) { s.RequiredStabilityFrames = 0 }, wantErr: true},
		{name: "stability one", modify: func(s *Settings) { s.RequiredStabilityFrames = 1 }},
		{name: "negative settle delay", modify: func(s *Settings) { s.SettleDelay = -1 }, wantErr: true},
		{name: "quality out of range", modify: func(s *Settings) { s.JPEGQuality = 150 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.modify(&s)
			err := s.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSettings)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, 95.0, s.SensitivityThreshold)
	assert.Equal(t, 0.3, s.SamplingInterval)
	assert.Equal(t, 3, s.RequiredStabilityFrames)
	assert.Equal(t, DefaultSettleDelay, s.SettleDelay)
}
