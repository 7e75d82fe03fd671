package extraction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kdimtricp/vslides/internal/encoder"
	"github.com/kdimtricp/vslides/internal/fingerprint"
	"github.com/kdimtricp/vslides/internal/framestore"
	"github.com/kdimtricp/vslides/internal/storage"
	"github.com/kdimtricp/vslides/internal/video"
)

const (
	testWidth  = 64
	testHeight = 64
)

// splitPixels is half black, half white, split vertically or horizontally.
func splitPixels(vertical bool) []byte {
	pix := make([]byte, testWidth*testHeight*4)
	for y := 0; y < testHeight; y++ {
		for x := 0; x < testWidth; x++ {
			white := y >= testHeight/2
			if vertical {
				white = x >= testWidth/2
			}
			o := (y*testWidth + x) * 4
			if white {
				pix[o], pix[o+1], pix[o+2] = 255, 255, 255
			}
			pix[o+3] = 255
		}
	}
	return pix
}

var (
	slideA = splitPixels(true)
	slideB = splitPixels(false)
)

func fingerprintOf(t *testing.T, pix []byte) fingerprint.Fingerprint {
	t.Helper()
	fp, err := fingerprint.Compute(pix, testWidth, testHeight)
	require.NoError(t, err)
	return fp
}

func frameOf(pix []byte) video.Frame {
	cp := make([]byte, len(pix))
	copy(cp, pix)
	return video.Frame{Pix: cp, Width: testWidth, Height: testHeight}
}

// scriptedSource shows the frame returned by content for the current time.
type scriptedSource struct {
	duration float64
	content  func(t float64) []byte

	// failSeekAt makes Seek fail for timestamps at or after it, when set.
	failSeekAt float64
	// onRender runs before each render.
	onRender func(t float64)

	mu       sync.Mutex
	position float64
	seeks    []float64
	closed   bool
}

func (s *scriptedSource) Duration() float64 { return s.duration }
func (s *scriptedSource) Width() int        { return testWidth }
func (s *scriptedSource) Height() int       { return testHeight }

func (s *scriptedSource) Seek(ctx context.Context, seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failSeekAt > 0 && seconds >= s.failSeekAt {
		return errors.New("decoder lost sync")
	}
	s.position = seconds
	s.seeks = append(s.seeks, seconds)
	return nil
}

func (s *scriptedSource) Render(ctx context.Context) (video.Frame, error) {
	s.mu.Lock()
	t := s.position
	s.mu.Unlock()

	if s.onRender != nil {
		s.onRender(t)
	}
	return frameOf(s.content(t)), nil
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// twoSlides shows slide A before 4s and slide B after.
func twoSlides(t float64) []byte {
	if t < 4 {
		return slideA
	}
	return slideB
}

type failingEncoder struct {
	calls int
}

func (e *failingEncoder) Encode(video.Frame, int) ([]byte, error) {
	e.calls++
	return nil, errors.New("encoder out of memory")
}

func newBlobs(t *testing.T) *storage.LocalStorage {
	t.Helper()
	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return blobs
}

func scenarioSettings() Settings {
	return Settings{
		SensitivityThreshold:    90,
		SamplingInterval:        1,
		RequiredStabilityFrames: 2,
		JPEGQuality:             80,
	}
}

func newTestSession(t *testing.T, settings Settings, enc ImageEncoder) *Session {
	t.Helper()
	if enc == nil {
		enc = encoder.NewJPEG()
	}
	return NewSession("video-1", settings, framestore.New(), enc, newBlobs(t), zap.NewNop())
}

func newTestSampler() *Sampler {
	s := NewSampler(zap.NewNop())
	s.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return s
}

// drain closes the session stream and returns everything it buffered.
func drain(sess *Session) []Update {
	sess.Close()
	var out []Update
	for u := range sess.Updates {
		out = append(out, u)
	}
	return out
}

func ofType(updates []Update, typ string) []Update {
	var out []Update
	for _, u := range updates {
		if u.Type == typ {
			out = append(out, u)
		}
	}
	return out
}
