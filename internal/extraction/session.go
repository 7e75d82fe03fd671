package extraction

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kdimtricp/vslides/internal/framestore"
	"github.com/kdimtricp/vslides/internal/storage"
)

const updatesBuffer = 256

// Sink receives a copy of every update a session publishes.
type Sink interface {
	Publish(ctx context.Context, sessionID string, update Update) error
}

// Session is the state of one extraction run. The detector and the
// deduplicator live and die with it; the store outlives it.
type Session struct {
	ID        string
	VideoID   string
	Settings  Settings
	StartedAt time.Time
	Store     *framestore.Store

	// Updates is closed once the run has finished. Sends never block: when
	// the buffer is full intermediate updates are dropped from the channel.
	// One slot stays reserved so the terminal update is always delivered.
	Updates chan Update

	detector *StabilityDetector
	dedup    *Deduplicator
	sinks    []Sink
	logger   *zap.Logger

	mu          sync.RWMutex
	status      string
	progress    ProgressEvent
	completedAt *time.Time
	err         error
	cancel      context.CancelFunc
	closeOnce   sync.Once
}

func NewSession(videoID string, settings Settings, store *framestore.Store, enc ImageEncoder, blobs storage.Storage, logger *zap.Logger, sinks ...Sink) *Session {
	id := uuid.New().String()
	return &Session{
		ID:        id,
		VideoID:   videoID,
		Settings:  settings,
		StartedAt: time.Now(),
		Store:     store,
		Updates:   make(chan Update, updatesBuffer+1),
		detector:  NewStabilityDetector(settings.RequiredStabilityFrames),
		dedup:     NewDeduplicator(settings.SensitivityThreshold, settings.JPEGQuality, enc, blobs, store),
		sinks:     sinks,
		logger:    logger.With(zap.String("session_id", id), zap.String("video_id", videoID)),
		status:    StatusExtracting,
	}
}

func (s *Session) publish(ctx context.Context, u Update) {
	if p, ok := u.Data.(ProgressEvent); ok {
		s.mu.Lock()
		s.progress = p
		s.mu.Unlock()
	}

	// Only the consuming goroutine publishes, so len cannot grow between the
	// check and the send.
	if u.terminal() || len(s.Updates) < updatesBuffer {
		select {
		case s.Updates <- u:
		default:
			s.logger.Warn("update channel full, dropping update", zap.String("type", u.Type))
		}
	} else {
		s.logger.Debug("update buffer full, dropping update", zap.String("type", u.Type))
	}

	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, s.ID, u); err != nil {
			s.logger.Warn("failed to publish update", zap.String("type", u.Type), zap.Error(err))
		}
	}
}

func (s *Session) finish(status string, err error) {
	now := time.Now()
	s.mu.Lock()
	s.status = status
	s.err = err
	s.completedAt = &now
	s.mu.Unlock()
}

// Close ends the update stream. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.Updates) })
}

// Cancel stops the run between two samples.
func (s *Session) Cancel() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
}

func (s *Session) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) Progress() ProgressEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Session) CompletedAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completedAt
}
