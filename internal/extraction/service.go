package extraction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kdimtricp/vslides/internal/framestore"
	"github.com/kdimtricp/vslides/internal/processing"
	"github.com/kdimtricp/vslides/internal/storage"
	"github.com/kdimtricp/vslides/internal/video"
)

// StoreRepository persists the slides of a video between runs and restarts.
type StoreRepository interface {
	// LoadStore fills store with the saved slides of videoID. It reports
	// false when nothing was saved.
	LoadStore(ctx context.Context, videoID string, store *framestore.Store) (bool, error)
	SaveStore(ctx context.Context, videoID string, store *framestore.Store) error
}

type Config struct {
	Opener   video.Opener
	Encoder  ImageEncoder
	Videos   storage.Storage
	Blobs    storage.Storage
	Repo     StoreRepository
	Sinks    []Sink
	Defaults Settings
	Logger   *zap.Logger
}

// Service runs extractions in the background, one at a time, and owns the
// slide store of every video it has seen.
type Service struct {
	opener   video.Opener
	encoder  ImageEncoder
	videos   storage.Storage
	blobs    storage.Storage
	repo     StoreRepository
	sinks    []Sink
	defaults Settings
	sampler  *Sampler
	guard    *processing.Guard
	logger   *zap.Logger

	sessions   map[string]*Session
	sessionsMu sync.RWMutex

	stores   map[string]*framestore.Store
	locks    map[string]*sync.Mutex
	storesMu sync.Mutex
}

// sessionRetention is how long a finished session stays queryable.
const sessionRetention = time.Hour

func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Defaults == (Settings{}) {
		cfg.Defaults = DefaultSettings()
	}
	if cfg.Blobs == nil {
		cfg.Blobs = cfg.Videos
	}

	return &Service{
		opener:   cfg.Opener,
		encoder:  cfg.Encoder,
		videos:   cfg.Videos,
		blobs:    cfg.Blobs,
		repo:     cfg.Repo,
		sinks:    cfg.Sinks,
		defaults: cfg.Defaults,
		sampler:  NewSampler(cfg.Logger),
		guard:    processing.NewGuard(),
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
		stores:   make(map[string]*framestore.Store),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *Service) Defaults() Settings {
	return s.defaults
}

// Start opens the stored video and extracts it in the background. The
// video's previous slides are discarded. Only one extraction runs at a time;
// a second Start returns processing.ErrBusy.
func (s *Service) Start(ctx context.Context, videoID, videoRef string, settings Settings) (*Session, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	release, err := s.guard.Acquire(videoID)
	if err != nil {
		return nil, err
	}

	store, err := s.Store(ctx, videoID)
	if err != nil {
		release()
		return nil, err
	}

	path, cleanup, err := s.videos.LocalPath(ctx, videoRef)
	if err != nil {
		release()
		return nil, fmt.Errorf("locating video: %w", err)
	}

	src, err := s.opener.Open(ctx, path)
	if err != nil {
		cleanup()
		release()
		return nil, fmt.Errorf("opening video: %w", err)
	}

	lock := s.videoLock(videoID)
	lock.Lock()
	s.discardSlides(ctx, store)
	s.persist(videoID, store)
	lock.Unlock()

	session := NewSession(videoID, settings, store, s.encoder, s.blobs, s.logger, s.sinks...)
	runCtx, cancel := context.WithCancel(context.Background())
	session.setCancel(cancel)
	s.register(session)

	go func() {
		defer session.Close()
		defer release()
		defer cancel()

		_ = s.sampler.Run(runCtx, session, src)

		if err := src.Close(); err != nil {
			session.logger.Warn("failed to close video", zap.Error(err))
		}
		cleanup()
		s.persist(videoID, store)
	}()

	return session, nil
}

// Run extracts src synchronously into store. Callers read sess.Updates
// concurrently; the channel is closed when Run returns.
func (s *Service) Run(ctx context.Context, sess *Session, src video.Source) error {
	release, err := s.guard.Acquire(sess.VideoID)
	if err != nil {
		return err
	}
	defer release()
	defer sess.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sess.setCancel(cancel)

	return s.sampler.Run(runCtx, sess, src)
}

// NewSession prepares a session for Run using the service's encoder, blob
// storage and sinks.
func (s *Service) NewSession(videoID string, settings Settings, store *framestore.Store) (*Session, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	sess := NewSession(videoID, settings, store, s.encoder, s.blobs, s.logger, s.sinks...)
	s.register(sess)
	return sess, nil
}

// register adds sess and drops finished sessions of the same video as well as
// any session that finished more than sessionRetention ago.
func (s *Service) register(sess *Session) {
	cutoff := time.Now().Add(-sessionRetention)

	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	for id, old := range s.sessions {
		done := old.CompletedAt()
		if done == nil {
			continue
		}
		if old.VideoID == sess.VideoID || done.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
	s.sessions[sess.ID] = sess
}

func (s *Service) GetSession(sessionID string) (*Session, bool) {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()

	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *Service) Stop(sessionID string) error {
	session, ok := s.GetSession(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	s.logger.Info("stopping extraction", zap.String("session_id", sessionID))
	session.Cancel()
	return nil
}

// Active reports whether an extraction for videoID is in flight.
func (s *Service) Active(videoID string) bool {
	owner, running := s.guard.Owner()
	return running && owner == videoID
}

// Store returns the slide store of videoID, restoring it from the repository
// on first access.
func (s *Service) Store(ctx context.Context, videoID string) (*framestore.Store, error) {
	s.storesMu.Lock()
	defer s.storesMu.Unlock()

	if store, ok := s.stores[videoID]; ok {
		return store, nil
	}

	store := framestore.New()
	if s.repo != nil {
		found, err := s.repo.LoadStore(ctx, videoID, store)
		if err != nil {
			return nil, fmt.Errorf("loading slides: %w", err)
		}
		if found {
			s.logger.Info("restored slides", zap.String("video_id", videoID), zap.Int("slides", store.Len()))
		}
	}
	s.stores[videoID] = store
	return store, nil
}

// Mutate applies fn to the store of videoID and saves the result. It is
// refused while that video is being extracted.
func (s *Service) Mutate(ctx context.Context, videoID string, fn func(*framestore.Store) error) error {
	lock := s.videoLock(videoID)
	lock.Lock()
	defer lock.Unlock()

	if s.Active(videoID) {
		return ErrRunActive
	}

	store, err := s.Store(ctx, videoID)
	if err != nil {
		return err
	}
	if err := fn(store); err != nil {
		return err
	}

	if s.repo != nil {
		if err := s.repo.SaveStore(ctx, videoID, store); err != nil {
			return fmt.Errorf("saving slides: %w", err)
		}
	}
	return nil
}

// Forget drops the store of videoID and deletes its slide images.
func (s *Service) Forget(ctx context.Context, videoID string) error {
	lock := s.videoLock(videoID)
	lock.Lock()
	defer lock.Unlock()

	if s.Active(videoID) {
		return ErrRunActive
	}

	store, err := s.Store(ctx, videoID)
	if err != nil {
		return err
	}
	s.discardSlides(ctx, store)

	s.storesMu.Lock()
	delete(s.stores, videoID)
	s.storesMu.Unlock()
	return nil
}

// videoLock serializes store mutations of one video with the reset done when
// an extraction starts.
func (s *Service) videoLock(videoID string) *sync.Mutex {
	s.storesMu.Lock()
	defer s.storesMu.Unlock()

	lock, ok := s.locks[videoID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[videoID] = lock
	}
	return lock
}

func (s *Service) discardSlides(ctx context.Context, store *framestore.Store) {
	for _, f := range store.Frames() {
		if err := s.blobs.DeleteFile(ctx, f.ImageRef); err != nil {
			s.logger.Warn("failed to delete slide image", zap.String("ref", f.ImageRef), zap.Error(err))
		}
	}
	store.Reset()
}

func (s *Service) persist(videoID string, store *framestore.Store) {
	if s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.repo.SaveStore(ctx, videoID, store); err != nil {
		s.logger.Error("failed to save slides", zap.String("video_id", videoID), zap.Error(err))
	}
}
