package extraction

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kdimtricp/vslides/internal/encoder"
	"github.com/kdimtricp/vslides/internal/framestore"
	"github.com/kdimtricp/vslides/internal/processing"
	"github.com/kdimtricp/vslides/internal/storage"
	"github.com/kdimtricp/vslides/internal/video"
)

type fakeOpener struct {
	source func() video.Source
	err    error
	paths  []string
}

func (o *fakeOpener) Open(ctx context.Context, path string) (video.Source, error) {
	o.paths = append(o.paths, path)
	if o.err != nil {
		return nil, o.err
	}
	return o.source(), nil
}

type memoryRepo struct {
	mu    sync.Mutex
	saved map[string][]framestore.Frame
	saves int
}

func (r *memoryRepo) LoadStore(ctx context.Context, videoID string, store *framestore.Store) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	frames, ok := r.saved[videoID]
	if !ok {
		return false, nil
	}
	selected := make([]int, len(frames))
	for i := range frames {
		selected[i] = i
	}
	return true, store.Restore(frames, selected)
}

func (r *memoryRepo) SaveStore(ctx context.Context, videoID string, store *framestore.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved == nil {
		r.saved = make(map[string][]framestore.Frame)
	}
	r.saved[videoID] = store.Frames()
	r.saves++
	return nil
}

type recordingSink struct {
	mu    sync.Mutex
	types []string
}

func (s *recordingSink) Publish(ctx context.Context, sessionID string, u Update) error {
	s.mu.Lock()
	s.types = append(s.types, u.Type)
	s.mu.Unlock()
	return nil
}

func newTestService(t *testing.T, opener video.Opener, repo StoreRepository, sinks ...Sink) (*Service, string) {
	t.Helper()
	videos := newBlobs(t)
	ref, err := videos.SaveFile(context.Background(), strings.NewReader("not decoded by the fake opener"), storage.FileInfo{Filename: "talk.mp4"})
	require.NoError(t, err)

	svc := NewService(Config{
		Opener:   opener,
		Encoder:  encoder.NewJPEG(),
		Videos:   videos,
		Blobs:    newBlobs(t),
		Repo:     repo,
		Sinks:    sinks,
		Defaults: scenarioSettings(),
		Logger:   zap.NewNop(),
	})
	svc.sampler = newTestSampler()
	return svc, ref
}

func waitClosed(t *testing.T, sess *Session) []Update {
	t.Helper()
	var out []Update
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-sess.Updates:
			if !ok {
				return out
			}
			out = append(out, u)
		case <-timeout:
			t.Fatalf("session %s did not finish", sess.ID)
		}
	}
}

func TestService_StartRunsInBackground(t *testing.T) {
	repo := &memoryRepo{}
	sink := &recordingSink{}
	opener := &fakeOpener{source: func() video.Source {
		return &scriptedSource{duration: 10, content: twoSlides}
	}}
	svc, ref := newTestService(t, opener, repo, sink)

	sess, err := svc.Start(context.Background(), "video-1", ref, scenarioSettings())
	require.NoError(t, err)

	updates := waitClosed(t, sess)
	assert.Equal(t, UpdateComplete, updates[len(updates)-1].Type)
	assert.Equal(t, StatusComplete, sess.Status())
	assert.NotNil(t, sess.CompletedAt())

	got, ok := svc.GetSession(sess.ID)
	require.True(t, ok)
	assert.Same(t, sess, got)

	require.Len(t, opener.paths, 1)
	assert.Equal(t, ref, filepath.Base(opener.paths[0]))

	store, err := svc.Store(context.Background(), "video-1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())
	assert.Same(t, sess.Store, store)

	repo.mu.Lock()
	assert.Len(t, repo.saved["video-1"], 2)
	repo.mu.Unlock()

	sink.mu.Lock()
	assert.Contains(t, sink.types, UpdateFrameAccepted)
	assert.Equal(t, UpdateComplete, sink.types[len(sink.types)-1])
	sink.mu.Unlock()

	assert.False(t, svc.Active("video-1"))
}

func TestService_RestartDiscardsPreviousSlides(t *testing.T) {
	opener := &fakeOpener{source: func() video.Source {
		return &scriptedSource{duration: 10, content: twoSlides}
	}}
	svc, ref := newTestService(t, opener, nil)

	first, err := svc.Start(context.Background(), "video-1", ref, scenarioSettings())
	require.NoError(t, err)
	waitClosed(t, first)
	oldRefs := []string{}
	for _, f := range first.Store.Frames() {
		oldRefs = append(oldRefs, f.ImageRef)
	}
	require.Len(t, oldRefs, 2)

	second, err := svc.Start(context.Background(), "video-1", ref, scenarioSettings())
	require.NoError(t, err)
	waitClosed(t, second)

	frames := second.Store.Frames()
	require.Len(t, frames, 2)
	assert.Greater(t, frames[0].ID, uint64(2))

	for _, r := range oldRefs {
		_, err := svc.blobs.ReadFile(context.Background(), r)
		assert.Error(t, err, "old slide %s should be deleted", r)
	}
}

func TestService_OneRunAtATime(t *testing.T) {
	gate := make(chan struct{})
	opener := &fakeOpener{source: func() video.Source {
		return &scriptedSource{
			duration: 10,
			content:  twoSlides,
			onRender: func(float64) { <-gate },
		}
	}}
	svc, ref := newTestService(t, opener, nil)

	sess, err := svc.Start(context.Background(), "video-1", ref, scenarioSettings())
	require.NoError(t, err)

	_, err = svc.Start(context.Background(), "video-2", ref, scenarioSettings())
	assert.ErrorIs(t, err, processing.ErrBusy)

	assert.True(t, svc.Active("video-1"))
	assert.False(t, svc.Active("video-2"))

	err = svc.Mutate(context.Background(), "video-1", func(*framestore.Store) error { return nil })
	assert.ErrorIs(t, err, ErrRunActive)

	require.NoError(t, svc.Stop(sess.ID))
	close(gate)

	updates := waitClosed(t, sess)
	assert.Equal(t, UpdateCancelled, updates[len(updates)-1].Type)
	assert.Equal(t, StatusCancelled, sess.Status())
	assert.False(t, svc.Active("video-1"))
}

func TestService_StartErrors(t *testing.T) {
	t.Run("invalid settings", func(t *testing.T) {
		svc, ref := newTestService(t, &fakeOpener{}, nil)
		bad := scenarioSettings()
		bad.SamplingInterval = 0
		_, err := svc.Start(context.Background(), "video-1", ref, bad)
		assert.ErrorIs(t, err, ErrInvalidSettings)
	})

	t.Run("not a video", func(t *testing.T) {
		opener := &fakeOpener{err: errors.Join(ErrInvalidInput, errors.New("no video stream"))}
		svc, ref := newTestService(t, opener, nil)
		_, err := svc.Start(context.Background(), "video-1", ref, scenarioSettings())
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.False(t, svc.Active("video-1"))
	})

	t.Run("bad reference", func(t *testing.T) {
		svc, _ := newTestService(t, &fakeOpener{}, nil)
		_, err := svc.Start(context.Background(), "video-1", "../etc/passwd", scenarioSettings())
		assert.ErrorIs(t, err, storage.ErrInvalidPath)
	})
}

func TestService_StopUnknownSession(t *testing.T) {
	svc, _ := newTestService(t, &fakeOpener{}, nil)
	assert.ErrorIs(t, svc.Stop("missing"), ErrSessionNotFound)
}

func TestService_StoreRestoresAndMutatePersists(t *testing.T) {
	repo := &memoryRepo{saved: map[string][]framestore.Frame{
		"video-1": {
			{ID: 7, Timestamp: 2, ImageRef: "a.jpg"},
			{ID: 9, Timestamp: 6, ImageRef: "b.jpg"},
		},
	}}
	svc, _ := newTestService(t, &fakeOpener{}, repo)
	ctx := context.Background()

	store, err := svc.Store(ctx, "video-1")
	require.NoError(t, err)
	require.Equal(t, 2, store.Len())

	err = svc.Mutate(ctx, "video-1", func(s *framestore.Store) error { return s.Move(1, 0) })
	require.NoError(t, err)

	repo.mu.Lock()
	assert.Equal(t, uint64(9), repo.saved["video-1"][0].ID)
	assert.Equal(t, 1, repo.saves)
	repo.mu.Unlock()

	err = svc.Mutate(ctx, "video-1", func(s *framestore.Store) error { return s.Remove(5) })
	assert.ErrorIs(t, err, framestore.ErrIndexOutOfRange)
}

func TestService_RunSynchronously(t *testing.T) {
	svc, _ := newTestService(t, &fakeOpener{}, nil)
	store := framestore.New()

	sess, err := svc.NewSession("local", scenarioSettings(), store)
	require.NoError(t, err)

	var updates []Update
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range sess.Updates {
			updates = append(updates, u)
		}
	}()

	err = svc.Run(context.Background(), sess, &scriptedSource{duration: 10, content: twoSlides})
	require.NoError(t, err)
	<-done

	assert.Equal(t, 2, store.Len())
	assert.Equal(t, UpdateComplete, updates[len(updates)-1].Type)
}

func TestService_StartClearsSavedSlidesBeforeRunning(t *testing.T) {
	repo := &memoryRepo{saved: map[string][]framestore.Frame{
		"video-1": {{ID: 3, Timestamp: 2, ImageRef: "gone.jpg"}},
	}}
	gate := make(chan struct{})
	opener := &fakeOpener{source: func() video.Source {
		return &scriptedSource{
			duration: 10,
			content:  twoSlides,
			onRender: func(float64) { <-gate },
		}
	}}
	svc, ref := newTestService(t, opener, repo)

	sess, err := svc.Start(context.Background(), "video-1", ref, scenarioSettings())
	require.NoError(t, err)

	repo.mu.Lock()
	assert.Empty(t, repo.saved["video-1"])
	assert.Equal(t, 1, repo.saves)
	repo.mu.Unlock()

	close(gate)
	waitClosed(t, sess)

	repo.mu.Lock()
	assert.Len(t, repo.saved["video-1"], 2)
	assert.Equal(t, 2, repo.saves)
	repo.mu.Unlock()
}

func TestService_StartWaitsForPendingMutation(t *testing.T) {
	repo := &memoryRepo{saved: map[string][]framestore.Frame{
		"video-1": {
			{ID: 1, Timestamp: 2, ImageRef: "a.jpg"},
			{ID: 2, Timestamp: 6, ImageRef: "b.jpg"},
		},
	}}
	opener := &fakeOpener{source: func() video.Source {
		return &scriptedSource{duration: 10, content: twoSlides}
	}}
	svc, ref := newTestService(t, opener, repo)
	ctx := context.Background()

	inside := make(chan struct{})
	proceed := make(chan struct{})
	mutated := make(chan error, 1)
	go func() {
		mutated <- svc.Mutate(ctx, "video-1", func(s *framestore.Store) error {
			close(inside)
			<-proceed
			return s.Remove(0)
		})
	}()
	<-inside

	started := make(chan *Session, 1)
	go func() {
		sess, err := svc.Start(ctx, "video-1", ref, scenarioSettings())
		assert.NoError(t, err)
		started <- sess
	}()

	select {
	case <-started:
		t.Fatal("extraction started while the store was being mutated")
	case <-time.After(50 * time.Millisecond):
	}

	close(proceed)
	require.NoError(t, <-mutated)

	sess := <-started
	require.NotNil(t, sess)
	waitClosed(t, sess)
	assert.Equal(t, 2, sess.Store.Len())
}

func TestService_FinishedSessionsAreDropped(t *testing.T) {
	opener := &fakeOpener{source: func() video.Source {
		return &scriptedSource{duration: 10, content: twoSlides}
	}}
	svc, ref := newTestService(t, opener, nil)
	ctx := context.Background()

	first, err := svc.Start(ctx, "video-1", ref, scenarioSettings())
	require.NoError(t, err)
	waitClosed(t, first)

	other, err := svc.Start(ctx, "video-2", ref, scenarioSettings())
	require.NoError(t, err)
	waitClosed(t, other)

	_, ok := svc.GetSession(first.ID)
	assert.True(t, ok, "finished session stays queryable until replaced")

	second, err := svc.Start(ctx, "video-1", ref, scenarioSettings())
	require.NoError(t, err)
	waitClosed(t, second)

	_, ok = svc.GetSession(first.ID)
	assert.False(t, ok)
	_, ok = svc.GetSession(second.ID)
	assert.True(t, ok)
	_, ok = svc.GetSession(other.ID)
	assert.True(t, ok)

	expired := time.Now().Add(-2 * sessionRetention)
	other.mu.Lock()
	other.completedAt = &expired
	other.mu.Unlock()

	third, err := svc.Start(ctx, "video-3", ref, scenarioSettings())
	require.NoError(t, err)
	waitClosed(t, third)

	_, ok = svc.GetSession(other.ID)
	assert.False(t, ok)
	_, ok = svc.GetSession(second.ID)
	assert.True(t, ok)
}
