package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kdimtricp/vslides/internal/database"
	"github.com/kdimtricp/vslides/internal/encoder"
	"github.com/kdimtricp/vslides/internal/extraction"
	"github.com/kdimtricp/vslides/internal/storage"
	"github.com/kdimtricp/vslides/internal/video"
)

const side = 48

func split(vertical bool) []byte {
	pix := make([]byte, side*side*4)
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			white := y >= side/2
			if vertical {
				white = x >= side/2
			}
			o := (y*side + x) * 4
			if white {
				pix[o], pix[o+1], pix[o+2] = 255, 255, 255
			}
			pix[o+3] = 255
		}
	}
	return pix
}

// deckSource shows one slide before 4s and another after.
type deckSource struct {
	gate <-chan struct{}
	pos  float64
}

func (s *deckSource) Duration() float64 { return 10 }
func (s *deckSource) Width() int        { return side }
func (s *deckSource) Height() int       { return side }
func (s *deckSource) Close() error      { return nil }

func (s *deckSource) Seek(ctx context.Context, t float64) error {
	s.pos = t
	return nil
}

func (s *deckSource) Render(ctx context.Context) (video.Frame, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return video.Frame{}, ctx.Err()
		}
	}
	return video.Frame{Pix: split(s.pos < 4), Width: side, Height: side}, nil
}

type fakeMedia struct {
	mu       sync.Mutex
	gate     chan struct{}
	probeErr error
}

func (m *fakeMedia) Open(ctx context.Context, path string) (video.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &deckSource{gate: m.gate}, nil
}

func (m *fakeMedia) Probe(ctx context.Context, path string) (video.Info, error) {
	if m.probeErr != nil {
		return video.Info{}, m.probeErr
	}
	return video.Info{Duration: 10, Width: side, Height: side}, nil
}

type testEnv struct {
	app    *App
	server *httptest.Server
	media  *fakeMedia
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.NewDB(database.Config{Type: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "api.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	media := &fakeMedia{}
	logger := zap.NewNop()

	svc := extraction.NewService(extraction.Config{
		Opener:  media,
		Encoder: encoder.NewJPEG(),
		Videos:  store,
		Repo:    database.NewSlideRepository(db),
		Defaults: extraction.Settings{
			SensitivityThreshold:    90,
			SamplingInterval:        1,
			RequiredStabilityFrames: 2,
			JPEGQuality:             80,
		},
		Logger: logger,
	})

	app := &App{
		Storage:       store,
		VideoRepo:     database.NewVideoRepository(db),
		Extraction:    svc,
		Prober:        media,
		MaxUploadSize: 10 << 20,
		Logger:        logger,
	}

	server := httptest.NewServer(NewRouter(app))
	t.Cleanup(server.Close)

	return &testEnv{app: app, server: server, media: media}
}

func (e *testEnv) upload(t *testing.T, filename, contentType string) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("title", "Quarterly review"))

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename="%s"`, filename))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	part.Write([]byte("fake video bytes"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(e.server.URL+"/videos", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) uploadVideo(t *testing.T) string {
	t.Helper()
	resp := e.upload(t, "review.mp4", "video/mp4")
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var v struct {
		ID   string `json:"id"`
		Info struct {
			Duration string `json:"duration"`
		} `json:"info"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	assert.Equal(t, "0:10", v.Info.Duration)
	return v.ID
}

func (e *testEnv) do(t *testing.T, method, path string, form url.Values) *http.Response {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, e.server.URL+path, body)
	require.NoError(t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

type sseEvent struct {
	name string
	data string
}

// readEvents consumes a session stream until the server closes it.
func readEvents(t *testing.T, env *testEnv, sessionID string) []sseEvent {
	t.Helper()
	resp, err := http.Get(env.server.URL + "/sessions/" + sessionID + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []sseEvent
	var current sseEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "" && current.name != "":
			events = append(events, current)
			current = sseEvent{}
		}
	}
	return events
}

func (e *testEnv) extract(t *testing.T, videoID string) []sseEvent {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/videos/"+videoID+"/extract", url.Values{})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var session struct {
		SessionID string `json:"session_id"`
		Status    string `json:"status"`
	}
	decode(t, resp, &session)
	require.NotEmpty(t, session.SessionID)

	return readEvents(t, e, session.SessionID)
}

func TestPingHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rr := httptest.NewRecorder()

	PingHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pong", rr.Body.String())
}

func TestUpload(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		probeErr    error
		wantStatus  int
	}{
		{name: "video content type", filename: "talk.bin", contentType: "video/webm", wantStatus: http.StatusCreated},
		{name: "known extension", filename: "talk.mov", contentType: "application/octet-stream", wantStatus: http.StatusCreated},
		{name: "not a video", filename: "notes.txt", contentType: "text/plain", wantStatus: http.StatusBadRequest},
		{name: "undecodable", filename: "broken.mp4", contentType: "video/mp4", probeErr: fmt.Errorf("%w: no video stream", video.ErrInvalidInput), wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.media.probeErr = tt.probeErr

			resp := env.upload(t, tt.filename, tt.contentType)
			resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var videos []map[string]interface{}
			decode(t, env.do(t, http.MethodGet, "/videos", nil), &videos)
			if tt.wantStatus == http.StatusCreated {
				assert.Len(t, videos, 1)
			} else {
				assert.Empty(t, videos)
			}
		})
	}
}

func TestVideoNotFound(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/videos/missing", "/videos/missing/frames", "/videos/missing/export.pdf"} {
		resp := env.do(t, http.MethodGet, path, nil)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestStreamVideo_Range(t *testing.T) {
	env := newTestEnv(t)
	id := env.uploadVideo(t)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/videos/"+id+"/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=0-3")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "fake", string(body))
}

func TestExtractionFlow(t *testing.T) {
	env := newTestEnv(t)
	id := env.uploadVideo(t)

	events := env.extract(t, id)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, extraction.UpdateComplete, last.name)
	assert.Contains(t, last.data, "Extraction complete: 2 unique slides detected")

	progress := 0
	for _, e := range events {
		if e.name == extraction.UpdateProgress {
			progress++
		}
	}
	assert.Equal(t, 10, progress)

	var frames framesResponse
	decode(t, env.do(t, http.MethodGet, "/videos/"+id+"/frames", nil), &frames)
	require.Len(t, frames.Frames, 2)
	assert.Equal(t, 2, frames.Selected)
	assert.Equal(t, 2.0, frames.Frames[0].Timestamp)
	assert.Equal(t, 6.0, frames.Frames[1].Timestamp)
	assert.False(t, frames.Running)

	// Image and thumbnail.
	resp := env.do(t, http.MethodGet, frames.Frames[0].ImageURL+"?thumb=24", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	thumb, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	w, h, err := encoder.Dimensions(thumb)
	require.NoError(t, err)
	assert.Equal(t, 24, w)
	assert.Equal(t, 24, h)

	// Deselect the first slide and export.
	decode(t, env.do(t, http.MethodPost, "/videos/"+id+"/frames/0/toggle", url.Values{}), &frames)
	assert.False(t, frames.Frames[0].Selected)
	assert.Equal(t, 1, frames.Selected)

	resp = env.do(t, http.MethodGet, "/videos/"+id+"/export.pdf", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	pdf, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	pdfCtx, err := pdfapi.ReadValidateAndOptimize(bytes.NewReader(pdf), model.NewDefaultConfiguration())
	require.NoError(t, err)
	assert.Equal(t, 1, pdfCtx.PageCount)

	// Move keeps the selection with its slide.
	decode(t, env.do(t, http.MethodPost, "/videos/"+id+"/frames/1/move", url.Values{"to": {"0"}}), &frames)
	assert.Equal(t, 6.0, frames.Frames[0].Timestamp)
	assert.True(t, frames.Frames[0].Selected)
	assert.False(t, frames.Frames[1].Selected)

	// Remove, then nothing is selected and export is refused.
	decode(t, env.do(t, http.MethodDelete, "/videos/"+id+"/frames/0", nil), &frames)
	require.Len(t, frames.Frames, 1)
	assert.Equal(t, 0, frames.Selected)

	resp = env.do(t, http.MethodGet, "/videos/"+id+"/export.pdf", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/videos/"+id+"/frames/7/toggle", url.Values{})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExtraction_InvalidSettings(t *testing.T) {
	env := newTestEnv(t)
	id := env.uploadVideo(t)

	for _, form := range []url.Values{
		{"sensitivity": {"150"}},
		{"interval": {"0"}},
		{"stability": {"zero"}},
	} {
		resp := env.do(t, http.MethodPost, "/videos/"+id+"/extract", form)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, form.Encode())
	}
}

func TestExtraction_BusyAndCancel(t *testing.T) {
	env := newTestEnv(t)
	env.media.gate = make(chan struct{})
	id := env.uploadVideo(t)
	other := env.uploadVideo(t)

	resp := env.do(t, http.MethodPost, "/videos/"+id+"/extract", url.Values{})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var session sessionResponse
	decode(t, resp, &session)

	resp = env.do(t, http.MethodPost, "/videos/"+other+"/extract", url.Values{})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/videos/"+id+"/frames/0/toggle", url.Values{})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/videos/"+id, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var status sessionResponse
	decode(t, env.do(t, http.MethodGet, "/sessions/"+session.SessionID, nil), &status)
	assert.Equal(t, extraction.StatusExtracting, status.Status)

	resp = env.do(t, http.MethodDelete, "/sessions/"+session.SessionID, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	events := readEvents(t, env, session.SessionID)
	require.NotEmpty(t, events)
	assert.Equal(t, extraction.UpdateCancelled, events[len(events)-1].name)

	require.Eventually(t, func() bool { return !env.app.Extraction.Active(id) }, 2*time.Second, 10*time.Millisecond)
	decode(t, env.do(t, http.MethodGet, "/sessions/"+session.SessionID, nil), &status)
	assert.Equal(t, extraction.StatusCancelled, status.Status)
}

func TestSessionNotFound(t *testing.T) {
	env := newTestEnv(t)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		resp := env.do(t, method, "/sessions/unknown", nil)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
	resp := env.do(t, http.MethodGet, "/sessions/unknown/events", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteVideo(t *testing.T) {
	env := newTestEnv(t)
	id := env.uploadVideo(t)
	env.extract(t, id)

	resp := env.do(t, http.MethodDelete, "/videos/"+id, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/videos/"+id, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{database.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", extraction.ErrRunActive), http.StatusConflict},
		{extraction.ErrInvalidSettings, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
