package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// tailTolerance is how close to the end of the stream a timestamp may be and
// still reuse the last decoded frame when ffmpeg has nothing left to emit.
const tailTolerance = 1.0

// FFmpeg opens videos through the ffprobe and ffmpeg binaries.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	maxWidth    int
	logger      *zap.Logger
}

// NewFFmpeg locates the binaries on PATH. Frames wider than maxWidth are
// scaled down keeping the aspect ratio; 0 renders at native size.
func NewFFmpeg(maxWidth int, logger *zap.Logger) (*FFmpeg, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	logger.Info("found video tools",
		zap.String("ffmpeg", ffmpegPath),
		zap.String("ffprobe", ffprobePath),
	)

	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		maxWidth:    maxWidth,
		logger:      logger,
	}, nil
}

func (f *FFmpeg) Open(ctx context.Context, path string) (Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("video file not accessible: %w", err)
	}

	info, err := f.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	width, height := scaledSize(info.Width, info.Height, f.maxWidth)

	f.logger.Info("opened video",
		zap.String("path", path),
		zap.Float64("duration", info.Duration),
		zap.Int("native_width", info.Width),
		zap.Int("native_height", info.Height),
		zap.Int("render_width", width),
		zap.Int("render_height", height),
	)

	return &ffmpegSource{
		ffmpeg: f,
		path:   path,
		info:   info,
		width:  width,
		height: height,
	}, nil
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads duration and size of the first video stream.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Info, error) {
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		path)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		f.logger.Warn("ffprobe failed", zap.String("path", path), zap.String("stderr", stderr.String()))
		return Info{}, fmt.Errorf("%w: ffprobe: %v", ErrInvalidInput, err)
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Info{}, fmt.Errorf("%w: parse ffprobe output: %v", ErrInvalidInput, err)
	}
	if len(out.Streams) == 0 || out.Streams[0].Width < 1 || out.Streams[0].Height < 1 {
		return Info{}, fmt.Errorf("%w: no video stream", ErrInvalidInput)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
	if err != nil || duration <= 0 {
		return Info{}, fmt.Errorf("%w: invalid duration %q", ErrInvalidInput, out.Format.Duration)
	}

	return Info{
		Duration: duration,
		Width:    out.Streams[0].Width,
		Height:   out.Streams[0].Height,
	}, nil
}

func scaledSize(width, height, maxWidth int) (int, int) {
	if maxWidth <= 0 || width <= maxWidth {
		return width, height
	}
	h := height * maxWidth / width
	if h%2 == 1 {
		h++
	}
	if h < 2 {
		h = 2
	}
	return maxWidth, h
}

type ffmpegSource struct {
	ffmpeg   *FFmpeg
	path     string
	info     Info
	width    int
	height   int
	position float64
	last     *Frame
}

func (s *ffmpegSource) Duration() float64 { return s.info.Duration }
func (s *ffmpegSource) Width() int        { return s.width }
func (s *ffmpegSource) Height() int       { return s.height }

func (s *ffmpegSource) Seek(ctx context.Context, seconds float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if seconds < 0 || seconds > s.info.Duration {
		return fmt.Errorf("timestamp %.3f outside [0, %.3f]", seconds, s.info.Duration)
	}
	s.position = seconds
	return nil
}

func (s *ffmpegSource) Render(ctx context.Context) (Frame, error) {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-ss", strconv.FormatFloat(s.position, 'f', 3, 64),
		"-i", s.path,
		"-frames:v", "1",
	}
	if s.width != s.info.Width || s.height != s.info.Height {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", s.width, s.height))
	}
	args = append(args, "-f", "rawvideo", "-pix_fmt", "rgba", "pipe:1")

	cmd := exec.CommandContext(ctx, s.ffmpeg.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		s.ffmpeg.logger.Debug("ffmpeg stderr", zap.String("output", stderr.String()))
		return Frame{}, fmt.Errorf("failed to render frame at %.3f: %w", s.position, err)
	}

	if stdout.Len() == 0 && s.last != nil && s.position >= s.info.Duration-tailTolerance {
		s.ffmpeg.logger.Debug("no frame past end of stream, reusing last frame",
			zap.Float64("timestamp", s.position))
		return *s.last, nil
	}

	frame := Frame{Pix: stdout.Bytes(), Width: s.width, Height: s.height}
	if err := frame.Validate(); err != nil {
		return Frame{}, fmt.Errorf("render at %.3f: %w", s.position, err)
	}

	s.last = &frame
	return frame, nil
}

func (s *ffmpegSource) Close() error {
	s.last = nil
	return nil
}
