package extraction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kdimtricp/vslides/internal/fingerprint"
	"github.com/kdimtricp/vslides/internal/metrics"
	"github.com/kdimtricp/vslides/internal/video"
)

var tracer = otel.Tracer("github.com/kdimtricp/vslides/internal/extraction")

// Sampler walks a video at a fixed interval and feeds every sample through
// fingerprinting, stability detection and deduplication.
type Sampler struct {
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewSampler(logger *zap.Logger) *Sampler {
	return &Sampler{logger: logger, sleep: sleepContext}
}

type rendered struct {
	index     int
	timestamp float64
	frame     video.Frame
}

// SampleCount is the number of instants i*interval strictly before duration.
func SampleCount(duration, interval float64) int {
	if !(duration > 0) || !(interval > 0) {
		return 0
	}
	n := int(math.Ceil(duration / interval))
	for n > 0 && float64(n-1)*interval >= duration {
		n--
	}
	for float64(n)*interval < duration {
		n++
	}
	return n
}

// Run samples src into sess.Store and publishes progress, frame decisions
// and a final complete, error or cancelled update. It returns the error that
// ended the run; frames kept before it stay in the store.
func (s *Sampler) Run(ctx context.Context, sess *Session, src video.Source) error {
	ctx, span := tracer.Start(ctx, "extraction.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("video.id", sess.VideoID),
		attribute.Float64("video.duration", src.Duration()),
		attribute.Float64("sampling.interval", sess.Settings.SamplingInterval),
	)

	metrics.ActiveExtractions.Inc()
	defer metrics.ActiveExtractions.Dec()

	log := sess.logger
	log.Info("starting extraction",
		zap.Float64("duration", src.Duration()),
		zap.Float64("sensitivity", sess.Settings.SensitivityThreshold),
		zap.Float64("interval", sess.Settings.SamplingInterval),
		zap.Int("required_stability", sess.Settings.RequiredStabilityFrames),
	)

	start := time.Now()
	samples, err := s.sample(ctx, sess, src)
	elapsed := time.Since(start)
	metrics.ExtractionDuration.Observe(elapsed.Seconds())

	// Terminal updates still reach sinks after cancellation.
	final := context.WithoutCancel(ctx)

	switch {
	case err == nil:
		slides := sess.Store.Len()
		sess.finish(StatusComplete, nil)
		sess.publish(final, Update{
			Type: UpdateComplete,
			Data: CompleteEvent{
				SessionID: sess.ID,
				VideoID:   sess.VideoID,
				Slides:    slides,
				Samples:   samples,
				Elapsed:   elapsed,
				Message:   fmt.Sprintf("Extraction complete: %d unique slides detected", slides),
			},
		})
		metrics.ExtractionsTotal.WithLabelValues(StatusComplete).Inc()
		log.Info("extraction complete",
			zap.Int("slides", slides),
			zap.Int("samples", samples),
			zap.Duration("elapsed", elapsed),
		)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		sess.finish(StatusCancelled, err)
		sess.publish(final, Update{
			Type: UpdateCancelled,
			Data: CancelledEvent{SessionID: sess.ID, Message: "Extraction cancelled"},
		})
		metrics.ExtractionsTotal.WithLabelValues(StatusCancelled).Inc()
		span.SetStatus(codes.Error, "cancelled")
		log.Info("extraction cancelled", zap.Int("samples", samples), zap.Int("slides", sess.Store.Len()))
	default:
		sess.finish(StatusError, err)
		sess.publish(final, Update{
			Type: UpdateError,
			Data: ErrorEvent{SessionID: sess.ID, Message: err.Error()},
		})
		metrics.ExtractionsTotal.WithLabelValues(StatusError).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("extraction failed", zap.Int("samples", samples), zap.Error(err))
	}

	return err
}

// sample runs the two stages: a renderer that seeks and renders ahead into a
// one-slot queue, and the caller's goroutine that consumes samples strictly
// in timestamp order.
func (s *Sampler) sample(ctx context.Context, sess *Session, src video.Source) (int, error) {
	duration := src.Duration()
	if !(duration > 0) {
		return 0, fmt.Errorf("%w: duration %v", ErrInvalidInput, duration)
	}
	total := SampleCount(duration, sess.Settings.SamplingInterval)

	renderCtx, stop := context.WithCancel(ctx)
	defer stop()

	queue := make(chan rendered, 1)
	renderErr := make(chan error, 1)
	go func() {
		defer close(queue)
		renderErr <- s.render(renderCtx, sess, src, total, queue)
	}()

	consumed := 0
	var consumeErr error
	for r := range queue {
		if err := ctx.Err(); err != nil {
			consumeErr = err
			break
		}
		if err := s.consume(ctx, sess, r, total); err != nil {
			consumeErr = err
			break
		}
		consumed++
	}

	stop()
	for range queue {
	}
	rerr := <-renderErr

	if consumeErr != nil {
		return consumed, consumeErr
	}
	if err := ctx.Err(); err != nil {
		return consumed, err
	}
	return consumed, rerr
}

func (s *Sampler) render(ctx context.Context, sess *Session, src video.Source, total int, out chan<- rendered) error {
	interval := sess.Settings.SamplingInterval
	for i := 0; i < total; i++ {
		t := float64(i) * interval
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := src.Seek(ctx, t); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &SeekError{Timestamp: t, Phase: "seek", Err: err}
		}
		if err := s.sleep(ctx, sess.Settings.SettleDelay); err != nil {
			return err
		}
		frame, err := src.Render(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &SeekError{Timestamp: t, Phase: "render", Err: err}
		}

		select {
		case out <- rendered{index: i, timestamp: t, frame: frame}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Sampler) consume(ctx context.Context, sess *Session, r rendered, total int) error {
	fp, err := fingerprint.Compute(r.frame.Pix, r.frame.Width, r.frame.Height)
	if err != nil {
		return &SeekError{Timestamp: r.timestamp, Phase: "render", Err: err}
	}
	metrics.SamplesTotal.Inc()

	similarity, candidate := sess.detector.Observe(fp)
	if candidate {
		metrics.CandidatesTotal.Inc()
		s.decide(ctx, sess, Candidate{Timestamp: r.timestamp, Frame: r.frame, Fingerprint: fp})
	}

	n := r.index + 1
	sess.publish(ctx, Update{
		Type: UpdateProgress,
		Data: ProgressEvent{
			SessionID:   sess.ID,
			Sample:      n,
			Total:       total,
			Percent:     float64(n) / float64(total) * 100,
			Timestamp:   r.timestamp,
			Similarity:  similarity,
			StableCount: sess.detector.Counter(),
			Message:     fmt.Sprintf("Sampling frames (%d/%d)", n, total),
		},
	})
	return nil
}

func (s *Sampler) decide(ctx context.Context, sess *Session, c Candidate) {
	frame, accepted, err := sess.dedup.Consider(ctx, c)
	score := sess.dedup.LastScore()

	if err != nil {
		var encErr *EncodeError
		phase := "encode"
		if errors.As(err, &encErr) {
			phase = encErr.Phase
		}
		metrics.FramesRejectedTotal.WithLabelValues(RejectEncodeFailed).Inc()
		sess.logger.Warn("dropping slide",
			zap.Float64("timestamp", c.Timestamp),
			zap.String("phase", phase),
			zap.Error(err),
		)
		sess.publish(ctx, Update{
			Type: UpdateFrameRejected,
			Data: FrameRejectedEvent{
				SessionID:  sess.ID,
				Timestamp:  c.Timestamp,
				Reason:     RejectEncodeFailed,
				Similarity: score,
				Error:      err.Error(),
			},
		})
		return
	}

	if !accepted {
		metrics.FramesRejectedTotal.WithLabelValues(RejectDuplicate).Inc()
		sess.logger.Debug("duplicate slide",
			zap.Float64("timestamp", c.Timestamp),
			zap.Float64("similarity", score),
		)
		sess.publish(ctx, Update{
			Type: UpdateFrameRejected,
			Data: FrameRejectedEvent{
				SessionID:  sess.ID,
				Timestamp:  c.Timestamp,
				Reason:     RejectDuplicate,
				Similarity: score,
			},
		})
		return
	}

	metrics.FramesAcceptedTotal.Inc()
	index := sess.Store.Len() - 1
	trace.SpanFromContext(ctx).AddEvent("slide captured", trace.WithAttributes(
		attribute.Int("slide.index", index),
		attribute.Float64("slide.timestamp", c.Timestamp),
	))
	sess.logger.Info("slide captured",
		zap.Int("index", index),
		zap.Uint64("frame_id", frame.ID),
		zap.Float64("timestamp", c.Timestamp),
		zap.Float64("similarity", score),
	)
	sess.publish(ctx, Update{
		Type: UpdateFrameAccepted,
		Data: FrameAcceptedEvent{
			SessionID:  sess.ID,
			Index:      index,
			FrameID:    frame.ID,
			Timestamp:  frame.Timestamp,
			ImageRef:   frame.ImageRef,
			Width:      frame.Width,
			Height:     frame.Height,
			Similarity: score,
		},
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
