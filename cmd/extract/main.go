package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/kdimtricp/vslides/internal/config"
	"github.com/kdimtricp/vslides/internal/encoder"
	"github.com/kdimtricp/vslides/internal/export"
	"github.com/kdimtricp/vslides/internal/extraction"
	"github.com/kdimtricp/vslides/internal/framestore"
	"github.com/kdimtricp/vslides/internal/logger"
	"github.com/kdimtricp/vslides/internal/storage"
	"github.com/kdimtricp/vslides/internal/video"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	var (
		input       = flag.String("i", "", "Input video file")
		output      = flag.String("o", "", "Output PDF (default: input name with .pdf)")
		sensitivity = flag.Float64("sensitivity", cfg.SensitivityThreshold, "Duplicate threshold in percent")
		interval    = flag.Float64("interval", cfg.SamplingIntervalSeconds, "Seconds between samples")
		stability   = flag.Int("stability", cfg.RequiredStabilityFrames, "Consecutive similar samples that make a slide")
		maxWidth    = flag.Int("max-width", cfg.RenderMaxWidth, "Render frames at most this wide (0 = native)")
		quality     = flag.Int("quality", cfg.JPEGQuality, "JPEG quality of slide images")
	)
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Usage: extract -i <video> [-o slides.pdf]")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if *output == "" {
		*output = strings.TrimSuffix(*input, filepath.Ext(*input)) + ".pdf"
	}

	logger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *input, *output, extraction.Settings{
		SensitivityThreshold:    *sensitivity,
		SamplingInterval:        *interval,
		RequiredStabilityFrames: *stability,
		SettleDelay:             cfg.SettleDelay,
		JPEGQuality:             *quality,
	}, *maxWidth); err != nil {
		logger.Fatal("extraction failed", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger, input, output string, settings extraction.Settings, maxWidth int) error {
	ffmpeg, err := video.NewFFmpeg(maxWidth, logger)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp("", "vslides-extract-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)

	blobs, err := storage.NewLocalStorage(workDir)
	if err != nil {
		return err
	}

	service := extraction.NewService(extraction.Config{
		Opener:  ffmpeg,
		Encoder: encoder.NewJPEG(),
		Blobs:   blobs,
		Logger:  logger,
	})

	store := framestore.New()
	sess, err := service.NewSession(filepath.Base(input), settings, store)
	if err != nil {
		return err
	}

	src, err := ffmpeg.Open(ctx, input)
	if err != nil {
		return err
	}
	defer src.Close()

	total := extraction.SampleCount(src.Duration(), settings.SamplingInterval)
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Sampling"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetRenderBlankState(true),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range sess.Updates {
			switch ev := u.Data.(type) {
			case extraction.ProgressEvent:
				bar.Set(ev.Sample)
			case extraction.FrameAcceptedEvent:
				bar.Describe(fmt.Sprintf("Sampling (%d slides)", store.Len()))
			}
		}
	}()

	runErr := service.Run(ctx, sess, src)
	<-done
	bar.Finish()
	fmt.Fprintln(os.Stderr)
	if runErr != nil {
		return runErr
	}

	pages, err := writeDeck(ctx, blobs, store, output)
	if err != nil {
		return err
	}

	fmt.Printf("Extraction complete: %d unique slides detected\n", store.Len())
	fmt.Printf("Saved %d pages to %s\n", pages, output)
	return nil
}

// writeDeck exports the selected slides of store to output, in gallery order.
func writeDeck(ctx context.Context, blobs storage.Storage, store *framestore.Store, output string) (int, error) {
	pages, err := export.Pages(ctx, blobs, store.SelectedFrames())
	if err != nil {
		return 0, err
	}
	if err := export.WriteFile(ctx, output, pages); err != nil {
		return 0, err
	}
	return len(pages), nil
}
