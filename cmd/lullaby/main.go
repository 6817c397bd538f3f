package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/codewandler/lullaby-go"
	"github.com/codewandler/lullaby-go/config"
	"github.com/codewandler/lullaby-go/device"
	"github.com/codewandler/lullaby-go/internal/cli"
	"github.com/codewandler/lullaby-go/internal/mic"
	"github.com/codewandler/lullaby-go/internal/speaker"
	"github.com/codewandler/lullaby-go/kv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	slog.SetLogLoggerLevel(slog.LevelError)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := kv.Open(kv.DefaultPath(cfg.DataDir))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	recordings := filepath.Join(cfg.DataDir, "recordings")
	if err := os.MkdirAll(recordings, 0o755); err != nil {
		return err
	}

	logger := slog.Default()
	httpClient := &http.Client{Timeout: 15 * time.Second}

	input := mic.New(recordings, cfg.SampleRate, mic.WithLogger(logger.With(slog.String("component", "mic"))))
	defer input.Close()

	output := speaker.New(cfg.SampleRate, os.DirFS(cfg.AssetsDir),
		speaker.WithLogger(logger.With(slog.String("component", "speaker"))),
		speaker.WithHTTPClient(httpClient),
	)

	app := lullaby.New(lullaby.Hardware{
		Output:      output,
		Input:       input,
		Permissions: input,
		Files:       device.LocalFiles{},
	},
		lullaby.WithDefaultLogger(),
		lullaby.WithStorage(store),
		lullaby.WithManifestURL(cfg.ManifestURL),
		lullaby.WithHTTPClient(httpClient),
		lullaby.WithCacheTTL(cfg.CacheTTL),
		lullaby.WithPreview(cfg.PreviewDuration(), cfg.PreviewVolume),
		lullaby.WithLoopVoice(cfg.LoopVoice),
	)
	defer app.Close(context.Background())

	deps := &cli.Dependencies{
		App:    app,
		Config: cfg,
	}
	return cli.NewRootCmd(deps).Execute()
}
