package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/kioskmedia/timeline-agent/internal/api"
	"github.com/kioskmedia/timeline-agent/internal/config"
	"github.com/kioskmedia/timeline-agent/internal/db"
	"github.com/kioskmedia/timeline-agent/internal/edit"
	"github.com/kioskmedia/timeline-agent/internal/editor"
	"github.com/kioskmedia/timeline-agent/internal/ledger"
	"github.com/kioskmedia/timeline-agent/internal/logging"
	"github.com/kioskmedia/timeline-agent/internal/media"
	"github.com/kioskmedia/timeline-agent/internal/playback"
	"github.com/kioskmedia/timeline-agent/internal/session"
	"github.com/kioskmedia/timeline-agent/internal/ui"
	"github.com/kioskmedia/timeline-agent/internal/waveform"
)

const deviceIDKey = "device_id"

// agentEnv is the state every subcommand opens first.
type agentEnv struct {
	cfg      *config.EnvConfig
	logger   *slog.Logger
	database *db.DB
	repo     *ledger.SQLiteRepository
}

func openEnv() (*agentEnv, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := os.MkdirAll(cfg.WorkDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return &agentEnv{
		cfg:      cfg,
		logger:   logger,
		database: database,
		repo:     ledger.NewRepository(database.Conn()),
	}, nil
}

func (rt *agentEnv) Close() error {
	return rt.database.Close()
}

// binaries resolves ffmpeg and ffprobe, honouring configured paths. On
// failure the bare names are returned alongside the error so a doctor probe
// can still report what is missing.
func (rt *agentEnv) binaries() (ffmpeg, ffprobe string, err error) {
	ffmpeg, err = media.ResolveBinary(rt.cfg.FFmpegPath(), "ffmpeg")
	if err != nil {
		return "ffmpeg", "ffprobe", err
	}
	ffprobe, err = media.ResolveBinary(rt.cfg.FFprobePath(), "ffprobe")
	if err != nil {
		return ffmpeg, "ffprobe", err
	}
	return ffmpeg, ffprobe, nil
}

func serve() error {
	startTime := time.Now()

	rt, err := openEnv()
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, logger, repo := rt.cfg, rt.logger, rt.repo
	logger.Info("starting timeline agent", "version", config.Version, "data_dir", cfg.DataDir(), "config", cfg.Source())

	deviceID, err := ensureDeviceID(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}
	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║  TIMELINE AGENT v%-41s║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID)
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	ffmpegBin, ffprobeBin, err := rt.binaries()
	if err != nil {
		logger.Warn("media engine unavailable", "error", err)
	}

	doctor := media.NewDoctor(ffmpegBin, ffprobeBin, media.BinaryVersion, logger)
	probeCtx, probeCancel := context.WithTimeout(context.Background(), cfg.ProbeTimeout())
	if caps, err := doctor.Refresh(probeCtx); err != nil {
		logger.Warn("initial engine probe failed", "error", err)
	} else {
		logger.Info("media engine detected", "ready", caps.Ready(), "ffmpeg", caps.FFmpeg.Version)
	}
	probeCancel()

	prober := media.NewFFprobe(ffprobeBin, cfg.ProbeTimeout(), logger)
	executor := media.NewFFmpegExecutor(ffmpegBin, cfg.OpTimeout(), logger)
	width, height := cfg.WaveformSize()
	renderer := media.NewWaveformRenderer(ffmpegBin, width, height, cfg.ProbeTimeout(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	janitor := ledger.NewJanitor(repo, cfg.JanitorInterval(), cfg.OrphanGrace(), logger)
	go janitor.Start(ctx)

	var tray *ui.Tray
	quitCh := make(chan struct{})
	if !cfg.Headless() {
		tray = ui.NewTray(ui.TrayConfig{
			Janitor: janitor,
			Logger:  logger,
			OnQuit:  func() { close(quitCh) },
		})
	}

	var opts []editor.Option
	if tray != nil {
		opts = append(opts, editor.WithChangeHook(tray.Refresh))
	}
	sessions := session.NewManager(prober, cfg.WorkDir(), repo, logger)
	pipeline := edit.New(executor, prober, repo, logger)
	regen := waveform.New(renderer, cfg.WaveformDebounce(), logger)
	ed := editor.New(sessions, pipeline, regen, logger, opts...)

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Editor:         ed,
		Repository:     repo,
		Janitor:        janitor,
		Doctor:         doctor,
		Prober:         prober,
		PlaybackServer: playback.NewServer(logger),
		OpTimeout:      cfg.OpTimeout(),
		Logger:         logger,
		StartTime:      startTime,
		DeviceID:       deviceID,
		Version:        config.Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	stopped := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(stopped)
		case <-quitCh:
			close(stopped)
		}
	}()

	if tray == nil {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray.Attach(ed)
		go tray.Run()
	}

	<-stopped

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := ed.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to close session", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureDeviceID(repo ledger.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, deviceIDKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	deviceID := uuid.NewString()
	if err := repo.SetConfig(ctx, deviceIDKey, deviceID); err != nil {
		return "", err
	}
	return deviceID, nil
}

func ensureAuthToken(repo ledger.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}
	return token, nil
}
