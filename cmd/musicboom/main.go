// MusicBoom drives a haptic device from live or recorded audio
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NovaGlider/musicboom/internal/audio"
	"github.com/NovaGlider/musicboom/internal/config"
	"github.com/NovaGlider/musicboom/internal/device"
	"github.com/NovaGlider/musicboom/internal/health"
	"github.com/NovaGlider/musicboom/internal/orchestrator"
	"github.com/NovaGlider/musicboom/internal/resilience"
	"github.com/NovaGlider/musicboom/internal/server"
)

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	if err := config.ParseFlags(cfg, "musicboom", os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	// Logs go to stderr so debug bars on stdout stay readable
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	act, err := device.Connect(ctx, device.Config{
		URI:         cfg.IntifaceURI,
		ScanTimeout: cfg.ScanTimeout,
		Retry:       resilience.ConnectRetryConfig(),
	})
	if err != nil {
		slog.Error("failed to connect to haptic device", "uri", cfg.IntifaceURI, "error", err)
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := act.Close(closeCtx); err != nil {
			slog.Warn("device close failed", "error", err)
		}
	}()

	var (
		source   audio.Source
		fileDone <-chan struct{}
	)
	if cfg.InputFile != "" {
		fs := audio.NewFileSource(audio.FileConfig{
			Path:            cfg.InputFile,
			FramesPerBuffer: cfg.FramesPerBuffer,
			Paced:           true,
		})
		source, fileDone = fs, fs.Done()
	} else {
		capturer, err := audio.NewCapturer(audio.CaptureConfig{
			Filter:          cfg.CaptureFilter,
			Excluded:        cfg.ExcludedDevices,
			FramesPerBuffer: cfg.FramesPerBuffer,
		})
		if err != nil {
			slog.Error("audio capture unavailable", "error", err)
			return 1
		}
		source = capturer
	}

	mgr, err := orchestrator.New(cfg, source, act)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		return 1
	}

	var hs *health.Server
	if cfg.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			slog.Error("health listener failed", "addr", cfg.HealthAddr, "error", err)
			return 1
		}
		hs = health.New()
		go func() {
			if err := hs.Serve(lis); err != nil {
				slog.Error("health server error", "error", err)
			}
		}()
		defer hs.Stop()
	}

	var (
		httpServer *http.Server
		monitor    *server.Server
	)
	if cfg.HTTPAddr != "" {
		monitor = server.New(mgr)
		httpServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           monitor.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go monitor.Run(ctx)
		go func() {
			slog.Info("monitor server starting", "http", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
				slog.Error("http server error", "error", err)
			}
		}()
	}

	// The pipeline outlives ctx so Stop can drain it after a signal.
	if err := mgr.Start(context.WithoutCancel(ctx)); err != nil {
		slog.Error("failed to start pipeline", "source", source.Name(), "error", err)
		return 1
	}
	if hs != nil {
		hs.SetAll(true)
		hs.Track(mgr.Done())
		hs.Track(act.Done(), health.ServiceDevice)
	}
	slog.Info("running, press enter to stop", "source", source.Name(), "device", act.Name())

	select {
	case <-waitForEnter():
		slog.Info("stop requested")
	case <-ctx.Done():
		slog.Info("signal received")
	case <-fileDone:
		slog.Info("input file finished")
	case <-mgr.Done():
	}

	code := 0
	if err := mgr.Stop(); err != nil {
		slog.Error("pipeline failed", "error", err)
		code = 1
	}
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}
		cancel()
		monitor.Close()
	}
	slog.Info("shutdown complete", "status", mgr.Status().Dispatch)
	return code
}

// waitForEnter closes the returned channel when a line is read from stdin.
// A closed or non-interactive stdin never triggers it.
func waitForEnter() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err == nil {
			close(ch)
		}
	}()
	return ch
}
