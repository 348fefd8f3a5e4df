// Command originserver runs the classroom streaming origin: it reacts to
// RTMP ingest hooks, supervises the transcoder per active stream, writes
// HLS playlists, and serves the realtime collaboration room over the
// Event Channel and an operator HTTP API.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"classroom-stream/origin/internal/cleanup"
	"classroom-stream/origin/internal/config"
	"classroom-stream/origin/internal/domain"
	"classroom-stream/origin/internal/httpapi"
	"classroom-stream/origin/internal/orchestrator"
	"classroom-stream/origin/internal/playlist"
	"classroom-stream/origin/internal/room"
	"classroom-stream/origin/internal/store"
)

func main() {
	if len(os.Args) > 1 {
		if RunCLI(os.Args[1:], config.Load().DBPath) {
			return
		}
	}

	cfg := config.Load()

	addr := flag.String("addr", cfg.Addr, "HTTP/WebSocket listen address")
	dataDir := flag.String("data-dir", cfg.DataDir, "data directory created at startup (the HLS, recordings and database paths are set by their own flags)")
	hlsDir := flag.String("hls-dir", cfg.HLSDir, "HLS output directory")
	recordingsDir := flag.String("recordings-dir", cfg.RecordingsDir, "pass-through archival recordings directory")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path for the audit log and recordings index")
	ffmpegPath := flag.String("ffmpeg", cfg.FFmpegPath, "path to the ffmpeg binary")
	cleanupGrace := flag.Duration("cleanup-grace", cfg.CleanupGrace, "grace period before a stopped stream's HLS output and room are torn down")
	idleTimeout := flag.Duration("idle-timeout", cfg.ConnIdleTimeout, "websocket idle timeout")
	stopBudget := flag.Duration("stop-budget", cfg.TranscoderStopBudget, "time budget for graceful transcoder shutdown before it is force-killed")
	flag.Parse()

	setupLogging()

	for _, dir := range []string{*dataDir, *hlsDir, *recordingsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("create directory %s: %v", dir, err)
		}
	}

	st, err := store.New(*dbPath)
	if err != nil {
		log.Fatalf("[store] %v", err)
	}
	defer st.Close()

	playlists := playlist.NewWriter(*hlsDir)
	rooms := room.NewRegistry(room.WithChatRetention(cfg.ChatRetentionCount))
	cleanupSch := cleanup.NewScheduler(*cleanupGrace)

	orch := orchestrator.New(
		playlists, rooms, cleanupSch,
		orchestrator.Options{
			FFmpegPath:             *ffmpegPath,
			RecordingsDir:          *recordingsDir,
			StopBudget:             *stopBudget,
			Renditions:             cfg.Renditions,
			HardwareAcceleration:   cfg.HardwareAcceleration,
			SegmentDurationSeconds: cfg.SegmentDurationSeconds,
			PlaylistWindowSize:     cfg.PlaylistWindowSize,
		},
		func(entry domain.RecordingEntry) {
			ctx := context.Background()
			if err := st.InsertRecording(ctx, entry); err != nil {
				slog.Error("persist recording entry", "stream_key", entry.StreamKey, "err", err)
			}
			if err := st.LogEvent(ctx, entry.StreamKey, "recording_complete", entry.Path); err != nil {
				slog.Error("persist audit log entry", "stream_key", entry.StreamKey, "err", err)
			}
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	// Periodically check that the recordings index can still be read,
	// logging a warning if the query fails.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := st.ListRecordings(ctx); err != nil {
					slog.Warn("recordings index health check failed", "err", err)
				}
			}
		}
	}()

	// The RTMP server's prePublish/postPublish/donePublish hooks are out of
	// scope (spec.md §1); that process calls orch.Dispatch directly as
	// events arrive. Nothing is dispatched from here.

	api := httpapi.New(orch, rooms, st, *idleTimeout)
	slog.Info("listening", "addr", *addr)
	if err := api.Run(ctx, *addr); err != nil {
		log.Fatalf("[httpapi] %v", err)
	}
}

func setupLogging() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(handler))
}
