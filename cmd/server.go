package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"Ariami/config"
	"Ariami/core/library"
	"Ariami/core/meta"
	"Ariami/core/session"
	"Ariami/core/watcher"
	"Ariami/logger"
	"Ariami/server"
	"Ariami/store"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the library server",
	Long:  "Index the music collection, watch it for changes and serve it over HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer() error {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
	})

	if info, err := os.Stat(cfg.MusicRoot); err != nil || !info.IsDir() {
		return fmt.Errorf("music root %s is not a directory", cfg.MusicRoot)
	}

	st, err := store.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open data dir: %w", err)
	}

	metaCache := meta.NewCache(st, cfg.PruneGraceScans)
	metaCache.Load()

	detector := library.NewDuplicateDetector(library.ParseTieBreak(cfg.TieBreak))
	processor := library.NewProcessor(cfg.MusicRoot, metaCache, detector)
	manager := library.NewManager(cfg.MusicRoot, processor, metaCache, st)
	manager.LoadPersisted()

	sessions := session.NewManager(cfg.JWTSecret, cfg.HeartbeatTimeout, cfg.MaxSessions)
	srv := server.New(cfg, manager, sessions, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := watcher.New(cfg.MusicRoot, cfg.DebounceWindow, manager.RequestScan)
	go func() {
		if err := w.Run(ctx); err != nil {
			logger.Error("watcher stopped", logger.ErrorField(err))
		}
	}()

	go sweepSessions(ctx, sessions, cfg.HeartbeatTimeout)

	// Reconcile the persisted snapshot against the filesystem right away.
	manager.RequestScan("")

	return srv.Run(ctx)
}

// sweepSessions frees expired sessions in the background. Validation already
// refuses them; this keeps the session table from growing.
func sweepSessions(ctx context.Context, sessions *session.Manager, timeout time.Duration) {
	ticker := time.NewTicker(timeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if dropped := sessions.Sweep(); dropped > 0 {
				logger.Debug("swept expired sessions", logger.Int("count", dropped))
			}
		}
	}
}
