package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"Ariami/config"
	"Ariami/core/library"
	"Ariami/core/meta"
	"Ariami/logger"
	"Ariami/store"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan cycle and print a summary",
	Long:  "Index the music collection once, persist the snapshot and exit. Useful for cron jobs and for inspecting a collection without starting the server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan()
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan() error {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
	})

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

	start := time.Now()
	manager.RequestScan("")
	if !manager.WaitIdle(30 * time.Minute) {
		return fmt.Errorf("scan did not finish")
	}

	status := manager.Status()
	if status.LastCycle != nil && status.LastCycle.Error != "" {
		return fmt.Errorf("scan failed: %s", status.LastCycle.Error)
	}

	fmt.Printf("Scanned %s in %s\n", cfg.MusicRoot, time.Since(start).Round(time.Millisecond))
	fmt.Printf("  songs:  %d\n", status.Songs)
	fmt.Printf("  albums: %d\n", status.Albums)
	if c := status.LastCycle; c != nil {
		fmt.Printf("  files seen: %d\n", c.FilesSeen)
		fmt.Printf("  added %d, modified %d, moved %d, removed %d\n",
			c.Added, c.Modified, c.Moved, c.Removed)
	}
	return nil
}
