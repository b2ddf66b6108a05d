package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"
)

// DefaultRetentionCron fires the sweep at midnight, once per day.
const DefaultRetentionCron = "0 0 * * *"

// Sweeper prunes expired messages and stale uploads. The two sweeps are
// deliberately independent: messages go by their own timestamp through the
// room loop, files go by mtime on disk. A message may briefly reference a
// deleted file (or the reverse) for up to one sweep cycle.
type Sweeper struct {
	room      *Room
	uploadDir string
	window    time.Duration
	cron      string
	metrics   *Metrics
}

// NewSweeper builds a sweeper with the given cron expression; an empty
// expression falls back to the daily default.
func NewSweeper(room *Room, uploadDir string, window time.Duration, cron string, metrics *Metrics) (*Sweeper, error) {
	if cron == "" {
		cron = DefaultRetentionCron
	}
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("invalid retention cron expression: %q", cron)
	}
	if window <= 0 {
		window = DefaultRetention
	}
	return &Sweeper{
		room:      room,
		uploadDir: uploadDir,
		window:    window,
		cron:      cron,
		metrics:   metrics,
	}, nil
}

// Start launches the scheduler goroutine. It stops when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("retention_enabled", "cron", s.cron, "window", s.window, "uploadDir", s.uploadDir)
	go s.run(ctx)
}

// run sleeps until the next cron tick, sweeps, and repeats.
func (s *Sweeper) run(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(s.cron, time.Now().UTC(), false)
		if err != nil {
			slog.Error("retention_next_tick_failed", "cron", s.cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-time.After(time.Until(next)):
			s.RunOnce(time.Now())
		case <-ctx.Done():
			slog.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce performs a single sweep and returns the pruned counts. The
// message prune goes through the room's event loop so it never races a
// live mutation.
func (s *Sweeper) RunOnce(now time.Time) (messages, files int) {
	cutoff := now.Add(-s.window)

	messages = s.room.PruneMessages(cutoff)
	files = s.sweepFiles(cutoff)

	s.metrics.RetentionRunsTotal.Inc()
	s.metrics.FilesPrunedTotal.Add(float64(files))
	slog.Info("retention_run", "prunedMessages", messages, "prunedFiles", files, "cutoff", cutoff)
	return messages, files
}

// sweepFiles removes uploads whose modification time predates the cutoff.
func (s *Sweeper) sweepFiles(cutoff time.Time) int {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("retention_read_dir_failed", "dir", s.uploadDir, "error", err)
		}
		return 0
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(s.uploadDir, entry.Name())
			if err := os.Remove(path); err != nil {
				slog.Error("retention_remove_failed", "path", path, "error", err)
				continue
			}
			removed++
		}
	}
	return removed
}
