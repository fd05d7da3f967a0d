package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"techcare/internal/config"
	"techcare/internal/metrics"

	"github.com/rs/zerolog"
)

const snapshotPrefix = "techcare_"

// BackupService snapshots a SQLite database on a fixed interval with VACUUM INTO.
// Postgres deployments rely on the provider's backups.
type BackupService struct {
	db     *DB
	cfg    config.BackupConfig
	logger *zerolog.Logger
	now    func() time.Time
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	return &BackupService{db: db, cfg: cfg, logger: logger, now: time.Now}
}

func (s *BackupService) interval() time.Duration {
	if s.cfg.Schedule == "" {
		return 24 * time.Hour
	}
	d, err := time.ParseDuration(s.cfg.Schedule)
	if err != nil || d <= 0 {
		s.logger.Warn().Str("schedule", s.cfg.Schedule).Msg("invalid backup schedule, falling back to 24h")
		return 24 * time.Hour
	}
	return d
}

// Start takes a snapshot immediately and then once per interval until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info().Msg("database backups disabled")
		return
	}
	if s.db.driver != DriverSQLite {
		s.logger.Info().Str("driver", s.db.driver).Msg("skipping local backups for managed database")
		return
	}

	every := s.interval()
	s.logger.Info().Dur("interval", every).Str("dir", s.cfg.StoragePath).Msg("database backups scheduled")

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *BackupService) runOnce(ctx context.Context) {
	path, err := s.PerformBackup(ctx)
	if err != nil {
		metrics.IncBackup("error")
		s.logger.Error().Err(err).Msg("database backup failed")
		return
	}
	metrics.IncBackup("ok")
	s.logger.Info().Str("path", path).Msg("database backup written")
	if n := s.CleanupOldBackups(); n > 0 {
		s.logger.Info().Int("removed", n).Msg("old backups pruned")
	}
}

// PerformBackup writes a consistent snapshot and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if s.db.driver != DriverSQLite {
		return "", fmt.Errorf("backup not supported for driver %s", s.db.driver)
	}
	if err := os.MkdirAll(s.cfg.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	name := snapshotPrefix + s.now().UTC().Format("20060102T150405.000") + ".db"
	path := filepath.Join(s.cfg.StoragePath, name)

	// VACUUM INTO takes a string literal, not a bind parameter.
	stmt := "VACUUM INTO '" + strings.ReplaceAll(path, "'", "''") + "'"
	if _, err := s.db.conn.ExecContext(ctx, stmt); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return path, nil
}

// Snapshots lists snapshot file names, oldest first.
func (s *BackupService) Snapshots() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.StoragePath)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), snapshotPrefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// CleanupOldBackups deletes snapshots older than the retention window and reports
// how many were removed. A non-positive retention keeps everything.
func (s *BackupService) CleanupOldBackups() int {
	if s.cfg.RetentionDays <= 0 {
		return 0
	}
	names, err := s.Snapshots()
	if err != nil {
		s.logger.Warn().Err(err).Msg("list backups")
		return 0
	}

	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays)
	removed := 0
	for _, name := range names {
		path := filepath.Join(s.cfg.StoragePath, name)
		info, err := os.Stat(path)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("remove old backup")
			continue
		}
		removed++
	}
	return removed
}
