// Package buildlog persists a record of every build's terminal outcome to
// MySQL, an audit trail the in-memory singleflight.Cache intentionally does
// not keep (its own retention rule is "until replacement," per spec.md §9).
// It is entirely optional: a nil *Store is a valid no-op, so the gateway
// runs the same whether or not a database is configured.
package buildlog

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/go-arcade/cadflight/internal/taskrun"
	"github.com/go-arcade/cadflight/pkg/id"
	"github.com/go-arcade/cadflight/pkg/log"
)

// Record is one row of the build_record table: the terminal outcome of a
// single observer's submission, not of the cache entry itself (fan-out
// means several Records can share the same FingerprintKey).
type Record struct {
	ID             string `gorm:"primaryKey;size:26"`
	Endpoint       string `gorm:"size:32;index"`
	Assembly       string `gorm:"size:32"`
	FingerprintKey string `gorm:"size:16;index"`
	Outcome        string `gorm:"size:16"`
	ErrorMessage   string `gorm:"size:1024"`
	StartedAt      time.Time
	FinishedAt     time.Time
	DurationMs     int64
}

func (Record) TableName() string { return "build_record" }

// Store wraps a *gorm.DB for Record persistence. The zero value is not
// usable directly; use New, or leave a *Store nil to disable logging.
type Store struct {
	db *gorm.DB
}

// New wraps an already opened db and ensures the build_record table exists.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Record inserts rec asynchronously so a slow or unavailable database never
// adds latency to an observer's SSE stream; failures are logged, not
// propagated, since the audit trail is best-effort by design.
func (s *Store) Record(rec Record) {
	if s == nil {
		return
	}
	if rec.ID == "" {
		rec.ID = id.ULID()
	}
	taskrun.Go(context.Background(), func(ctx context.Context) {
		if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
			log.Errorw("buildlog: failed to insert record", "endpoint", rec.Endpoint, "error", err)
		}
	})
}

// Prune deletes records older than before, for a caller-driven retention
// sweep (RunRetentionSweep, driven by internal/conf.BuildLog.RetentionDays
// from cmd/gateway).
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	if s == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("finished_at < ?", before).Delete(&Record{})
	return res.RowsAffected, res.Error
}

// RunRetentionSweep prunes records older than retentionDays once per tick
// until ctx is cancelled. The teacher's own go.mod carries robfig/cron
// unused (see DESIGN.md), and its hand-rolled pkg/cron scheduler is not
// complete in the retrieved pack, so this sweep is a plain time.Ticker
// loop instead of a cron expression — one fixed interval is all a
// best-effort audit-log retention job needs.
func (s *Store) RunRetentionSweep(ctx context.Context, retentionDays int, interval time.Duration) {
	if s == nil || retentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
			n, err := s.Prune(ctx, cutoff)
			if err != nil {
				log.Errorw("buildlog: retention sweep failed", "error", err)
				continue
			}
			if n > 0 {
				log.Infow("buildlog: retention sweep pruned records", "count", n, "before", cutoff)
			}
		}
	}
}
