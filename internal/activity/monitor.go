// Package activity records gateway operations for analytics and keeps a
// small in-memory view of recent entries and outcome counters.
package activity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pysugar/cloud-nexus/internal/db"
	"github.com/pysugar/cloud-nexus/internal/db/models"
	"github.com/pysugar/cloud-nexus/internal/logging"
	"github.com/pysugar/cloud-nexus/internal/util"
	"go.uber.org/zap"
)

const (
	// MaxMemoryLogs limits the in-memory cache of recent entries.
	MaxMemoryLogs = 100

	// MaxMessageSize limits the stored message length.
	MaxMessageSize = 1024
)

// Counters are process-lifetime outcome totals.
type Counters struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
}

// Monitor writes activity entries. Writes are best-effort: a failed write
// is logged and never reported to the caller.
type Monitor struct {
	store  *db.ActivityStore
	logger *zap.Logger
	now    func() time.Time

	recent   []models.ActivityLog
	recentMu sync.RWMutex

	total   atomic.Int64
	success atomic.Int64
	failed  atomic.Int64
}

// NewMonitor creates a Monitor backed by store.
func NewMonitor(store *db.ActivityStore, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		store:  store,
		logger: logger.Named("activity"),
		now:    time.Now,
		recent: make([]models.ActivityLog, 0, MaxMemoryLogs),
	}
}

// Record stores one entry. err, when non-nil, marks the entry FAILED and
// becomes its message.
func (m *Monitor) Record(ctx context.Context, entry models.ActivityLog, err error) {
	entry.Status = models.StatusSuccess
	if err != nil {
		entry.Status = models.StatusFailed
		if entry.Message == "" {
			entry.Message = err.Error()
		}
	}
	entry.Message = util.Truncate(entry.Message, MaxMessageSize)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now().UTC()
	}

	m.total.Add(1)
	if err == nil {
		m.success.Add(1)
	} else {
		m.failed.Add(1)
	}

	if werr := m.store.Record(ctx, &entry); werr != nil {
		logging.FromContext(ctx, m.logger).Warn("Failed to save activity",
			zap.String("type", string(entry.Type)), zap.Error(werr))
	}

	m.recentMu.Lock()
	m.recent = append([]models.ActivityLog{entry}, m.recent...)
	if len(m.recent) > MaxMemoryLogs {
		m.recent = m.recent[:MaxMemoryLogs]
	}
	m.recentMu.Unlock()
}

// Recent returns the user's latest entries, newest first. It falls back to
// the in-memory cache when the database cannot be read.
func (m *Monitor) Recent(ctx context.Context, userID string, limit int) []models.ActivityLog {
	if limit <= 0 {
		limit = 50
	}
	logs, err := m.store.Recent(ctx, userID, limit)
	if err == nil {
		return logs
	}
	logging.FromContext(ctx, m.logger).Warn("Failed to read activity, using memory cache", zap.Error(err))

	m.recentMu.RLock()
	defer m.recentMu.RUnlock()
	out := make([]models.ActivityLog, 0, limit)
	for _, e := range m.recent {
		if e.UserID != userID {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Stats returns upload and download counts for the user, where "today"
// starts at local midnight.
func (m *Monitor) Stats(ctx context.Context, userID string) (*models.ActivityStats, error) {
	now := m.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return m.store.Stats(ctx, userID, dayStart.UTC())
}

// Counters returns the in-process outcome totals.
func (m *Monitor) Counters() Counters {
	return Counters{
		Total:   m.total.Load(),
		Success: m.success.Load(),
		Failed:  m.failed.Load(),
	}
}

// Purge drops entries older than retention.
func (m *Monitor) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := m.store.Purge(ctx, m.now().Add(-retention).UTC())
	if err != nil {
		return 0, err
	}
	logging.FromContext(ctx, m.logger).Info("Purged activity", zap.Int64("deleted", n))
	return n, nil
}

// SetClock overrides the time source.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}
