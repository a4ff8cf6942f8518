// Package watcher runs one synchronous check cycle: login, fetch, extract,
// diff, notify, persist. The outer scheduler re-invokes it on a fixed
// period; nothing overlaps because each cycle blocks end to end.
package watcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/obs-watcher/internal/diff"
	"github.com/user/obs-watcher/internal/domain"
	"github.com/user/obs-watcher/internal/monitoring"
	"github.com/user/obs-watcher/internal/notify"
	"github.com/user/obs-watcher/internal/storage"
)

// Portal is the browser-session surface the watcher drives. A fresh session
// is created per run and closed when the run ends.
type Portal interface {
	Login(ctx context.Context) error
	FetchResultsPage(ctx context.Context) (string, error)
	Close()
}

// Extractor parses a rendered results page into grade records.
type Extractor interface {
	Extract(html string) ([]domain.GradeRecord, error)
}

// History is the optional long-term grade store; may be nil.
type History interface {
	RecordChanges(ctx context.Context, changes []domain.GradeRecord, observedAt time.Time) error
}

// Watcher wires the check cycle together.
type Watcher struct {
	newPortal func() Portal
	extractor Extractor
	store     storage.SnapshotStore
	history   History
	notifier  notify.Notifier
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func New(
	newPortal func() Portal,
	extractor Extractor,
	store storage.SnapshotStore,
	history History,
	notifier notify.Notifier,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Watcher {
	return &Watcher{
		newPortal: newPortal,
		extractor: extractor,
		store:     store,
		history:   history,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one check and reports failures through the notifier instead
// of propagating them; the next scheduled run proceeds normally either way.
func (w *Watcher) Run(ctx context.Context) {
	result, err := w.Check(ctx)
	if err != nil {
		w.metrics.IncCheck("error")
		w.logger.Error("grade check failed", zap.Error(err))
		if alertErr := w.notifier.ErrorAlert(fmt.Sprintf("Error during grade check: %v", err)); alertErr != nil {
			w.logger.Error("error alert delivery failed", zap.Error(alertErr))
		}
		return
	}
	w.metrics.IncCheck("ok")
	w.logger.Info("grade check completed",
		zap.Int("fetched", result.Fetched), zap.Int("changed", len(result.Changed)))
}

// Check performs one full cycle and returns its summary. The snapshot is
// replaced only after the diff and its notification both completed, so a
// delivery failure re-surfaces the same grades on the next run.
func (w *Watcher) Check(ctx context.Context) (*domain.CheckResult, error) {
	previous, err := w.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	portal := w.newPortal()
	defer portal.Close()

	if err := portal.Login(ctx); err != nil {
		w.metrics.IncLogin("failure")
		return nil, fmt.Errorf("portal login: %w", err)
	}
	w.metrics.IncLogin("success")

	html, err := portal.FetchResultsPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch results page: %w", err)
	}

	current, err := w.extractor.Extract(html)
	if err != nil {
		return nil, fmt.Errorf("extract grade table: %w", err)
	}
	if len(current) == 0 {
		// Nothing parsed: likely a transient portal hiccup. Keep the old
		// snapshot so a later good parse still diffs against real data.
		w.logger.Warn("no grade records on results page, keeping previous snapshot")
		return &domain.CheckResult{CheckedAt: w.now()}, nil
	}

	changed := diff.Changed(previous, current)
	if len(changed) > 0 {
		w.logger.Info("new or changed grades found", zap.Int("count", len(changed)))
		if err := w.notifier.GradeAlert(changed); err != nil {
			return nil, fmt.Errorf("grade notification: %w", err)
		}
		w.metrics.AddGradesAlerted(len(changed))

		if w.history != nil {
			if err := w.history.RecordChanges(ctx, changed, w.now()); err != nil {
				// History is an archive, not the source of truth; a write
				// failure must not re-trigger notifications.
				w.logger.Warn("grade history write failed", zap.Error(err))
			}
		}
	}

	if err := w.store.Save(ctx, current); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	return &domain.CheckResult{
		Fetched:   len(current),
		Changed:   changed,
		CheckedAt: w.now(),
	}, nil
}
