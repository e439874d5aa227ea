package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task removes one kind of stale data and reports how many rows went away
type Task struct {
	Name string
	Run  func(ctx context.Context, now time.Time) (int64, error)
}

// RevokedTokenStore drops deny-list entries for tokens that expired on their own
type RevokedTokenStore interface {
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

// VerificationTokenStore drops expired or used verification tokens
type VerificationTokenStore interface {
	CleanupExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditLogStore drops audit rows past retention
type AuditLogStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper evicts expired in-process counters
type Sweeper interface {
	Sweep() int
}

func RevokedTokensTask(store RevokedTokenStore) Task {
	return Task{Name: "revoked_tokens", Run: store.CleanupExpired}
}

func VerificationTokensTask(store VerificationTokenStore) Task {
	return Task{Name: "verification_tokens", Run: store.CleanupExpired}
}

// AuditRetentionTask deletes audit rows older than retention
func AuditRetentionTask(store AuditLogStore, retention time.Duration) Task {
	return Task{
		Name: "audit_logs",
		Run: func(ctx context.Context, now time.Time) (int64, error) {
			return store.DeleteOlderThan(ctx, now.Add(-retention))
		},
	}
}

func RateLimitSweepTask(sweeper Sweeper) Task {
	return Task{
		Name: "rate_limit_counters",
		Run: func(context.Context, time.Time) (int64, error) {
			return int64(sweeper.Sweep()), nil
		},
	}
}

// CleanupManager periodically runs its tasks until stopped
type CleanupManager struct {
	tasks    []Task
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(logger *slog.Logger, interval time.Duration, tasks ...Task) *CleanupManager {
	return &CleanupManager{
		tasks:    tasks,
		logger:   logger,
		interval: interval,
		timeout:  30 * time.Second,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup and blocks until Stop or ctx is done
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce runs every task once. A failing task does not stop the others.
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	now := cm.now().UTC()
	for _, task := range cm.tasks {
		cm.run(ctx, task, now)
	}
}

func (cm *CleanupManager) run(ctx context.Context, task Task, now time.Time) {
	taskCtx, cancel := context.WithTimeout(ctx, cm.timeout)
	defer cancel()

	removed, err := task.Run(taskCtx, now)
	if err != nil {
		cm.logger.Error("cleanup task failed", slog.String("task", task.Name), slog.Any("error", err))
		return
	}
	if removed > 0 {
		cm.logger.Info("cleanup task completed", slog.String("task", task.Name), slog.Int64("rows_deleted", removed))
	}
}

// Stop signals the cleanup manager to stop; safe to call more than once
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
