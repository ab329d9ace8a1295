package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/hr-requests/internal/application/port"
)

// RelayConfig holds configuration for the notification relay
type RelayConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	PublishTimeout time.Duration
}

// DefaultRelayConfig returns default configuration
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		PollInterval:   5 * time.Second,
		BatchSize:      50,
		MaxAttempts:    5,
		PublishTimeout: 10 * time.Second,
	}
}

// RelayStats is a snapshot of the relay's counters
type RelayStats struct {
	Delivered int
	Failed    int
	LastRun   time.Time
	LastError error
}

// NotificationRelay publishes persisted notifications that have not been delivered yet.
// Each failed publish increments the row's attempts; rows reaching MaxAttempts are no longer picked up.
type NotificationRelay struct {
	config    RelayConfig
	repo      port.NotificationRepository
	publisher port.NotificationPublisher
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	stats     RelayStats
}

// NewNotificationRelay creates a new relay worker
func NewNotificationRelay(
	config RelayConfig,
	repo port.NotificationRepository,
	publisher port.NotificationPublisher,
	logger *zap.Logger,
) *NotificationRelay {
	defaults := DefaultRelayConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = defaults.PublishTimeout
	}

	return &NotificationRelay{
		config:    config,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Start begins the polling loop
func (r *NotificationRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("notification relay already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.isRunning = true
	r.mu.Unlock()

	r.logger.Info("NotificationRelay started",
		zap.Duration("poll_interval", r.config.PollInterval),
		zap.Int("batch_size", r.config.BatchSize),
		zap.Int("max_attempts", r.config.MaxAttempts))

	go r.pollLoop(runCtx)
	return nil
}

// Stop terminates the polling loop and waits for the current batch to finish
func (r *NotificationRelay) Stop() error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done

	stats := r.Stats()
	r.logger.Info("NotificationRelay stopped",
		zap.Int("delivered", stats.Delivered),
		zap.Int("failed", stats.Failed))
	return nil
}

// Name returns the worker name for identification
func (r *NotificationRelay) Name() string {
	return "NotificationRelay"
}

// Stats returns a snapshot of the relay counters
func (r *NotificationRelay) Stats() RelayStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

func (r *NotificationRelay) pollLoop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RelayBatch(ctx); err != nil {
				r.logger.Error("Failed to relay notifications", zap.Error(err))
			}
		}
	}
}

// RelayBatch publishes one batch of undelivered notifications and returns how many were delivered
func (r *NotificationRelay) RelayBatch(ctx context.Context) (int, error) {
	pending, err := r.repo.ListUndelivered(ctx, r.config.MaxAttempts, r.config.BatchSize)
	if err != nil {
		r.recordRun(0, 0, err)
		return 0, fmt.Errorf("failed to list undelivered notifications: %w", err)
	}

	delivered, failed := 0, 0
	for _, n := range pending {
		if ctx.Err() != nil {
			break
		}

		pubCtx, cancel := context.WithTimeout(ctx, r.config.PublishTimeout)
		pubErr := r.publisher.Publish(pubCtx, n)
		cancel()

		if pubErr != nil {
			failed++
			r.logger.Warn("Failed to publish notification",
				zap.String("notification_id", n.ID),
				zap.Int("attempt", n.Attempts+1),
				zap.Error(pubErr))
			if err := r.repo.IncrementAttempts(ctx, n.ID); err != nil {
				r.logger.Error("Failed to record delivery attempt",
					zap.String("notification_id", n.ID),
					zap.Error(err))
			}
			continue
		}

		if err := r.repo.MarkDelivered(ctx, n.ID, r.now().UTC()); err != nil {
			r.logger.Error("Failed to mark notification delivered",
				zap.String("notification_id", n.ID),
				zap.Error(err))
			continue
		}
		delivered++
	}

	r.recordRun(delivered, failed, nil)
	if delivered > 0 || failed > 0 {
		r.logger.Info("Notification batch relayed",
			zap.Int("delivered", delivered),
			zap.Int("failed", failed))
	}
	return delivered, nil
}

func (r *NotificationRelay) recordRun(delivered, failed int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Delivered += delivered
	r.stats.Failed += failed
	r.stats.LastRun = r.now()
	r.stats.LastError = err
}
