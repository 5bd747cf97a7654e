package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrSettlementRunning reports that a batch is already in flight.
var ErrSettlementRunning = errors.New("settlement batch already running")

// SettlementRunner is the single-flight wrapper around the batch: the
// read-then-mark sequence is not atomic, so two overlapping runs could
// settle the same votes twice. One mutex, one process — overlap across
// processes stays an operational invariant of the deployment.
type SettlementRunner struct {
	svc      *SettlementService
	interval time.Duration
	log      *zap.Logger
	mu       sync.Mutex
}

func NewSettlementRunner(svc *SettlementService, interval time.Duration, log *zap.Logger) *SettlementRunner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SettlementRunner{svc: svc, interval: interval, log: log}
}

// RunOnce executes one batch, refusing to overlap a running one.
func (r *SettlementRunner) RunOnce(ctx context.Context) (*SettlementReport, error) {
	if !r.mu.TryLock() {
		return nil, ErrSettlementRunning
	}
	defer r.mu.Unlock()
	return r.svc.SettleVoteGems(ctx)
}

// Start launches the periodic loop; the returned stop function blocks
// until the loop exits.
func (r *SettlementRunner) Start() func(context.Context) error {
	stop := make(chan struct{})
	done := make(chan struct{})
	go r.loop(stop, done)
	return func(ctx context.Context) error {
		close(stop)
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *SettlementRunner) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := r.RunOnce(context.Background()); err != nil && !errors.Is(err, ErrSettlementRunning) {
				r.log.Error("settlement batch failed", zap.Error(err))
			}
		}
	}
}
