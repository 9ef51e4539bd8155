package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/theprantadutta/filerunner/pkg/jobs"
)

const jobTypeTokenPurge = "token_purge"

type tokenPurger interface {
	PurgeExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// MaintenanceConfig drives the background purge cadence.
type MaintenanceConfig struct {
	PurgeInterval  time.Duration
	TokenRetention time.Duration
	Workers        int
	Retries        int
}

// MaintenanceService owns background housekeeping: a worker queue plus the
// ticker that feeds it the periodic purge of dead refresh tokens. Purges can
// also be triggered on demand through RunPurge.
type MaintenanceService struct {
	tokens tokenPurger
	logger *zap.Logger
	config MaintenanceConfig

	queue   *jobs.Queue
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewMaintenanceService wires the maintenance worker queue.
func NewMaintenanceService(tokens tokenPurger, logger *zap.Logger, config MaintenanceConfig) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PurgeInterval <= 0 {
		config.PurgeInterval = time.Hour
	}
	s := &MaintenanceService{
		tokens: tokens,
		logger: logger,
		config: config,
	}
	s.queue = jobs.NewQueue("maintenance", s.handle, jobs.QueueConfig{
		Workers:    config.Workers,
		MaxRetries: config.Retries,
		Logger:     logger,
	})
	return s
}

// Start launches the workers and the purge ticker. An initial sweep runs
// right away so restarts do not postpone cleanup by a full interval.
func (s *MaintenanceService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.queue.Start(ctx)
	s.wg.Add(1)
	go s.tick(ctx)
	s.started = true
	s.logger.Info("maintenance started", zap.Duration("purge_interval", s.config.PurgeInterval))
}

// Stop halts the ticker and drains the workers.
func (s *MaintenanceService) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	s.queue.Stop()
}

// RunPurge removes refresh tokens whose expiry lies beyond the retention
// window. Exposed so the admin API can trigger a sweep on demand.
func (s *MaintenanceService) RunPurge(ctx context.Context) (int64, error) {
	return s.tokens.PurgeExpired(ctx, s.config.TokenRetention)
}

func (s *MaintenanceService) tick(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.PurgeInterval)
	defer ticker.Stop()

	s.enqueuePurge()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enqueuePurge()
		}
	}
}

func (s *MaintenanceService) enqueuePurge() {
	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: jobTypeTokenPurge}); err != nil {
		s.logger.Warn("failed to enqueue purge job", zap.Error(err))
	}
}

func (s *MaintenanceService) handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case jobTypeTokenPurge:
		_, err := s.RunPurge(ctx)
		return err
	default:
		s.logger.Warn("ignoring unknown maintenance job", zap.String("type", job.Type))
		return nil
	}
}
