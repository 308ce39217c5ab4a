package history

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/strefethen/sonos-player-go/internal/config"
)

const (
	DefaultQueryLimit      = 50
	MaxQueryLimit          = 500
	DefaultPruneSchedule   = "@daily"
	MaxConsecutiveFailures = 3
)

// Service records plays and prunes old history on a cron schedule.
type Service struct {
	logger              *log.Logger
	repo                *Repository
	retention           time.Duration
	schedule            string
	cron                *cron.Cron
	now                 func() time.Time
	healthy             bool
	healthMu            sync.RWMutex
	consecutiveFailures int
}

// NewService creates a new history service.
func NewService(cfg config.Config, dbPair DBPair, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	schedule := cfg.HistoryPruneSchedule
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}

	return &Service{
		logger:    logger,
		repo:      NewRepository(dbPair),
		retention: cfg.HistoryRetention(),
		schedule:  schedule,
		now:       time.Now,
		healthy:   true,
	}
}

// Record stores the outcome of one play request.
func (s *Service) Record(input RecordInput) (*PlayRecord, error) {
	record, err := s.repo.Insert(input)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to record play: %w", err)
	}

	s.recordSuccess()
	return record, nil
}

// List returns plays newest first, the total match count, and whether
// more pages exist.
func (s *Service) List(filters QueryFilters) ([]PlayRecord, int, bool, error) {
	if filters.Limit == 0 {
		filters.Limit = DefaultQueryLimit
	}
	if filters.Limit > MaxQueryLimit {
		filters.Limit = MaxQueryLimit
	}

	records, total, err := s.repo.Query(filters)
	if err != nil {
		s.recordFailure()
		return nil, 0, false, fmt.Errorf("failed to query plays: %w", err)
	}

	s.recordSuccess()
	return records, total, filters.Offset+len(records) < total, nil
}

// Get retrieves a single play by ID.
func (s *Service) Get(playID string) (*PlayRecord, error) {
	record, err := s.repo.Get(playID)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to get play: %w", err)
	}
	if record == nil {
		return nil, &PlayNotFoundError{PlayID: playID}
	}

	s.recordSuccess()
	return record, nil
}

// Prune deletes plays older than the retention window.
// A zero retention keeps everything.
func (s *Service) Prune() (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}

	count, err := s.repo.Prune(s.now().Add(-s.retention))
	if err != nil {
		s.recordFailure()
		return 0, fmt.Errorf("failed to prune plays: %w", err)
	}

	s.recordSuccess()
	return count, nil
}

// StartPruneJob prunes once and then on the configured cron schedule.
func (s *Service) StartPruneJob() error {
	s.logger.Printf("Starting play history prune job (schedule: %s, retention: %v)", s.schedule, s.retention)

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.runPrune); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", s.schedule, err)
	}

	s.runPrune()
	c.Start()
	s.cron = c
	return nil
}

// StopPruneJob stops the scheduler and waits for a running prune.
func (s *Service) StopPruneJob() {
	if s.cron == nil {
		return
	}
	s.logger.Printf("Stopping play history prune job")
	<-s.cron.Stop().Done()
	s.cron = nil
}

func (s *Service) runPrune() {
	count, err := s.Prune()
	if err != nil {
		s.logger.Printf("Error pruning play history: %v", err)
		return
	}
	if count > 0 {
		s.logger.Printf("Pruned %d play history records", count)
	}
}

// IsHealthy reports false after repeated consecutive storage failures.
func (s *Service) IsHealthy() bool {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.healthy
}

func (s *Service) recordSuccess() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures = 0
	s.healthy = true
}

func (s *Service) recordFailure() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures++
	if s.consecutiveFailures >= MaxConsecutiveFailures {
		s.healthy = false
	}
}
