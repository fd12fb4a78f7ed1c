package cleanup

import (
	"context"
	"errors"
	"time"

	"trailmap-go/config"
	"trailmap-go/internal/core/models"
	"trailmap-go/internal/core/store"
	"trailmap-go/internal/db/repository"

	log "github.com/sirupsen/logrus"
)

// Service handles the periodic cleanup of old detections based on the
// configured retention time. Deletions go through the detection store so the
// daily rollups stay consistent with every pruned row.
type Service struct {
	store    *store.Store
	cfg      config.CleanupConfig
	stopChan chan struct{}
}

// NewService creates a new cleanup service.
// Returns nil if retention is disabled (retention_days <= 0).
func NewService(st *store.Store, cfg config.CleanupConfig) *Service {
	if cfg.RetentionDays <= 0 {
		log.Info("Detection retention cleanup is disabled")
		return nil
	}
	return &Service{
		store:    st,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

// StartBackgroundCleanup starts the periodic cleanup in a goroutine
func (s *Service) StartBackgroundCleanup() {
	interval := time.Duration(s.cfg.CheckIntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	log.Infof("Starting background cleanup: retention %d days, check interval %v",
		s.cfg.RetentionDays, interval)

	go func() {
		// Run once at startup, then on the ticker
		s.RunCleanupCycle()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.RunCleanupCycle()
			case <-s.stopChan:
				log.Info("Background cleanup stopped")
				return
			}
		}
	}()
}

// Stop terminates the background cleanup
func (s *Service) Stop() {
	close(s.stopChan)
}

// RunCleanupCycle deletes all detections older than the retention cutoff.
// Each deletion is its own transaction, so an interrupted cycle leaves the
// store and the rollups consistent and the next cycle picks up the rest.
func (s *Service) RunCleanupCycle() {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)
	log.Infof("Running cleanup cycle, deleting detections before %s", cutoff.Format(time.RFC3339))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	old, err := s.store.Query(ctx, repository.DetectionFilters{To: &cutoff})
	if err != nil {
		log.Errorf("Cleanup cycle failed to query old detections: %v", err)
		return
	}
	if len(old) == 0 {
		log.Debug("Cleanup cycle found nothing to delete")
		return
	}

	deleted := 0
	for i := range old {
		if err := s.store.Delete(ctx, old[i].DetectionID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			log.Errorf("Cleanup cycle aborted after %d deletions: %v", deleted, err)
			return
		}
		deleted++
	}

	log.Infof("Cleanup cycle finished, deleted %d detections", deleted)
}
