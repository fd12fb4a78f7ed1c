package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trailmap-go/internal/core/models"
	"trailmap-go/internal/core/rollup"
	"trailmap-go/internal/db/repository"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Store ist die einzige Schreibstelle für Detections. Jede Operation, die die
// (Kamera, Tag)-Zugehörigkeit einer Detection ändert, läuft zusammen mit dem
// passenden Rollup-Update in genau einer Transaktion. Ein abgebrochener
// Vorgang hinterlässt daher nie einen Zustand, in dem Detection-Tabelle und
// Tagesaggregate auseinanderlaufen.
type Store struct {
	db                  *gorm.DB
	repo                repository.Repository
	engine              *rollup.Engine
	retry               repository.RetryConfig
	timeout             time.Duration
	allowUnknownCameras bool
}

// Options konfigurieren den Store
type Options struct {
	Retry               repository.RetryConfig
	Timeout             time.Duration // Obergrenze pro Store-Operation
	AllowUnknownCameras bool          // Reassign auf unregistrierte Kameras zulassen
}

// BulkResult ist das Ergebnis einer einzelnen Zeile eines BulkInsert
type BulkResult struct {
	Index       int
	DetectionID string
	Err         error
}

// New erstellt einen Detection Store
func New(db *gorm.DB, repo repository.Repository, engine *rollup.Engine, opts Options) *Store {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Store{
		db:                  db,
		repo:                repo,
		engine:              engine,
		retry:               opts.Retry,
		timeout:             opts.Timeout,
		allowUnknownCameras: opts.AllowUnknownCameras,
	}
}

// Engine gibt die Rollup-Engine des Stores zurück
func (s *Store) Engine() *rollup.Engine {
	return s.engine
}

// Insert schreibt eine Detection und verbucht sie im Tagesaggregat. Fehlt die
// detection_id, wird eine frische UUID vergeben. Eine kollidierende
// detection_id führt zu ErrDuplicateKey.
func (s *Store) Insert(ctx context.Context, d *models.Detection) error {
	if d.DetectionID == "" {
		d.DetectionID = uuid.NewString()
	}
	if d.ImageCount < 0 {
		return models.NewValidationError("image_count", "must not be negative")
	}
	d.Timestamp = d.Timestamp.UTC()

	return s.run(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(d).Error; err != nil {
			return repository.TranslateError(err)
		}
		return s.engine.ApplyInsert(tx, d)
	})
}

// BulkInsert schreibt mehrere Detections mit Einzelergebnissen pro Zeile.
// Jede Zeile ist eine eigene Transaktion: bereits geschriebene Zeilen bleiben
// gültig, wenn der Kontext zwischen zwei Zeilen abgebrochen wird.
func (s *Store) BulkInsert(ctx context.Context, detections []models.Detection) []BulkResult {
	results := make([]BulkResult, 0, len(detections))
	for i := range detections {
		if err := ctx.Err(); err != nil {
			results = append(results, BulkResult{Index: i, Err: err})
			continue
		}
		d := &detections[i]
		err := s.Insert(ctx, d)
		results = append(results, BulkResult{Index: i, DetectionID: d.DetectionID, Err: err})
	}
	return results
}

// Delete entfernt eine Detection endgültig und bucht sie vom Tagesaggregat ab
func (s *Store) Delete(ctx context.Context, detectionID string) error {
	return s.run(ctx, func(tx *gorm.DB) error {
		var d models.Detection
		if err := tx.Where("detection_id = ?", detectionID).First(&d).Error; err != nil {
			return repository.TranslateError(err)
		}
		if err := tx.Unscoped().Delete(&d).Error; err != nil {
			return repository.TranslateError(err)
		}
		return s.engine.ApplyDelete(tx, &d)
	})
}

// Reassign hängt eine Detection an eine andere Kamera. Das ist die einzige
// unterstützte Mutation einer Detection; alle anderen Felder sind nach der
// Anlage unveränderlich (Korrekturen laufen als Delete + Insert).
func (s *Store) Reassign(ctx context.Context, detectionID, newCameraID string) error {
	if newCameraID == "" {
		return models.NewValidationError("camera_id", "must not be empty")
	}
	return s.run(ctx, func(tx *gorm.DB) error {
		var d models.Detection
		if err := tx.Where("detection_id = ?", detectionID).First(&d).Error; err != nil {
			return repository.TranslateError(err)
		}
		if d.CameraID == newCameraID {
			return nil
		}

		if !s.allowUnknownCameras {
			var count int64
			if err := tx.Model(&models.Camera{}).Where("camera_id = ?", newCameraID).Count(&count).Error; err != nil {
				return repository.TranslateError(err)
			}
			if count == 0 {
				return fmt.Errorf("camera %q: %w", newCameraID, models.ErrNotFound)
			}
		}

		oldCameraID := d.CameraID
		if err := tx.Model(&d).Update("camera_id", newCameraID).Error; err != nil {
			return repository.TranslateError(err)
		}
		d.CameraID = newCameraID

		log.Infof("Reassigned detection %s from camera %s to %s", detectionID, oldCameraID, newCameraID)
		return s.engine.ApplyReassign(tx, &d, oldCameraID)
	})
}

// Query liefert Detections gemäß den Filtern der Wartungs- und Kartenansicht
func (s *Store) Query(ctx context.Context, filters repository.DetectionFilters) ([]models.Detection, error) {
	var detections []models.Detection
	err := repository.WithRetry(ctx, s.retry, func() error {
		var err error
		detections, err = s.repo.QueryDetections(filters)
		return err
	})
	return detections, err
}

// run führt op als Transaktion mit Timeout und begrenzten
// Wiederholungsversuchen aus. Wiederholt wird die gesamte Transaktion: die
// Rollup-Buchung hängt am durablen Detection-Datensatz, ein erneuter Versuch
// nach einem Abbruch kann daher nichts doppelt zählen.
func (s *Store) run(ctx context.Context, op func(tx *gorm.DB) error) error {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return repository.WithRetry(tctx, s.retry, func() error {
		err := s.db.WithContext(tctx).Transaction(func(tx *gorm.DB) error {
			return op(tx)
		})
		if err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
		return err
	})
}
