package rollup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trailmap-go/internal/core/models"
	"trailmap-go/internal/util/timezone"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Engine pflegt die Tagesaggregate inkrementell. Alle Apply-Methoden laufen in
// der Transaktion des Aufrufers (Detection Store), damit Detection und Rollup
// niemals auseinanderlaufen können. Reconcile ist der Reparaturpfad, der die
// Aggregate vollständig aus der Detection-Tabelle neu berechnet.
type Engine struct {
	db  *gorm.DB
	loc *time.Location
}

// Scope schränkt einen Reconcile-Lauf ein. Leere Felder bedeuten "alles".
type Scope struct {
	CameraID string
	DateFrom string // YYYY-MM-DD, inklusiv
	DateTo   string // YYYY-MM-DD, inklusiv
}

// NewEngine erstellt eine neue Engine mit der Zeitzone für die Tageszuordnung
func NewEngine(db *gorm.DB, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{db: db, loc: loc}
}

// Location gibt die konfigurierte Zeitzone der Tageszuordnung zurück
func (e *Engine) Location() *time.Location {
	return e.loc
}

// DayKey liefert den Rollup-Tag einer Detection
func (e *Engine) DayKey(t time.Time) string {
	return timezone.DayKey(t, e.loc)
}

// ApplyInsert verbucht eine neue Detection auf ihrem (Kamera, Tag)-Schlüssel.
// Die Zähler werden per SQL-Ausdruck erhöht, damit sich parallele Schreiber
// auf demselben Schlüssel serialisieren statt sich zu überschreiben.
func (e *Engine) ApplyInsert(tx *gorm.DB, d *models.Detection) error {
	date := e.DayKey(d.Timestamp)
	ts := d.Timestamp.UTC()

	result := tx.Model(&models.DailyRollup{}).
		Where("camera_id = ? AND date = ?", d.CameraID, date).
		Updates(map[string]interface{}{
			"total_images":    gorm.Expr("total_images + ?", d.ImageCount),
			"detection_count": gorm.Expr("detection_count + 1"),
			"buck_count":      gorm.Expr("buck_count + ?", d.BuckCount),
			"deer_count":      gorm.Expr("deer_count + ?", d.DeerCount),
			"doe_count":       gorm.Expr("doe_count + ?", d.DoeCount),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to increment rollup (%s, %s): %w", d.CameraID, date, result.Error)
	}

	if result.RowsAffected == 0 {
		rollup := models.DailyRollup{
			CameraID:       d.CameraID,
			Date:           date,
			TotalImages:    int64(d.ImageCount),
			DetectionCount: 1,
			BuckCount:      int64(d.BuckCount),
			DeerCount:      int64(d.DeerCount),
			DoeCount:       int64(d.DoeCount),
			LastSeen:       ts,
		}
		if err := tx.Create(&rollup).Error; err != nil {
			return fmt.Errorf("failed to create rollup (%s, %s): %w", d.CameraID, date, err)
		}
		return nil
	}

	// last_seen nur vorziehen, nie zurücksetzen
	if err := tx.Model(&models.DailyRollup{}).
		Where("camera_id = ? AND date = ? AND last_seen < ?", d.CameraID, date, ts).
		Update("last_seen", ts).Error; err != nil {
		return fmt.Errorf("failed to advance last_seen (%s, %s): %w", d.CameraID, date, err)
	}
	return nil
}

// ApplyDelete bucht eine entfernte Detection von ihrem Schlüssel ab. Die
// Detection muss zu diesem Zeitpunkt bereits aus der Tabelle gelöscht sein,
// damit die Neuberechnung von last_seen sie nicht mehr sieht. Fällt der
// Zähler auf null, wird die Rollup-Zeile gelöscht; andernfalls wird last_seen
// aus den verbleibenden Detections des Schlüssels neu bestimmt (ein laufendes
// Maximum lässt sich nicht sicher dekrementieren).
func (e *Engine) ApplyDelete(tx *gorm.DB, d *models.Detection) error {
	date := e.DayKey(d.Timestamp)

	result := tx.Model(&models.DailyRollup{}).
		Where("camera_id = ? AND date = ?", d.CameraID, date).
		Updates(map[string]interface{}{
			"total_images":    gorm.Expr("total_images - ?", d.ImageCount),
			"detection_count": gorm.Expr("detection_count - 1"),
			"buck_count":      gorm.Expr("buck_count - ?", d.BuckCount),
			"deer_count":      gorm.Expr("deer_count - ?", d.DeerCount),
			"doe_count":       gorm.Expr("doe_count - ?", d.DoeCount),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to decrement rollup (%s, %s): %w", d.CameraID, date, result.Error)
	}
	if result.RowsAffected == 0 {
		// Kein Rollup für eine existierende Detection: Drift, der beim
		// nächsten Reconcile repariert wird. Hier nicht still anlegen.
		log.Warnf("Inconsistency detected: no rollup for (%s, %s) on delete", d.CameraID, date)
		return nil
	}

	var rollup models.DailyRollup
	if err := tx.Where("camera_id = ? AND date = ?", d.CameraID, date).First(&rollup).Error; err != nil {
		return fmt.Errorf("failed to reload rollup (%s, %s): %w", d.CameraID, date, err)
	}

	if rollup.DetectionCount <= 0 {
		if err := tx.Unscoped().Delete(&rollup).Error; err != nil {
			return fmt.Errorf("failed to delete empty rollup (%s, %s): %w", d.CameraID, date, err)
		}
		return nil
	}

	lastSeen, err := e.maxTimestamp(tx, d.CameraID, date)
	if err != nil {
		return err
	}
	if err := tx.Model(&models.DailyRollup{}).
		Where("camera_id = ? AND date = ?", d.CameraID, date).
		Update("last_seen", lastSeen).Error; err != nil {
		return fmt.Errorf("failed to recompute last_seen (%s, %s): %w", d.CameraID, date, err)
	}
	return nil
}

// ApplyReassign verschiebt eine Detection vom alten auf den neuen Schlüssel.
// d trägt bereits die neue camera_id; die Detection-Zeile muss in tx schon
// umgeschrieben sein. Beide Teilbuchungen laufen in derselben Transaktion,
// Leser sehen also nie einen Zwischenzustand.
func (e *Engine) ApplyReassign(tx *gorm.DB, d *models.Detection, oldCameraID string) error {
	if oldCameraID == d.CameraID {
		return nil
	}
	old := *d
	old.CameraID = oldCameraID
	if err := e.ApplyDelete(tx, &old); err != nil {
		return err
	}
	return e.ApplyInsert(tx, d)
}

// maxTimestamp bestimmt den jüngsten Zeitstempel der Detections eines
// (Kamera, Tag)-Schlüssels durch erneutes Lesen der Detection-Tabelle
func (e *Engine) maxTimestamp(tx *gorm.DB, cameraID, date string) (time.Time, error) {
	from, to, err := e.dayBounds(date)
	if err != nil {
		return time.Time{}, err
	}
	var latest models.Detection
	err = tx.Where("camera_id = ? AND timestamp >= ? AND timestamp < ?", cameraID, from, to).
		Order("timestamp DESC").First(&latest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, fmt.Errorf("no detections left for (%s, %s)", cameraID, date)
		}
		return time.Time{}, fmt.Errorf("failed to scan detections for (%s, %s): %w", cameraID, date, err)
	}
	return latest.Timestamp.UTC(), nil
}

// dayBounds liefert die UTC-Grenzen [from, to) eines Kalendertags der
// konfigurierten Zeitzone
func (e *Engine) dayBounds(date string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01-02", date, e.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid rollup date %q: %w", date, err)
	}
	return start.UTC(), start.AddDate(0, 0, 1).UTC(), nil
}

// aggregate ist der erwartete Zustand eines Rollup-Schlüssels beim Reconcile
type aggregate struct {
	totalImages    int64
	detectionCount int64
	buckCount      int64
	deerCount      int64
	doeCount       int64
	lastSeen       time.Time
}

type rollupKey struct {
	cameraID string
	date     string
}

// Reconcile berechnet die Rollups des Scopes vollständig aus der
// Detection-Tabelle neu und repariert jede Abweichung in einer Transaktion.
// Der Lauf ist idempotent: ein zweiter Lauf direkt danach findet nichts mehr.
func (e *Engine) Reconcile(ctx context.Context, scope Scope) (models.ReconcileSummary, error) {
	var summary models.ReconcileSummary

	// Erwartete Aggregate aus der Detection-Tabelle aufbauen. Die Tabelle wird
	// in Batches gelesen, damit der Lauf auch große Bestände verkraftet.
	expected := make(map[rollupKey]*aggregate)

	query := e.db.WithContext(ctx).Model(&models.Detection{})
	if scope.CameraID != "" {
		query = query.Where("camera_id = ?", scope.CameraID)
	}

	var batch []models.Detection
	err := query.FindInBatches(&batch, 500, func(_ *gorm.DB, _ int) error {
		for i := range batch {
			d := &batch[i]
			date := e.DayKey(d.Timestamp)
			if scope.DateFrom != "" && date < scope.DateFrom {
				continue
			}
			if scope.DateTo != "" && date > scope.DateTo {
				continue
			}
			summary.DetectionsScanned++

			key := rollupKey{cameraID: d.CameraID, date: date}
			agg, ok := expected[key]
			if !ok {
				agg = &aggregate{}
				expected[key] = agg
			}
			agg.totalImages += int64(d.ImageCount)
			agg.detectionCount++
			agg.buckCount += int64(d.BuckCount)
			agg.deerCount += int64(d.DeerCount)
			agg.doeCount += int64(d.DoeCount)
			ts := d.Timestamp.UTC()
			if ts.After(agg.lastSeen) {
				agg.lastSeen = ts
			}
		}
		return nil
	}).Error
	if err != nil {
		return summary, fmt.Errorf("failed to scan detections: %w", err)
	}

	// Vorhandene Rollups des Scopes laden
	rollupQuery := e.db.WithContext(ctx).Model(&models.DailyRollup{})
	if scope.CameraID != "" {
		rollupQuery = rollupQuery.Where("camera_id = ?", scope.CameraID)
	}
	if scope.DateFrom != "" {
		rollupQuery = rollupQuery.Where("date >= ?", scope.DateFrom)
	}
	if scope.DateTo != "" {
		rollupQuery = rollupQuery.Where("date <= ?", scope.DateTo)
	}
	var existing []models.DailyRollup
	if err := rollupQuery.Find(&existing).Error; err != nil {
		return summary, fmt.Errorf("failed to load rollups: %w", err)
	}

	// Abweichungen in einer Transaktion reparieren
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seen := make(map[rollupKey]bool, len(existing))

		for i := range existing {
			r := &existing[i]
			key := rollupKey{cameraID: r.CameraID, date: r.Date}
			seen[key] = true
			summary.RollupsChecked++

			agg, ok := expected[key]
			if !ok {
				// Rollup ohne beitragende Detections
				log.Warnf("Inconsistency detected: orphan rollup (%s, %s), deleting", r.CameraID, r.Date)
				if err := tx.Unscoped().Delete(r).Error; err != nil {
					return fmt.Errorf("failed to delete orphan rollup (%s, %s): %w", r.CameraID, r.Date, err)
				}
				summary.Deleted++
				continue
			}

			if r.TotalImages != agg.totalImages ||
				r.DetectionCount != agg.detectionCount ||
				r.BuckCount != agg.buckCount ||
				r.DeerCount != agg.deerCount ||
				r.DoeCount != agg.doeCount ||
				!r.LastSeen.UTC().Equal(agg.lastSeen) {
				log.Warnf("Inconsistency detected: rollup (%s, %s) drifted, repairing", r.CameraID, r.Date)
				if err := tx.Model(r).Updates(map[string]interface{}{
					"total_images":    agg.totalImages,
					"detection_count": agg.detectionCount,
					"buck_count":      agg.buckCount,
					"deer_count":      agg.deerCount,
					"doe_count":       agg.doeCount,
					"last_seen":       agg.lastSeen,
				}).Error; err != nil {
					return fmt.Errorf("failed to repair rollup (%s, %s): %w", r.CameraID, r.Date, err)
				}
				summary.Repaired++
			}
		}

		// Fehlende Rollups anlegen
		for key, agg := range expected {
			if seen[key] {
				continue
			}
			log.Warnf("Inconsistency detected: missing rollup (%s, %s), creating", key.cameraID, key.date)
			rollup := models.DailyRollup{
				CameraID:       key.cameraID,
				Date:           key.date,
				TotalImages:    agg.totalImages,
				DetectionCount: agg.detectionCount,
				BuckCount:      agg.buckCount,
				DeerCount:      agg.deerCount,
				DoeCount:       agg.doeCount,
				LastSeen:       agg.lastSeen,
			}
			if err := tx.Create(&rollup).Error; err != nil {
				return fmt.Errorf("failed to create rollup (%s, %s): %w", key.cameraID, key.date, err)
			}
			summary.Created++
		}
		return nil
	})
	if err != nil {
		return summary, err
	}

	if summary.InSync() {
		log.Infof("Reconcile completed: %d detections, %d rollups, no drift",
			summary.DetectionsScanned, summary.RollupsChecked)
	} else {
		log.Warnf("Reconcile repaired drift: created=%d repaired=%d deleted=%d",
			summary.Created, summary.Repaired, summary.Deleted)
	}
	return summary, nil
}
