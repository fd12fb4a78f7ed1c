package repository

import (
	"errors"
	"strings"
	"time"

	"trailmap-go/internal/core/models"

	"gorm.io/gorm"
)

// DetectionFilters sind die Filter der Wartungs- und Kartenansicht.
// Nil-Felder bedeuten "kein Filter".
type DetectionFilters struct {
	From     *time.Time // inklusiv
	To       *time.Time // inklusiv
	HourFrom *int       // Stunde des Tages (0-23) in der konfigurierten Zeitzone
	HourTo   *int
	Cameras  []string
}

// RollupFilters schränken die Rollup-Abfrage ein (Datum als YYYY-MM-DD)
type RollupFilters struct {
	DateFrom string
	DateTo   string
	Cameras  []string
}

// Repository definiert die Schnittstelle für die Datenbank-Operationen
type Repository interface {
	// Kamera-Methoden
	CreateCamera(camera *models.Camera) error
	UpdateCamera(camera *models.Camera) error
	DeleteCamera(cameraID string) error
	GetCamera(cameraID string) (*models.Camera, error)
	ListCameras() ([]models.Camera, error)
	CameraIDSet() (map[string]struct{}, error)

	// Detection-Methoden (nur Lesezugriffe; Schreibzugriffe laufen
	// transaktional über den Detection Store)
	GetDetection(detectionID string) (*models.Detection, error)
	QueryDetections(filters DetectionFilters) ([]models.Detection, error)

	// Rollup-Methoden
	GetRollup(cameraID, date string) (*models.DailyRollup, error)
	ListRollups(filters RollupFilters) ([]models.DailyRollup, error)

	// Statistik-Methoden
	GetStatistics() (models.Statistics, error)
}

// SQLiteRepository implementiert die Repository-Schnittstelle für SQLite
type SQLiteRepository struct {
	db  *gorm.DB
	loc *time.Location // Zeitzone für die Stundenfilterung
}

// NewSQLiteRepository erstellt eine neue SQLite-Repository-Instanz
func NewSQLiteRepository(db *gorm.DB, loc *time.Location) *SQLiteRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &SQLiteRepository{db: db, loc: loc}
}

// TranslateError bildet Treiber- und GORM-Fehler auf die Fehlerarten des Kerns ab
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return models.ErrDuplicateKey
	}
	return err
}

// IsTransient meldet, ob ein Fehler einen Wiederholungsversuch rechtfertigt
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "busy")
}

// Kamera-Methoden

// CreateCamera legt eine neue Kamera an; vorhandene camera_id führt zu ErrDuplicateKey
func (r *SQLiteRepository) CreateCamera(camera *models.Camera) error {
	if err := r.db.Create(camera).Error; err != nil {
		return TranslateError(err)
	}
	return nil
}

// UpdateCamera speichert die veränderlichen Felder einer Kamera
func (r *SQLiteRepository) UpdateCamera(camera *models.Camera) error {
	if err := r.db.Save(camera).Error; err != nil {
		return TranslateError(err)
	}
	return nil
}

// DeleteCamera löscht eine Kamera endgültig. Historische Detections bleiben
// bewusst bestehen (verwaiste Detections werden weiterhin ausgeliefert). Der
// harte Delete gibt die camera_id im Unique-Index wieder frei.
func (r *SQLiteRepository) DeleteCamera(cameraID string) error {
	result := r.db.Unscoped().Where("camera_id = ?", cameraID).Delete(&models.Camera{})
	if result.Error != nil {
		return TranslateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetCamera holt eine Kamera anhand ihrer camera_id
func (r *SQLiteRepository) GetCamera(cameraID string) (*models.Camera, error) {
	var camera models.Camera
	if err := r.db.Where("camera_id = ?", cameraID).First(&camera).Error; err != nil {
		return nil, TranslateError(err)
	}
	return &camera, nil
}

// ListCameras holt alle Kameras
func (r *SQLiteRepository) ListCameras() ([]models.Camera, error) {
	var cameras []models.Camera
	if err := r.db.Order("camera_id ASC").Find(&cameras).Error; err != nil {
		return nil, TranslateError(err)
	}
	return cameras, nil
}

// CameraIDSet liefert die Menge aller registrierten camera_ids
func (r *SQLiteRepository) CameraIDSet() (map[string]struct{}, error) {
	var ids []string
	if err := r.db.Model(&models.Camera{}).Pluck("camera_id", &ids).Error; err != nil {
		return nil, TranslateError(err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// Detection-Methoden

// GetDetection holt eine Detection anhand ihrer detection_id
func (r *SQLiteRepository) GetDetection(detectionID string) (*models.Detection, error) {
	var detection models.Detection
	if err := r.db.Where("detection_id = ?", detectionID).First(&detection).Error; err != nil {
		return nil, TranslateError(err)
	}
	return &detection, nil
}

// QueryDetections holt Detections gemäß den übergebenen Filtern.
// Datum und Kameras werden in SQL gefiltert; die Stundenfilterung läuft in Go,
// weil die Stunde von der konfigurierten Zeitzone abhängt und die Zeitstempel
// in UTC gespeichert sind.
func (r *SQLiteRepository) QueryDetections(filters DetectionFilters) ([]models.Detection, error) {
	query := r.db.Model(&models.Detection{}).Order("timestamp ASC")

	if filters.From != nil {
		query = query.Where("timestamp >= ?", filters.From.UTC())
	}
	if filters.To != nil {
		query = query.Where("timestamp <= ?", filters.To.UTC())
	}
	if len(filters.Cameras) > 0 {
		query = query.Where("camera_id IN ?", filters.Cameras)
	}

	var detections []models.Detection
	if err := query.Find(&detections).Error; err != nil {
		return nil, TranslateError(err)
	}

	if filters.HourFrom == nil && filters.HourTo == nil {
		return detections, nil
	}

	hourFrom := 0
	hourTo := 23
	if filters.HourFrom != nil {
		hourFrom = *filters.HourFrom
	}
	if filters.HourTo != nil {
		hourTo = *filters.HourTo
	}

	filtered := detections[:0]
	for _, d := range detections {
		hour := d.Timestamp.In(r.loc).Hour()
		if hour >= hourFrom && hour <= hourTo {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}

// Rollup-Methoden

// GetRollup holt das Tagesaggregat für ein (Kamera, Tag)-Paar
func (r *SQLiteRepository) GetRollup(cameraID, date string) (*models.DailyRollup, error) {
	var rollup models.DailyRollup
	if err := r.db.Where("camera_id = ? AND date = ?", cameraID, date).First(&rollup).Error; err != nil {
		return nil, TranslateError(err)
	}
	return &rollup, nil
}

// ListRollups holt Tagesaggregate gemäß den übergebenen Filtern
func (r *SQLiteRepository) ListRollups(filters RollupFilters) ([]models.DailyRollup, error) {
	query := r.db.Model(&models.DailyRollup{}).Order("date ASC, camera_id ASC")

	if filters.DateFrom != "" {
		query = query.Where("date >= ?", filters.DateFrom)
	}
	if filters.DateTo != "" {
		query = query.Where("date <= ?", filters.DateTo)
	}
	if len(filters.Cameras) > 0 {
		query = query.Where("camera_id IN ?", filters.Cameras)
	}

	var rollups []models.DailyRollup
	if err := query.Find(&rollups).Error; err != nil {
		return nil, TranslateError(err)
	}
	return rollups, nil
}

// Statistik-Methoden

// GetStatistics gibt Kennzahlen über den gespeicherten Datenbestand zurück
func (r *SQLiteRepository) GetStatistics() (models.Statistics, error) {
	var stats models.Statistics

	if err := r.db.Model(&models.Camera{}).Count(&stats.TotalCameras).Error; err != nil {
		return stats, TranslateError(err)
	}
	if err := r.db.Model(&models.Camera{}).Where("active = ?", true).Count(&stats.ActiveCameras).Error; err != nil {
		return stats, TranslateError(err)
	}
	if err := r.db.Model(&models.Detection{}).Count(&stats.TotalDetections).Error; err != nil {
		return stats, TranslateError(err)
	}

	var totalImages *int64
	if err := r.db.Model(&models.Detection{}).Select("SUM(image_count)").Scan(&totalImages).Error; err != nil {
		return stats, TranslateError(err)
	}
	if totalImages != nil {
		stats.TotalImages = *totalImages
	}

	if err := r.db.Model(&models.DailyRollup{}).Count(&stats.RollupCount).Error; err != nil {
		return stats, TranslateError(err)
	}

	// Jüngste Detection ermitteln
	var latest models.Detection
	if err := r.db.Order("timestamp DESC").First(&latest).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return stats, TranslateError(err)
		}
	} else {
		stats.LatestDetection = latest.Timestamp
	}

	// Die letzten 5 Detections für die Übersicht
	if err := r.db.Order("timestamp DESC").Limit(5).Find(&stats.RecentDetections).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return stats, TranslateError(err)
		}
	}

	return stats, nil
}
