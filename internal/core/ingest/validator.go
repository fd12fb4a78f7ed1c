package ingest

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"trailmap-go/internal/core/models"
)

// Akzeptierte Zeitstempel-Formate: RFC3339 sowie das DeerLens-Format ohne
// Zeitzone. Formate ohne Zeitzone werden in der konfigurierten
// Ingest-Zeitzone interpretiert und in UTC gespeichert.
var timestampLayouts = []struct {
	layout string
	naive  bool
}{
	{time.RFC3339, false},
	{"2006-01-02T15:04:05", true},
	{"2006-01-02 15:04:05", true},
}

// ValidationOptions steuern die Validierung. Beide Policies kommen explizit
// aus der Konfiguration, nicht aus dem Prozesszustand.
type ValidationOptions struct {
	// AllowUnknownCameras lässt Zeilen zu, deren camera_id nicht registriert
	// ist. Default ist false: unbekannte Kameras werden abgewiesen, wie im
	// DeerLens-Workflow (erst Kamera anlegen, dann ingestieren).
	AllowUnknownCameras bool

	// Location ist die Zeitzone für Zeitstempel ohne Zonenangabe
	Location *time.Location
}

// ValidateRow prüft eine Rohzeile und liefert die kanonische Detection oder
// einen ValidationError. Die Funktion ist frei von Seiteneffekten; die Menge
// der bekannten Kameras wird vom Aufrufer hereingereicht.
func ValidateRow(row models.RawRow, cameras map[string]struct{}, opts ValidationOptions) (*models.Detection, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	cameraID := strings.TrimSpace(row.CameraID)
	if cameraID == "" {
		return nil, models.NewValidationError("camera_id", "missing required field")
	}
	if !opts.AllowUnknownCameras {
		if _, ok := cameras[cameraID]; !ok {
			return nil, models.NewValidationError("camera_id", "unknown camera "+strconv.Quote(cameraID))
		}
	}

	if strings.TrimSpace(row.DateTime) == "" {
		return nil, models.NewValidationError("date_time", "missing required field")
	}
	ts, err := parseTimestamp(row.DateTime, loc)
	if err != nil {
		return nil, err
	}

	imageCount, err := parseCount(row.ImageCount, "image_count", true)
	if err != nil {
		return nil, err
	}
	buckCount, err := parseCount(row.BuckCount, "buck_count", false)
	if err != nil {
		return nil, err
	}
	deerCount, err := parseCount(row.DeerCount, "deer_count", false)
	if err != nil {
		return nil, err
	}
	doeCount, err := parseCount(row.DoeCount, "doe_count", false)
	if err != nil {
		return nil, err
	}

	return &models.Detection{
		DetectionID: strings.TrimSpace(row.DetectionID),
		CameraID:    cameraID,
		Timestamp:   ts,
		ImageCount:  imageCount,
		BuckCount:   buckCount,
		DeerCount:   deerCount,
		DoeCount:    doeCount,
		FileName:    strings.TrimSpace(row.FileName),
	}, nil
}

// ValidateBatch partitioniert einen Batch in gültige Detections und
// abgewiesene Zeilen. Eine fehlerhafte Zeile bricht niemals den Batch ab.
func ValidateBatch(rows []models.RawRow, cameras map[string]struct{}, opts ValidationOptions) ([]models.Detection, []models.RejectedRow) {
	valid := make([]models.Detection, 0, len(rows))
	var rejected []models.RejectedRow

	for _, row := range rows {
		d, err := ValidateRow(row, cameras, opts)
		if err != nil {
			rejected = append(rejected, models.RejectedRow{Row: row, Error: err.Error()})
			continue
		}
		valid = append(valid, *d)
	}
	return valid, rejected
}

// parseTimestamp versucht alle akzeptierten Formate
func parseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, l := range timestampLayouts {
		var ts time.Time
		var err error
		if l.naive {
			ts, err = time.ParseInLocation(l.layout, value, loc)
		} else {
			ts, err = time.Parse(l.layout, value)
		}
		if err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, models.NewValidationError("date_time", "unparsable timestamp "+strconv.Quote(value))
}

// parseCount prüft ein Zählfeld: numerisch und nicht negativ. Pflichtfelder
// dürfen nicht fehlen; optionale Felder zählen als 0.
func parseCount(value json.Number, field string, required bool) (int, error) {
	raw := strings.TrimSpace(value.String())
	if raw == "" {
		if required {
			return 0, models.NewValidationError(field, "missing required field")
		}
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, models.NewValidationError(field, "not a number: "+strconv.Quote(raw))
	}
	if n < 0 {
		return 0, models.NewValidationError(field, "must not be negative")
	}
	return n, nil
}
