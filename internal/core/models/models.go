package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Camera repräsentiert eine registrierte Wildkamera
type Camera struct {
	gorm.Model
	CameraID  string  `gorm:"uniqueIndex;not null" json:"camera_id"` // Fachlicher Schlüssel, nach Anlage unveränderlich
	Nickname  string  `json:"nickname"`                              // Anzeigename
	Latitude  float64 `json:"latitude"`                              // Breitengrad (-90..90)
	Longitude float64 `json:"longitude"`                             // Längengrad (-180..180)
	Active    bool    `json:"active"`                                // Kamera aktiv im Feld
}

// Detection repräsentiert ein einzelnes Auslöse-Ereignis einer Kamera
type Detection struct {
	gorm.Model
	DetectionID string         `gorm:"uniqueIndex;not null" json:"detection_id"` // Stabiler externer Schlüssel (UUID, falls nicht geliefert)
	CameraID    string         `gorm:"index;not null" json:"camera_id"`          // Referenz auf Camera.CameraID; darf auf gelöschte Kamera zeigen
	Timestamp   time.Time      `gorm:"index" json:"timestamp"`                   // Aufnahmezeitpunkt in UTC
	ImageCount  int            `gorm:"not null" json:"image_count"`              // Anzahl Bilder des Ereignisses (>= 0)
	BuckCount   int            `json:"buck_count"`                               // Artenzählung aus DeerLens
	DeerCount   int            `json:"deer_count"`
	DoeCount    int            `json:"doe_count"`
	FileName    string         `gorm:"index" json:"file_name,omitempty"` // Ursprüngliche Bilddatei, falls bekannt
	Source      string         `gorm:"index" json:"source"`              // Herkunft (upload, api, mqtt, ...)
	SourceData  datatypes.JSON `gorm:"type:json;null" json:"-"`          // Rohdaten der Quellzeile
}

// DailyRollup ist das abgeleitete Tagesaggregat pro (Kamera, Kalendertag).
// Es ist jederzeit vollständig aus der Detection-Tabelle rekonstruierbar.
type DailyRollup struct {
	gorm.Model
	CameraID       string    `gorm:"uniqueIndex:idx_rollup_camera_date;not null" json:"camera_id"`
	Date           string    `gorm:"uniqueIndex:idx_rollup_camera_date;not null" json:"date"` // Kalendertag (YYYY-MM-DD) in der konfigurierten Zeitzone
	TotalImages    int64     `gorm:"not null" json:"total_images"`
	DetectionCount int64     `gorm:"not null" json:"detection_count"`
	BuckCount      int64     `json:"buck_count"`
	DeerCount      int64     `json:"deer_count"`
	DoeCount       int64     `json:"doe_count"`
	LastSeen       time.Time `json:"last_seen"` // Jüngster Zeitstempel der beitragenden Detections (UTC)
}

// RawRow ist eine noch nicht validierte Eingabezeile aus CSV, JSON oder MQTT.
// Zählfelder sind json.Number, damit auch fehlerhafte Eingaben die Validierung
// erreichen statt bereits beim Dekodieren zu scheitern.
type RawRow struct {
	DetectionID string      `json:"detection_id,omitempty"`
	CameraID    string      `json:"camera_id"`
	FileName    string      `json:"file_name,omitempty"`
	DateTime    string      `json:"date_time"`
	ImageCount  json.Number `json:"image_count,omitempty"` // Fehlt der Wert, zählt die Zeile als ein Bild
	BuckCount   json.Number `json:"buck_count,omitempty"`
	DeerCount   json.Number `json:"deer_count,omitempty"`
	DoeCount    json.Number `json:"doe_count,omitempty"`
}

// RejectedRow verbindet eine abgewiesene Zeile mit ihrem Fehler
type RejectedRow struct {
	Row   RawRow `json:"row"`
	Error string `json:"error"`
}

// IngestReport ist das Ergebnis eines Batch-Imports
type IngestReport struct {
	Source   string        `json:"source"`
	Accepted int           `json:"accepted"`
	Rejected []RejectedRow `json:"rejected"`
}

// ReconcileSummary beschreibt das Ergebnis eines Reconcile-Laufs
type ReconcileSummary struct {
	DetectionsScanned int64 `json:"detections_scanned"`
	RollupsChecked    int64 `json:"rollups_checked"`
	Created           int64 `json:"created"`
	Repaired          int64 `json:"repaired"`
	Deleted           int64 `json:"deleted"`
}

// InSync meldet, ob der Lauf ohne Abweichungen durchgelaufen ist
func (s ReconcileSummary) InSync() bool {
	return s.Created == 0 && s.Repaired == 0 && s.Deleted == 0
}

// Statistics repräsentiert Kennzahlen über den Datenbestand
type Statistics struct {
	TotalCameras     int64       `json:"total_cameras"`
	ActiveCameras    int64       `json:"active_cameras"`
	TotalDetections  int64       `json:"total_detections"`
	TotalImages      int64       `json:"total_images"`
	RollupCount      int64       `json:"rollup_count"`
	LatestDetection  time.Time   `json:"latest_detection"`
	RecentDetections []Detection `json:"recent_detections,omitempty"`
}
