package ingest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"trailmap-go/internal/core/models"
)

// ParseCSV liest Zeilen im DeerLens-CSV-Format:
//
//	file_name,date_time,buck_count,deer_count,doe_count,camera_id
//
// Die Spaltenzuordnung läuft über die Kopfzeile, zusätzliche Spalten
// (image_count, detection_id) werden übernommen, unbekannte ignoriert. Fehlt
// die image_count-Spalte, zählt jede Zeile als ein Bild (eine DeerLens-Zeile
// entspricht genau einer Aufnahme).
func ParseCSV(r io.Reader) ([]models.RawRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty CSV payload")
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := columns["camera_id"]; !ok {
		return nil, fmt.Errorf("CSV header is missing the camera_id column")
	}
	if _, ok := columns["date_time"]; !ok {
		return nil, fmt.Errorf("CSV header is missing the date_time column")
	}
	_, hasImageCount := columns["image_count"]

	field := func(record []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var rows []models.RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		row := models.RawRow{
			DetectionID: field(record, "detection_id"),
			CameraID:    field(record, "camera_id"),
			FileName:    field(record, "file_name"),
			DateTime:    field(record, "date_time"),
			BuckCount:   json.Number(field(record, "buck_count")),
			DeerCount:   json.Number(field(record, "deer_count")),
			DoeCount:    json.Number(field(record, "doe_count")),
		}
		if hasImageCount {
			row.ImageCount = json.Number(field(record, "image_count"))
		} else {
			row.ImageCount = json.Number("1")
		}
		rows = append(rows, row)
	}
	return rows, nil
}
