package ingest

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSVDeerLensFormat(t *testing.T) {
	payload := `file_name,date_time,buck_count,deer_count,doe_count,camera_id
IMG_0001.JPG,2026-08-15 06:30:00,1,2,0,cam-1
IMG_0002.JPG,2026-08-15 07:15:00,0,1,1,cam-2
`
	rows, err := ParseCSV(strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "cam-1", rows[0].CameraID)
	assert.Equal(t, "IMG_0001.JPG", rows[0].FileName)
	assert.Equal(t, "2026-08-15 06:30:00", rows[0].DateTime)
	assert.Equal(t, json.Number("1"), rows[0].BuckCount)
	assert.Equal(t, json.Number("2"), rows[0].DeerCount)
	assert.Equal(t, json.Number("0"), rows[0].DoeCount)

	// Ohne image_count-Spalte zählt jede Zeile als eine Aufnahme
	assert.Equal(t, json.Number("1"), rows[0].ImageCount)
	assert.Equal(t, json.Number("1"), rows[1].ImageCount)
}

func TestParseCSVHonorsImageCountColumn(t *testing.T) {
	payload := `camera_id,date_time,image_count
cam-1,2026-08-15 06:30:00,5
`
	rows, err := ParseCSV(strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, json.Number("5"), rows[0].ImageCount)
}

func TestParseCSVIgnoresUnknownColumns(t *testing.T) {
	payload := `camera_id,date_time,weather,image_count
cam-1,2026-08-15 06:30:00,rainy,1
`
	rows, err := ParseCSV(strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "cam-1", rows[0].CameraID)
}

func TestParseCSVRequiresCameraColumn(t *testing.T) {
	payload := `file_name,date_time
IMG_0001.JPG,2026-08-15 06:30:00
`
	_, err := ParseCSV(strings.NewReader(payload))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camera_id")
}

func TestParseCSVEmptyPayload(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""))
	assert.Error(t, err)
}
