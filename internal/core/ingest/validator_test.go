package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"trailmap-go/internal/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var knownCameras = map[string]struct{}{
	"cam-1": {},
	"cam-2": {},
}

func validRow() models.RawRow {
	return models.RawRow{
		CameraID:   "cam-1",
		FileName:   "IMG_0042.JPG",
		DateTime:   "2026-08-15 06:30:00",
		ImageCount: json.Number("3"),
		BuckCount:  json.Number("1"),
		DeerCount:  json.Number("2"),
		DoeCount:   json.Number("0"),
	}
}

func TestValidateRowAcceptsValidRow(t *testing.T) {
	d, err := ValidateRow(validRow(), knownCameras, ValidationOptions{Location: time.UTC})
	require.NoError(t, err)
	assert.Equal(t, "cam-1", d.CameraID)
	assert.Equal(t, 3, d.ImageCount)
	assert.Equal(t, 1, d.BuckCount)
	assert.Equal(t, 2, d.DeerCount)
	assert.Equal(t, 0, d.DoeCount)
	assert.Equal(t, "IMG_0042.JPG", d.FileName)
	assert.True(t, d.Timestamp.Equal(time.Date(2026, 8, 15, 6, 30, 0, 0, time.UTC)))
}

func TestValidateRowParsesNaiveTimestampInConfiguredZone(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	row := validRow()
	row.DateTime = "2026-08-15T22:00:00"

	d, err := ValidateRow(row, knownCameras, ValidationOptions{Location: loc})
	require.NoError(t, err)

	// 22:00 in Chicago (CDT, UTC-5) ist 03:00 UTC am Folgetag
	assert.True(t, d.Timestamp.Equal(time.Date(2026, 8, 16, 3, 0, 0, 0, time.UTC)))
}

func TestValidateRowAcceptsRFC3339(t *testing.T) {
	row := validRow()
	row.DateTime = "2026-08-15T06:30:00-05:00"

	d, err := ValidateRow(row, knownCameras, ValidationOptions{Location: time.UTC})
	require.NoError(t, err)
	assert.True(t, d.Timestamp.Equal(time.Date(2026, 8, 15, 11, 30, 0, 0, time.UTC)))
}

func TestValidateRowRejectsMissingCameraID(t *testing.T) {
	row := validRow()
	row.CameraID = "  "
	_, err := ValidateRow(row, knownCameras, ValidationOptions{Location: time.UTC})
	assert.True(t, models.IsValidationError(err))
}

func TestValidateRowRejectsUnknownCamera(t *testing.T) {
	row := validRow()
	row.CameraID = "ghost-cam"

	_, err := ValidateRow(row, knownCameras, ValidationOptions{Location: time.UTC})
	assert.True(t, models.IsValidationError(err))

	// Mit der Policy allow_unknown_cameras geht dieselbe Zeile durch
	d, err := ValidateRow(row, knownCameras, ValidationOptions{AllowUnknownCameras: true, Location: time.UTC})
	require.NoError(t, err)
	assert.Equal(t, "ghost-cam", d.CameraID)
}

func TestValidateRowRejectsBadTimestamp(t *testing.T) {
	row := validRow()
	row.DateTime = "15.08.2026 06:30"
	_, err := ValidateRow(row, knownCameras, ValidationOptions{Location: time.UTC})
	assert.True(t, models.IsValidationError(err))
}

func TestValidateRowRequiresImageCount(t *testing.T) {
	row := validRow()
	row.ImageCount = json.Number("")
	_, err := ValidateRow(row, knownCameras, ValidationOptions{Location: time.UTC})
	assert.True(t, models.IsValidationError(err))
}

func TestValidateRowRejectsNegativeCount(t *testing.T) {
	row := validRow()
	row.ImageCount = json.Number("-1")
	_, err := ValidateRow(row, knownCameras, ValidationOptions{Location: time.UTC})
	assert.True(t, models.IsValidationError(err))
}

func TestValidateRowRejectsNonNumericCount(t *testing.T) {
	row := validRow()
	row.BuckCount = json.Number("many")
	_, err := ValidateRow(row, knownCameras, ValidationOptions{Location: time.UTC})
	assert.True(t, models.IsValidationError(err))
}

func TestValidateRowOptionalCountsDefaultToZero(t *testing.T) {
	row := validRow()
	row.BuckCount = json.Number("")
	row.DeerCount = json.Number("")
	row.DoeCount = json.Number("")

	d, err := ValidateRow(row, knownCameras, ValidationOptions{Location: time.UTC})
	require.NoError(t, err)
	assert.Equal(t, 0, d.BuckCount)
	assert.Equal(t, 0, d.DeerCount)
	assert.Equal(t, 0, d.DoeCount)
}

func TestValidateRowAcceptsZeroImageCount(t *testing.T) {
	row := validRow()
	row.ImageCount = json.Number("0")
	d, err := ValidateRow(row, knownCameras, ValidationOptions{Location: time.UTC})
	require.NoError(t, err)
	assert.Equal(t, 0, d.ImageCount)
}

func TestValidateBatchPartitionsRows(t *testing.T) {
	bad := validRow()
	bad.ImageCount = json.Number("-1")

	rows := []models.RawRow{validRow(), bad, validRow()}
	valid, rejected := ValidateBatch(rows, knownCameras, ValidationOptions{Location: time.UTC})
	assert.Len(t, valid, 2)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].Error, "image_count")
}
