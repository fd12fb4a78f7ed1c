package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trailmap-go/config"
	"trailmap-go/internal/api/middleware"
	"trailmap-go/internal/core/ingest"
	"trailmap-go/internal/core/models"
	"trailmap-go/internal/core/registry"
	"trailmap-go/internal/core/rollup"
	"trailmap-go/internal/core/store"
	"trailmap-go/internal/db/repository"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Camera{}, &models.Detection{}, &models.DailyRollup{}))

	repo := repository.NewSQLiteRepository(db, time.UTC)
	engine := rollup.NewEngine(db, time.UTC)
	st := store.New(db, repo, engine, store.Options{Timeout: 5 * time.Second})
	reg := registry.NewService(repo)
	gw := ingest.NewGateway(st, repo, nil, config.IngestConfig{DuplicatePolicy: config.DuplicateAccept}, time.UTC)

	router := gin.New()
	handler := NewAPIHandler(reg, st, gw, repo, nil)
	handler.RegisterRoutes(router, middleware.BearerToken(token))

	return &testEnv{router: router, db: db}
}

func (e *testEnv) request(t *testing.T, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createCamera(t *testing.T, cameraID string) {
	t.Helper()
	w := e.request(t, http.MethodPost, "/api/cameras", `{"camera_id":"`+cameraID+`"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestCameraCRUDEndpoints(t *testing.T) {
	env := newTestEnv(t, "")

	env.createCamera(t, "ridge-north")

	// Duplikat
	w := env.request(t, http.MethodPost, "/api/cameras", `{"camera_id":"ridge-north"}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Lesen
	w = env.request(t, http.MethodGet, "/api/cameras/ridge-north", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Patch
	w = env.request(t, http.MethodPut, "/api/cameras/ridge-north", `{"nickname":"North Ridge"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "North Ridge")

	// Unbekannte Kamera
	w = env.request(t, http.MethodGet, "/api/cameras/ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Löschen und neu anlegen
	w = env.request(t, http.MethodDelete, "/api/cameras/ridge-north", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	env.createCamera(t, "ridge-north")
}

func TestCameraValidation(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.request(t, http.MethodPost, "/api/cameras", `{"camera_id":"x","latitude":123}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestEndpointJSON(t *testing.T) {
	env := newTestEnv(t, "")
	env.createCamera(t, "cam-1")

	body := `[
		{"camera_id":"cam-1","date_time":"2026-08-15 06:00:00","image_count":2,"buck_count":1},
		{"camera_id":"cam-1","date_time":"2026-08-15 07:00:00","image_count":-1}
	]`
	w := env.request(t, http.MethodPost, "/api/ingest", body, nil)
	assert.Equal(t, http.StatusMultiStatus, w.Code)

	var report models.IngestReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Accepted)
	assert.Len(t, report.Rejected, 1)
}

func TestIngestEndpointCSV(t *testing.T) {
	env := newTestEnv(t, "")
	env.createCamera(t, "cam-1")

	csvBody := "file_name,date_time,buck_count,deer_count,doe_count,camera_id\n" +
		"IMG_1.JPG,2026-08-15 06:30:00,1,2,0,cam-1\n"
	w := env.request(t, http.MethodPost, "/api/ingest?source=upload", csvBody,
		map[string]string{"Content-Type": "text/csv"})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var rollupRow models.DailyRollup
	require.NoError(t, env.db.Where("camera_id = ? AND date = ?", "cam-1", "2026-08-15").First(&rollupRow).Error)
	assert.Equal(t, int64(1), rollupRow.TotalImages)
	assert.Equal(t, int64(1), rollupRow.BuckCount)
}

func TestIngestEndpointRequiresToken(t *testing.T) {
	env := newTestEnv(t, "secret")
	env.createCamera(t, "cam-1")

	body := `[{"camera_id":"cam-1","date_time":"2026-08-15 06:00:00","image_count":1}]`

	w := env.request(t, http.MethodPost, "/api/ingest", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.request(t, http.MethodPost, "/api/ingest", body,
		map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.request(t, http.MethodPost, "/api/ingest", body,
		map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusCreated, w.Code)

	// Nur der Ingest-Endpunkt ist geschützt
	w = env.request(t, http.MethodGet, "/api/cameras", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDetectionEndpoints(t *testing.T) {
	env := newTestEnv(t, "")
	env.createCamera(t, "cam-1")
	env.createCamera(t, "cam-2")

	body := `[{"detection_id":"d1","camera_id":"cam-1","date_time":"2026-08-15 06:00:00","image_count":1}]`
	w := env.request(t, http.MethodPost, "/api/ingest", body, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	// Auflisten
	w = env.request(t, http.MethodGet, "/api/detections?cameras=cam-1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "d1")

	// Reassign auf registrierte Kamera
	w = env.request(t, http.MethodPost, "/api/detections/d1/reassign", `{"camera_id":"cam-2"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Reassign auf unbekannte Kamera
	w = env.request(t, http.MethodPost, "/api/detections/d1/reassign", `{"camera_id":"ghost"}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Löschen
	w = env.request(t, http.MethodDelete, "/api/detections/d1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.request(t, http.MethodDelete, "/api/detections/d1", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDetectionFilterValidation(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.request(t, http.MethodGet, "/api/detections?hour_from=25", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(t, http.MethodGet, "/api/detections?from=yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRollupAndReconcileEndpoints(t *testing.T) {
	env := newTestEnv(t, "")
	env.createCamera(t, "cam-1")

	body := `[{"camera_id":"cam-1","date_time":"2026-08-15 06:00:00","image_count":3,"doe_count":2}]`
	w := env.request(t, http.MethodPost, "/api/ingest", body, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.request(t, http.MethodGet, "/api/rollups?cameras=cam-1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "2026-08-15")

	w = env.request(t, http.MethodGet, "/api/rollups/cam-1/2026-08-15", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Drift einschleusen und reparieren lassen
	require.NoError(t, env.db.Model(&models.DailyRollup{}).
		Where("camera_id = ?", "cam-1").
		Update("total_images", 99).Error)

	w = env.request(t, http.MethodPost, "/api/reconcile", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"repaired":1`)

	w = env.request(t, http.MethodPost, "/api/reconcile", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"in_sync":true`)
}

func TestCameraSummaryEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	env.createCamera(t, "cam-1")
	env.createCamera(t, "cam-2")

	body := `[
		{"camera_id":"cam-1","date_time":"2026-08-15 06:00:00","image_count":2,"buck_count":1,"doe_count":1},
		{"camera_id":"cam-1","date_time":"2026-08-16 06:00:00","image_count":1,"doe_count":2}
	]`
	w := env.request(t, http.MethodPost, "/api/ingest", body, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.request(t, http.MethodGet, "/api/cameras/summary", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Cameras []CameraSummary `json:"cameras"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Cameras, 2)

	var cam1 *CameraSummary
	for i := range resp.Cameras {
		if resp.Cameras[i].CameraID == "cam-1" {
			cam1 = &resp.Cameras[i]
		}
	}
	require.NotNil(t, cam1)
	assert.Equal(t, int64(3), cam1.TotalImages)
	assert.Equal(t, int64(2), cam1.DetectionCount)
	assert.Equal(t, int64(1), cam1.BuckCount)
	assert.Equal(t, int64(3), cam1.DoeCount)
	assert.InDelta(t, 25.0, cam1.BuckPercent, 0.001)
	assert.InDelta(t, 75.0, cam1.DoePercent, 0.001)
}

func TestCameraSummaryHourFilterUsesDetections(t *testing.T) {
	env := newTestEnv(t, "")
	env.createCamera(t, "cam-1")

	body := `[
		{"camera_id":"cam-1","date_time":"2026-08-15 06:00:00","image_count":1},
		{"camera_id":"cam-1","date_time":"2026-08-15 20:00:00","image_count":1}
	]`
	w := env.request(t, http.MethodPost, "/api/ingest", body, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.request(t, http.MethodGet, "/api/cameras/summary?hour_from=5&hour_to=12", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Cameras []CameraSummary `json:"cameras"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Cameras, 1)
	assert.Equal(t, int64(1), resp.Cameras[0].DetectionCount)
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, "")

	repo := repository.NewSQLiteRepository(env.db, time.UTC)
	sys := NewSystemHandler(repo, nil)
	env.router.GET("/api/status", sys.GetStatus)

	w := env.request(t, http.MethodGet, "/api/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "statistics"))
	assert.True(t, strings.Contains(w.Body.String(), "go_routines"))
}
