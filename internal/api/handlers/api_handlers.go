package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trailmap-go/internal/core/ingest"
	"trailmap-go/internal/core/models"
	"trailmap-go/internal/core/registry"
	"trailmap-go/internal/core/rollup"
	"trailmap-go/internal/core/store"
	"trailmap-go/internal/db/repository"
	"trailmap-go/internal/sse"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// APIHandler enthält die Abhängigkeiten der API-Endpunkte
type APIHandler struct {
	registry *registry.Service
	store    *store.Store
	gateway  *ingest.Gateway
	repo     repository.Repository
	hub      *sse.Hub
}

// NewAPIHandler erstellt einen neuen APIHandler
func NewAPIHandler(reg *registry.Service, st *store.Store, gw *ingest.Gateway, repo repository.Repository, hub *sse.Hub) *APIHandler {
	return &APIHandler{
		registry: reg,
		store:    st,
		gateway:  gw,
		repo:     repo,
		hub:      hub,
	}
}

// RegisterRoutes registriert alle API-Routen. Die Ingest- und
// Mutationsendpunkte laufen hinter der übergebenen Auth-Middleware.
func (h *APIHandler) RegisterRoutes(router *gin.Engine, auth gin.HandlerFunc) {
	api := router.Group("/api")

	// Kamera-Registry
	api.GET("/cameras", h.ListCameras)
	api.GET("/cameras/summary", h.CameraSummaries)
	api.POST("/cameras", h.CreateCamera)
	api.GET("/cameras/:id", h.GetCamera)
	api.PUT("/cameras/:id", h.UpdateCamera)
	api.DELETE("/cameras/:id", h.DeleteCamera)

	// Detections
	api.GET("/detections", h.ListDetections)
	api.GET("/detections/:id", h.GetDetection)
	api.DELETE("/detections/:id", h.DeleteDetection)
	api.POST("/detections/:id/reassign", h.ReassignDetection)

	// Rollups
	api.GET("/rollups", h.ListRollups)
	api.GET("/rollups/:camera_id/:date", h.GetRollup)
	api.POST("/reconcile", h.Reconcile)

	// Ingest (Token-geschützt)
	api.POST("/ingest", auth, h.Ingest)
}

// respondError bildet die Fehlerarten des Kerns auf HTTP-Statuscodes ab
func respondError(c *gin.Context, err error) {
	switch {
	case models.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrDuplicateKey):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		log.Errorf("API request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// Kamera-Endpunkte

// CreateCameraRequest ist der Request-Body für POST /api/cameras
type CreateCameraRequest struct {
	CameraID  string  `json:"camera_id" binding:"required"`
	Nickname  string  `json:"nickname"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Active    *bool   `json:"active"`
}

// CreateCamera behandelt POST /api/cameras
func (h *APIHandler) CreateCamera(c *gin.Context) {
	var req CreateCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	camera := models.Camera{
		CameraID:  req.CameraID,
		Nickname:  req.Nickname,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Active:    true,
	}
	if req.Active != nil {
		camera.Active = *req.Active
	}

	if err := h.registry.Create(&camera); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, camera)
}

// ListCameras behandelt GET /api/cameras
func (h *APIHandler) ListCameras(c *gin.Context) {
	cameras, err := h.registry.List()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cameras": cameras, "count": len(cameras)})
}

// GetCamera behandelt GET /api/cameras/:id
func (h *APIHandler) GetCamera(c *gin.Context) {
	camera, err := h.registry.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, camera)
}

// UpdateCamera behandelt PUT /api/cameras/:id
func (h *APIHandler) UpdateCamera(c *gin.Context) {
	var patch registry.CameraPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	camera, err := h.registry.Update(c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, camera)
}

// DeleteCamera behandelt DELETE /api/cameras/:id
func (h *APIHandler) DeleteCamera(c *gin.Context) {
	if err := h.registry.Delete(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Camera deleted, historical detections retained"})
}

// CameraSummary ist die aggregierte Sicht einer Kamera für die Kartenansicht
type CameraSummary struct {
	CameraID       string    `json:"camera_id"`
	Nickname       string    `json:"nickname"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Active         bool      `json:"active"`
	TotalImages    int64     `json:"total_images"`
	DetectionCount int64     `json:"detection_count"`
	BuckCount      int64     `json:"buck_count"`
	DeerCount      int64     `json:"deer_count"`
	DoeCount       int64     `json:"doe_count"`
	BuckPercent    float64   `json:"buck_percent"`
	DoePercent     float64   `json:"doe_percent"`
	LastSeen       time.Time `json:"last_seen,omitempty"`
}

// CameraSummaries behandelt GET /api/cameras/summary. Ohne Stundenfilter läuft
// die Aggregation über die Tagesaggregate; mit hour_from/hour_to muss sie auf
// die Detection-Tabelle ausweichen, weil die Rollups keine Stunden kennen.
// Filter: date_from/date_to, hour_from/hour_to, cameras.
func (h *APIHandler) CameraSummaries(c *gin.Context) {
	cameras, err := h.registry.List()
	if err != nil {
		respondError(c, err)
		return
	}

	summaries := make(map[string]*CameraSummary, len(cameras))
	order := make([]string, 0, len(cameras))
	for _, cam := range cameras {
		summaries[cam.CameraID] = &CameraSummary{
			CameraID:  cam.CameraID,
			Nickname:  cam.Nickname,
			Latitude:  cam.Latitude,
			Longitude: cam.Longitude,
			Active:    cam.Active,
		}
		order = append(order, cam.CameraID)
	}

	add := func(cameraID string, images, detections, buck, deer, doe int64, lastSeen time.Time) {
		s, ok := summaries[cameraID]
		if !ok {
			// Verwaiste Beiträge (Kamera gelöscht) tauchen ohne Koordinaten auf
			s = &CameraSummary{CameraID: cameraID}
			summaries[cameraID] = s
			order = append(order, cameraID)
		}
		s.TotalImages += images
		s.DetectionCount += detections
		s.BuckCount += buck
		s.DeerCount += deer
		s.DoeCount += doe
		if lastSeen.After(s.LastSeen) {
			s.LastSeen = lastSeen
		}
	}

	var camFilter []string
	if cams := c.Query("cameras"); cams != "" {
		camFilter = strings.Split(cams, ",")
	}

	if c.Query("hour_from") != "" || c.Query("hour_to") != "" {
		filters, err := parseDetectionFilters(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// date_from/date_to (YYYY-MM-DD) zusätzlich zu from/to akzeptieren
		if filters.From == nil {
			if df := c.Query("date_from"); df != "" {
				t, err := time.Parse("2006-01-02", df)
				if err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_from parameter, expected YYYY-MM-DD"})
					return
				}
				filters.From = &t
			}
		}
		if filters.To == nil {
			if dt := c.Query("date_to"); dt != "" {
				t, err := time.Parse("2006-01-02", dt)
				if err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_to parameter, expected YYYY-MM-DD"})
					return
				}
				end := t.AddDate(0, 0, 1).Add(-time.Nanosecond)
				filters.To = &end
			}
		}
		detections, err := h.store.Query(c.Request.Context(), filters)
		if err != nil {
			respondError(c, err)
			return
		}
		for i := range detections {
			d := &detections[i]
			add(d.CameraID, int64(d.ImageCount), 1, int64(d.BuckCount),
				int64(d.DeerCount), int64(d.DoeCount), d.Timestamp)
		}
	} else {
		rollups, err := h.repo.ListRollups(repository.RollupFilters{
			DateFrom: c.Query("date_from"),
			DateTo:   c.Query("date_to"),
			Cameras:  camFilter,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		for _, r := range rollups {
			add(r.CameraID, r.TotalImages, r.DetectionCount, r.BuckCount,
				r.DeerCount, r.DoeCount, r.LastSeen)
		}
	}

	result := make([]CameraSummary, 0, len(order))
	for _, id := range order {
		s := summaries[id]
		classified := s.BuckCount + s.DoeCount
		if classified > 0 {
			s.BuckPercent = 100 * float64(s.BuckCount) / float64(classified)
			s.DoePercent = 100 * float64(s.DoeCount) / float64(classified)
		}
		result = append(result, *s)
	}

	c.JSON(http.StatusOK, gin.H{"cameras": result, "count": len(result)})
}

// Detection-Endpunkte

// ListDetections behandelt GET /api/detections mit den Filtern der
// Wartungsansicht (from, to, hour_from, hour_to, cameras)
func (h *APIHandler) ListDetections(c *gin.Context) {
	filters, err := parseDetectionFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	detections, err := h.store.Query(c.Request.Context(), filters)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detections": detections, "count": len(detections)})
}

// GetDetection behandelt GET /api/detections/:id
func (h *APIHandler) GetDetection(c *gin.Context) {
	detection, err := h.repo.GetDetection(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detection)
}

// DeleteDetection behandelt DELETE /api/detections/:id
func (h *APIHandler) DeleteDetection(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Detection deleted"})
}

// ReassignRequest ist der Request-Body für POST /api/detections/:id/reassign
type ReassignRequest struct {
	CameraID string `json:"camera_id" binding:"required"`
}

// ReassignDetection behandelt POST /api/detections/:id/reassign
func (h *APIHandler) ReassignDetection(c *gin.Context) {
	var req ReassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	id := c.Param("id")
	if err := h.store.Reassign(c.Request.Context(), id, req.CameraID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Detection reassigned", "detection_id": id, "camera_id": req.CameraID})
}

// Ingest-Endpunkt

// Ingest behandelt POST /api/ingest. Der Body ist entweder ein JSON-Array von
// Zeilen (Content-Type application/json) oder eine DeerLens-CSV-Datei
// (Content-Type text/csv). Der Report listet jede Zeile als akzeptiert oder
// abgelehnt; ein abgelehnter Batch-Teil verhindert den Rest nicht.
func (h *APIHandler) Ingest(c *gin.Context) {
	var rows []models.RawRow

	contentType := c.ContentType()
	switch {
	case strings.Contains(contentType, "text/csv"):
		var err error
		rows, err = ingest.ParseCSV(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid CSV payload: " + err.Error()})
			return
		}
	default:
		if err := c.ShouldBindJSON(&rows); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
	}

	if len(rows) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty batch"})
		return
	}

	source := c.DefaultQuery("source", "api")
	report, err := h.gateway.Ingest(c.Request.Context(), rows, source)
	if err != nil {
		// Teilfortschritt ist gültig und wird mitgemeldet
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "report": report})
		return
	}

	status := http.StatusOK
	if report.Accepted > 0 && len(report.Rejected) == 0 {
		status = http.StatusCreated
	} else if report.Accepted > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, report)
}

// Rollup-Endpunkte

// ListRollups behandelt GET /api/rollups (Filter: date_from, date_to, cameras)
func (h *APIHandler) ListRollups(c *gin.Context) {
	filters := repository.RollupFilters{
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
	}
	if cameras := c.Query("cameras"); cameras != "" {
		filters.Cameras = strings.Split(cameras, ",")
	}

	rollups, err := h.repo.ListRollups(filters)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rollups": rollups, "count": len(rollups)})
}

// GetRollup behandelt GET /api/rollups/:camera_id/:date
func (h *APIHandler) GetRollup(c *gin.Context) {
	r, err := h.repo.GetRollup(c.Param("camera_id"), c.Param("date"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Reconcile behandelt POST /api/reconcile. Der Lauf ist idempotent; der
// Scope (camera_id, date_from, date_to) kommt aus den Query-Parametern.
func (h *APIHandler) Reconcile(c *gin.Context) {
	scope := rollup.Scope{
		CameraID: c.Query("camera_id"),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
	}

	summary, err := h.store.Engine().Reconcile(c.Request.Context(), scope)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.hub != nil {
		h.hub.BroadcastReconcile(summary)
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary, "in_sync": summary.InSync()})
}

// parseDetectionFilters liest die Detection-Filter aus den Query-Parametern
func parseDetectionFilters(c *gin.Context) (repository.DetectionFilters, error) {
	var filters repository.DetectionFilters

	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filters, fmt.Errorf("invalid from parameter %q, expected RFC3339", from)
		}
		filters.From = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return filters, fmt.Errorf("invalid to parameter %q, expected RFC3339", to)
		}
		filters.To = &t
	}
	if hf := c.Query("hour_from"); hf != "" {
		hour, err := parseHour(hf)
		if err != nil {
			return filters, fmt.Errorf("invalid hour_from parameter: %w", err)
		}
		filters.HourFrom = &hour
	}
	if ht := c.Query("hour_to"); ht != "" {
		hour, err := parseHour(ht)
		if err != nil {
			return filters, fmt.Errorf("invalid hour_to parameter: %w", err)
		}
		filters.HourTo = &hour
	}
	if cameras := c.Query("cameras"); cameras != "" {
		filters.Cameras = strings.Split(cameras, ",")
	}
	return filters, nil
}

// parseHour parst eine Stunde des Tages (0-23)
func parseHour(s string) (int, error) {
	hour, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%d out of range [0, 23]", hour)
	}
	return hour, nil
}
