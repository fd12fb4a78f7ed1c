package handlers

import (
	"net/http"

	"trailmap-go/internal/core/ingest"
	"trailmap-go/internal/db/repository"
	"trailmap-go/internal/utils"

	"github.com/gin-gonic/gin"
)

// SystemHandler liefert Status- und Systeminformationen
type SystemHandler struct {
	repo repository.Repository
	pool *ingest.WorkerPool
}

// NewSystemHandler erstellt einen neuen SystemHandler
func NewSystemHandler(repo repository.Repository, pool *ingest.WorkerPool) *SystemHandler {
	return &SystemHandler{repo: repo, pool: pool}
}

// GetStatus behandelt GET /api/status: Datenbestand plus Systemauslastung
func (h *SystemHandler) GetStatus(c *gin.Context) {
	stats, err := h.repo.GetStatistics()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"statistics": stats,
		"system":     utils.GetSystemStats(h.pool),
	})
}
