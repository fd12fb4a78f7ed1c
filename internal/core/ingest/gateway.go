package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"trailmap-go/config"
	"trailmap-go/internal/core/models"
	"trailmap-go/internal/core/store"
	"trailmap-go/internal/db/repository"
	"trailmap-go/internal/sse"

	log "github.com/sirupsen/logrus"
)

// Gateway ist der gemeinsame Eintrittspunkt aller Ingest-Quellen. CSV-Upload,
// JSON-Push und MQTT unterscheiden sich nur in der Herkunft der Zeilen; die
// Validierung und die Schreibsemantik sind identisch.
type Gateway struct {
	store *store.Store
	repo  repository.Repository
	hub   *sse.Hub // optional, darf nil sein
	cfg   config.IngestConfig
	loc   *time.Location
}

// NewGateway erstellt ein Gateway
func NewGateway(st *store.Store, repo repository.Repository, hub *sse.Hub, cfg config.IngestConfig, loc *time.Location) *Gateway {
	if loc == nil {
		loc = time.UTC
	}
	return &Gateway{store: st, repo: repo, hub: hub, cfg: cfg, loc: loc}
}

// naturalKey identifiziert eine Zeile ohne explizite detection_id für die
// Duplikat-Policy innerhalb eines Batches
func naturalKey(d *models.Detection) string {
	return d.CameraID + "|" + d.Timestamp.UTC().Format(time.RFC3339Nano) + "|" +
		strconv.Itoa(d.ImageCount) + "|" + strconv.Itoa(d.BuckCount) + "|" +
		strconv.Itoa(d.DeerCount) + "|" + strconv.Itoa(d.DoeCount)
}

// Ingest validiert die Zeilen und schreibt jede gültige Zeile als eigene
// Transaktion (Detection + Rollup). Der Report enthält immer das vollständige
// Accept/Reject-Ergebnis; bei einem Abbruch zwischen zwei Zeilen bleibt der
// bereits geschriebene Teil gültig und wird mitgemeldet.
func (g *Gateway) Ingest(ctx context.Context, rows []models.RawRow, source string) (*models.IngestReport, error) {
	report := &models.IngestReport{Source: source, Rejected: []models.RejectedRow{}}

	cameras, err := g.repo.CameraIDSet()
	if err != nil {
		return report, fmt.Errorf("failed to load camera registry: %w", err)
	}

	opts := ValidationOptions{
		AllowUnknownCameras: g.cfg.AllowUnknownCameras,
		Location:            g.loc,
	}

	// Duplikat-Policy: nur innerhalb dieses Batches und nur für Zeilen ohne
	// explizite detection_id. Default ist accept, weil eine Kamera mehrfach
	// pro Sekunde auslösen kann.
	rejectDuplicates := g.cfg.DuplicatePolicy == config.DuplicateReject
	seen := make(map[string]struct{})

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			log.Warnf("Ingest from %s aborted after %d rows: %v", source, report.Accepted, err)
			g.broadcast(report)
			return report, err
		}

		d, err := ValidateRow(row, cameras, opts)
		if err != nil {
			report.Rejected = append(report.Rejected, models.RejectedRow{Row: row, Error: err.Error()})
			continue
		}

		if rejectDuplicates && d.DetectionID == "" {
			key := naturalKey(d)
			if _, dup := seen[key]; dup {
				report.Rejected = append(report.Rejected, models.RejectedRow{
					Row:   row,
					Error: "duplicate row in batch (camera_id, date_time, counts)",
				})
				continue
			}
			seen[key] = struct{}{}
		}

		d.Source = source
		if raw, err := json.Marshal(row); err == nil {
			d.SourceData = raw
		}

		if err := g.store.Insert(ctx, d); err != nil {
			if errors.Is(err, models.ErrStoreUnavailable) {
				// Die Persistenz ist weg; weitere Zeilen hätten dasselbe
				// Schicksal. Teilfortschritt melden und abbrechen.
				g.broadcast(report)
				return report, err
			}
			report.Rejected = append(report.Rejected, models.RejectedRow{Row: row, Error: err.Error()})
			continue
		}
		report.Accepted++
	}

	log.Infof("Ingest from %s: accepted=%d rejected=%d", source, report.Accepted, len(report.Rejected))
	g.broadcast(report)
	return report, nil
}

func (g *Gateway) broadcast(report *models.IngestReport) {
	if g.hub != nil && (report.Accepted > 0 || len(report.Rejected) > 0) {
		g.hub.BroadcastIngestReport(report)
	}
}
