package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"trailmap-go/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// PushConsumer nimmt Detection-Zeilen aus dem MQTT-Kanal entgegen und reicht
// sie über den Worker-Pool an das Gateway weiter. Die Nutzlast ist eine
// einzelne Zeile oder ein Array von Zeilen im selben Schema wie der
// HTTP-Endpunkt.
type PushConsumer struct {
	pool    *WorkerPool
	timeout time.Duration
}

// NewPushConsumer erstellt einen Consumer für den MQTT-Kanal
func NewPushConsumer(pool *WorkerPool, timeout time.Duration) *PushConsumer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PushConsumer{pool: pool, timeout: timeout}
}

// HandleMessage implementiert mqtt.MessageHandler
func (c *PushConsumer) HandleMessage(topic string, payload []byte) {
	rows, err := decodeRows(payload)
	if err != nil {
		log.Errorf("Failed to decode push payload on %s: %v", topic, err)
		return
	}
	if len(rows) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	report, err := c.pool.Submit(ctx, rows, "mqtt")
	if err != nil {
		log.Errorf("Push ingest from %s failed: %v", topic, err)
		return
	}
	if len(report.Rejected) > 0 {
		log.Warnf("Push ingest from %s rejected %d of %d rows", topic, len(report.Rejected), len(rows))
	}
}

// decodeRows akzeptiert ein einzelnes Objekt oder ein Array
func decodeRows(payload []byte) ([]models.RawRow, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []models.RawRow
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}
	var row models.RawRow
	if err := json.Unmarshal(trimmed, &row); err != nil {
		return nil, err
	}
	return []models.RawRow{row}, nil
}
