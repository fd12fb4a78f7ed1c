package repository

import (
	"context"
	"fmt"
	"time"

	"trailmap-go/internal/core/models"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// RetryConfig begrenzt Wiederholungsversuche bei transienten Store-Fehlern
type RetryConfig struct {
	Attempts        int           // zusätzliche Versuche nach dem ersten Fehlschlag
	InitialInterval time.Duration // Startintervall des exponentiellen Backoffs
}

// DefaultRetryConfig sind die Werte, die auch die Konfiguration als Default setzt
var DefaultRetryConfig = RetryConfig{
	Attempts:        3,
	InitialInterval: 100 * time.Millisecond,
}

// WithRetry führt op mit begrenztem exponentiellen Backoff aus. Nur transiente
// Fehler (gesperrte SQLite-Datenbank) werden wiederholt; alle anderen brechen
// sofort ab. Sind alle Versuche verbraucht oder läuft der Kontext ab, wird der
// Fehler als ErrStoreUnavailable gemeldet.
func WithRetry(ctx context.Context, cfg RetryConfig, op func() error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultRetryConfig.Attempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultRetryConfig.InitialInterval
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = cfg.InitialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(cfg.Attempts)), ctx)

	attempt := 0
	transient := false
	err := backoff.Retry(func() error {
		attempt++
		if err := op(); err != nil {
			if IsTransient(err) {
				transient = true
				log.Warnf("Transient store error (attempt %d): %v", attempt, err)
				return err
			}
			transient = false
			return backoff.Permanent(err)
		}
		return nil
	}, policy)

	if err == nil {
		return nil
	}
	// Versuche erschöpft oder Kontext abgelaufen
	if transient || ctx.Err() != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return err
}
