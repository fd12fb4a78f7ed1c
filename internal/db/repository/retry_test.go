package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"trailmap-go/internal/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, InitialInterval: time.Millisecond}
}

func TestWithRetrySucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), testRetryConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	permanent := errors.New("UNIQUE constraint failed: detections.detection_id")
	err := WithRetry(context.Background(), testRetryConfig(), func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
	assert.NotErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestWithRetryExhaustionWrapsStoreUnavailable(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), testRetryConfig(), func() error {
		calls++
		return errors.New("database is locked")
	})
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	// Erstversuch plus konfigurierte Wiederholungen
	assert.Equal(t, 4, calls)
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, testRetryConfig(), func() error {
		return errors.New("database is locked")
	})
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, IsTransient(errors.New("database table is locked")))
	assert.False(t, IsTransient(errors.New("UNIQUE constraint failed")))
	assert.False(t, IsTransient(nil))
}

func TestTranslateError(t *testing.T) {
	assert.ErrorIs(t, TranslateError(errors.New("UNIQUE constraint failed: cameras.camera_id")), models.ErrDuplicateKey)
	assert.NoError(t, TranslateError(nil))
}
