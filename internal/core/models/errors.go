package models

import (
	"errors"
	"fmt"
)

// Fehlerarten des Kerns. Handler bilden sie auf HTTP-Status ab,
// Aufrufer prüfen sie mit errors.Is.
var (
	// ErrDuplicateKey: fachlicher Schlüssel existiert bereits (Kamera oder Detection)
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrNotFound: referenzierte Kamera oder Detection existiert nicht
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable: Persistenz nach allen Wiederholungsversuchen nicht erreichbar
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError beschreibt eine fehlerhafte Eingabezeile.
// Er wird pro Zeile gesammelt und bricht niemals den ganzen Batch ab.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError erstellt einen ValidationError für ein Feld
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError prüft, ob err ein ValidationError ist
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
