package timezone

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Load löst einen Zeitzonennamen aus der Konfiguration in eine Location auf.
// Die Zeitzone für die Tageszuordnung kommt bewusst aus der Konfiguration und
// nicht aus der TZ-Umgebungsvariable, damit sie in Tests reproduzierbar ist.
// Bei ungültigem Namen wird UTC verwendet.
func Load(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warnf("Failed to load timezone %s: %v. Falling back to UTC.", name, err)
		return time.UTC
	}
	return loc
}

// DayKey liefert den Kalendertag (YYYY-MM-DD) eines Zeitstempels in der
// übergebenen Zeitzone. Alle Rollup-Schlüssel werden ausschließlich hierüber
// gebildet.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// Format formatiert einen Zeitstempel in der übergebenen Zeitzone
func Format(t time.Time, loc *time.Location, layout string) string {
	return t.In(loc).Format(layout)
}

// ISO8601 formatiert einen Zeitstempel im RFC3339-Format in der übergebenen Zeitzone
func ISO8601(t time.Time, loc *time.Location) string {
	return Format(t, loc, time.RFC3339)
}
