package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// DuplicateAccept und DuplicateReject sind die gültigen Werte für
// ingest.duplicate_policy. Die Policy greift nur innerhalb eines Batches
// und nur für Zeilen ohne explizite detection_id.
const (
	DuplicateAccept = "accept"
	DuplicateReject = "reject"
)

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Cleanup CleanupConfig `mapstructure:"cleanup"`
}

// ServerConfig enthält Server-bezogene Einstellungen
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig enthält Datenbankeinstellungen
type DBConfig struct {
	File string `mapstructure:"file"` // Pfad zur SQLite-Datei
}

// IngestConfig enthält die Einstellungen der Ingest-Pipeline.
// Zeitzone und Duplikat-Policy werden hier explizit gesetzt und an die
// Pipeline durchgereicht, damit das Verhalten in Tests reproduzierbar ist.
type IngestConfig struct {
	Timezone            string `mapstructure:"timezone"`              // Zeitzone für die Tageszuordnung der Rollups
	DuplicatePolicy     string `mapstructure:"duplicate_policy"`      // "accept" oder "reject"
	AllowUnknownCameras bool   `mapstructure:"allow_unknown_cameras"` // Zeilen mit unbekannter camera_id zulassen
	APIToken            string `mapstructure:"api_token"`             // Bearer-Token für den Ingest-Endpunkt (leer = offen)
	RetryAttempts       int    `mapstructure:"retry_attempts"`        // Wiederholungen bei transienten Store-Fehlern
	RetryInitialMs      int    `mapstructure:"retry_initial_ms"`      // Startintervall des Backoffs in Millisekunden
	StoreTimeoutSeconds int    `mapstructure:"store_timeout_seconds"` // Obergrenze pro Store-Operation
}

// MQTTConfig enthält die Konfiguration für den MQTT-Push-Kanal
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"` // Topic, auf dem Kameras Detections veröffentlichen
}

// CleanupConfig enthält Bereinigungseinstellungen
type CleanupConfig struct {
	RetentionDays      int `mapstructure:"retention_days"`       // 0 deaktiviert die Bereinigung
	CheckIntervalHours int `mapstructure:"check_interval_hours"` // Abstand zwischen zwei Läufen
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Standardwerte festlegen
	setDefaults(v)

	// Konfigurationsdatei laden, wenn vorhanden
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration
	v.AutomaticEnv()
	v.SetEnvPrefix("TRAILMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Konfiguration in Struct umwandeln
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Fachliche Prüfungen, die nicht still korrigiert werden sollen
	if cfg.Ingest.DuplicatePolicy != DuplicateAccept && cfg.Ingest.DuplicatePolicy != DuplicateReject {
		return nil, fmt.Errorf("invalid ingest.duplicate_policy %q (must be %q or %q)",
			cfg.Ingest.DuplicatePolicy, DuplicateAccept, DuplicateReject)
	}
	if _, err := time.LoadLocation(cfg.Ingest.Timezone); err != nil {
		return nil, fmt.Errorf("invalid ingest.timezone %q: %w", cfg.Ingest.Timezone, err)
	}

	// Sicherstellen, dass erforderliche Verzeichnisse existieren
	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	// Server-Standardwerte
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)

	// Log-Standardwerte
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "/data/logs/trailmap.log")

	// DB-Standardwerte
	v.SetDefault("db.file", "/data/trailmap.db")

	// Ingest-Standardwerte
	v.SetDefault("ingest.timezone", "UTC")
	v.SetDefault("ingest.duplicate_policy", DuplicateAccept)
	v.SetDefault("ingest.allow_unknown_cameras", false)
	v.SetDefault("ingest.api_token", "")
	v.SetDefault("ingest.retry_attempts", 3)
	v.SetDefault("ingest.retry_initial_ms", 100)
	v.SetDefault("ingest.store_timeout_seconds", 10)

	// MQTT-Standardwerte
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "trailmap-go")
	v.SetDefault("mqtt.topic", "trailmap/detections")

	// Cleanup-Standardwerte
	v.SetDefault("cleanup.retention_days", 0)
	v.SetDefault("cleanup.check_interval_hours", 24)
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	// Log-Verzeichnis
	if cfg.Log.File != "" {
		logDir := filepath.Dir(cfg.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	// Datenbank-Verzeichnis (für SQLite)
	if cfg.DB.File != "" && cfg.DB.File != ":memory:" {
		dbDir := filepath.Dir(cfg.DB.File)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
