package registry

import (
	"fmt"

	"trailmap-go/internal/core/models"
	"trailmap-go/internal/db/repository"

	log "github.com/sirupsen/logrus"
)

// Service verwaltet die registrierten Kameras. Das Löschen einer Kamera
// kaskadiert bewusst nicht auf ihre Detections: verwaiste Detections und ihre
// Rollup-Beiträge bleiben abfragbar.
type Service struct {
	repo repository.Repository
}

// CameraPatch enthält die veränderlichen Felder einer Kamera.
// Nil-Felder bleiben unverändert; die camera_id ist nicht patchbar.
type CameraPatch struct {
	Nickname  *string  `json:"nickname,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Active    *bool    `json:"active,omitempty"`
}

// NewService erstellt eine neue Registry
func NewService(repo repository.Repository) *Service {
	return &Service{repo: repo}
}

// validateCoordinates prüft den geographischen Wertebereich
func validateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return models.NewValidationError("latitude", fmt.Sprintf("%.6f out of range [-90, 90]", lat))
	}
	if lon < -180 || lon > 180 {
		return models.NewValidationError("longitude", fmt.Sprintf("%.6f out of range [-180, 180]", lon))
	}
	return nil
}

// Create legt eine neue Kamera an; existierende camera_id führt zu ErrDuplicateKey
func (s *Service) Create(camera *models.Camera) error {
	if camera.CameraID == "" {
		return models.NewValidationError("camera_id", "must not be empty")
	}
	if err := validateCoordinates(camera.Latitude, camera.Longitude); err != nil {
		return err
	}
	if err := s.repo.CreateCamera(camera); err != nil {
		return fmt.Errorf("camera %q: %w", camera.CameraID, err)
	}
	log.Infof("Camera %s created (%s)", camera.CameraID, camera.Nickname)
	return nil
}

// Update wendet einen Patch auf eine Kamera an; unbekannte camera_id führt zu ErrNotFound
func (s *Service) Update(cameraID string, patch CameraPatch) (*models.Camera, error) {
	camera, err := s.repo.GetCamera(cameraID)
	if err != nil {
		return nil, fmt.Errorf("camera %q: %w", cameraID, err)
	}

	if patch.Nickname != nil {
		camera.Nickname = *patch.Nickname
	}
	if patch.Latitude != nil {
		camera.Latitude = *patch.Latitude
	}
	if patch.Longitude != nil {
		camera.Longitude = *patch.Longitude
	}
	if patch.Active != nil {
		camera.Active = *patch.Active
	}
	if err := validateCoordinates(camera.Latitude, camera.Longitude); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateCamera(camera); err != nil {
		return nil, fmt.Errorf("camera %q: %w", cameraID, err)
	}
	return camera, nil
}

// Delete entfernt eine Kamera aus der Registry; ihre Detections bleiben erhalten
func (s *Service) Delete(cameraID string) error {
	if err := s.repo.DeleteCamera(cameraID); err != nil {
		return fmt.Errorf("camera %q: %w", cameraID, err)
	}
	log.Infof("Camera %s deleted, historical detections retained", cameraID)
	return nil
}

// Get holt eine Kamera anhand ihrer camera_id
func (s *Service) Get(cameraID string) (*models.Camera, error) {
	camera, err := s.repo.GetCamera(cameraID)
	if err != nil {
		return nil, fmt.Errorf("camera %q: %w", cameraID, err)
	}
	return camera, nil
}

// List holt alle registrierten Kameras
func (s *Service) List() ([]models.Camera, error) {
	return s.repo.ListCameras()
}

// IDSet liefert die Menge aller registrierten camera_ids (für die Validierung)
func (s *Service) IDSet() (map[string]struct{}, error) {
	return s.repo.CameraIDSet()
}
