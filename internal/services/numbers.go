package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/nimbuscrm/nimbus-backend/internal/models"
	"github.com/nimbuscrm/nimbus-backend/internal/storage"
)

// Sessions owned by the number API are namespaced so callers never see the
// internal session-naming convention.
const numberSessionPrefix = "number-"

var (
	numberServiceInstance *NumberService
	numberServiceOnce     sync.Once
)

// SetNumberService sets the global number service instance
func SetNumberService(s *NumberService) {
	numberServiceInstance = s
}

// GetNumberService returns the global number service instance
func GetNumberService() *NumberService {
	return numberServiceInstance
}

// NumberService is the address-translation layer between the stable
// numberId surface of the control API and the session registry.
type NumberService struct {
	registry *SessionRegistry
	store    storage.Store
}

// NewNumberService creates a new number service
func NewNumberService(registry *SessionRegistry, store storage.Store) *NumberService {
	s := &NumberService{registry: registry, store: store}
	// A remote logout is terminal: the number disappears from list() along
	// with its credentials.
	registry.OnSessionTerminated(func(sessionID, numberID string) {
		if numberID == "" {
			return
		}
		if err := store.DeleteNumber(numberID); err != nil && !errors.Is(err, storage.ErrNumberNotFound) {
			log.Printf("⚠️  Failed to remove number %s after logout: %v", numberID, err)
		}
	})
	return s
}

func sessionIDForNumber(numberID string) string {
	return numberSessionPrefix + numberID
}

// Create registers a number and starts its session. Creating an already
// registered number that is locally disconnected reconnects it instead.
func (s *NumberService) Create(ctx context.Context, req models.NumberCreateRequest) (models.SessionInfo, error) {
	if req.NumberID == "" {
		return models.SessionInfo{}, errors.New("numberId is required")
	}
	if req.TenantID == "" {
		req.TenantID = uuid.NewString()
		log.Printf("⚠️  No tenantId supplied for number %s - generated %s", req.NumberID, req.TenantID)
	}

	sessionID := sessionIDForNumber(req.NumberID)

	// Re-create on a disconnected session is an explicit reconnect.
	if controller, err := s.registry.Get(sessionID); err == nil {
		if controller.Status() == models.StatusDisconnected {
			if err := controller.Reconnect(ctx); err != nil {
				return models.SessionInfo{}, err
			}
			return controller.Info(), nil
		}
		return models.SessionInfo{}, fmt.Errorf("number %s already has an active session", req.NumberID)
	}

	if _, err := s.store.GetNumber(req.NumberID); errors.Is(err, storage.ErrNumberNotFound) {
		_, err = s.store.CreateNumber(&models.Number{
			NumberID:    req.NumberID,
			TenantID:    req.TenantID,
			PhoneNumber: req.PhoneNumber,
			Label:       req.Label,
		})
		if err != nil {
			return models.SessionInfo{}, err
		}
	} else if err != nil {
		return models.SessionInfo{}, err
	}

	meta := models.SessionMeta{
		NumberID:    req.NumberID,
		TenantID:    req.TenantID,
		PhoneNumber: req.PhoneNumber,
	}
	controller, err := s.registry.Create(ctx, sessionID, meta)
	if err != nil {
		return models.SessionInfo{}, err
	}
	return controller.Info(), nil
}

// GetQR returns the current pairing payload, if the session is waiting for
// a scan.
func (s *NumberService) GetQR(numberID string) (models.SessionInfo, error) {
	controller, err := s.registry.Get(sessionIDForNumber(numberID))
	if err != nil {
		return models.SessionInfo{}, err
	}
	return controller.Info(), nil
}

// GetStatus returns the live session snapshot for a number.
func (s *NumberService) GetStatus(numberID string) (models.SessionInfo, error) {
	controller, err := s.registry.Get(sessionIDForNumber(numberID))
	if err != nil {
		return models.SessionInfo{}, err
	}
	return controller.Info(), nil
}

// SendText sends a text message from the number's session.
func (s *NumberService) SendText(ctx context.Context, numberID, to, text string) (string, error) {
	controller, err := s.registry.Get(sessionIDForNumber(numberID))
	if err != nil {
		return "", err
	}
	return controller.SendText(ctx, to, text)
}

// SendMedia sends a media message from the number's session.
func (s *NumberService) SendMedia(ctx context.Context, numberID string, req models.SendMediaRequest) (string, error) {
	controller, err := s.registry.Get(sessionIDForNumber(numberID))
	if err != nil {
		return "", err
	}
	return controller.SendMedia(ctx, req)
}

// Disconnect closes the session but preserves credentials and the number
// registration.
func (s *NumberService) Disconnect(numberID string) error {
	controller, err := s.registry.Get(sessionIDForNumber(numberID))
	if err != nil {
		return err
	}
	controller.Disconnect()
	return nil
}

// Delete erases the session's credentials and removes the number.
func (s *NumberService) Delete(numberID string) error {
	if err := s.registry.Delete(sessionIDForNumber(numberID), true); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	if err := s.store.DeleteNumber(numberID); err != nil && !errors.Is(err, storage.ErrNumberNotFound) {
		return err
	}
	log.Printf("🗑️  Number %s deleted", numberID)
	return nil
}

// List returns every registered number with its live status. Numbers
// without a live session report as disconnected.
func (s *NumberService) List() ([]models.NumberStatus, error) {
	numbers, err := s.store.GetAllNumbers()
	if err != nil {
		return nil, err
	}

	statuses := make([]models.NumberStatus, 0, len(numbers))
	for _, number := range numbers {
		status := models.NumberStatus{
			NumberID:    number.NumberID,
			TenantID:    number.TenantID,
			PhoneNumber: number.PhoneNumber,
			Label:       number.Label,
			Status:      models.StatusDisconnected,
		}
		if controller, err := s.registry.Get(sessionIDForNumber(number.NumberID)); err == nil {
			info := controller.Info()
			status.Status = info.Status
			status.DisplayName = info.DisplayName
			status.ConnectedAt = info.ConnectedAt
			if info.PhoneNumber != "" {
				status.PhoneNumber = info.PhoneNumber
			}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
