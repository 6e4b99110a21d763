package storage

import (
	"errors"
	"sync"

	"github.com/nimbuscrm/nimbus-backend/internal/models"
)

var (
	storeInstance Store
	storeOnce     sync.Once
)

// ErrNumberNotFound is returned when no number row matches the given id.
var ErrNumberNotFound = errors.New("number not found")

// SetStore sets the global store instance (call from main.go)
func SetStore(s Store) {
	storeInstance = s
}

// GetStore returns the global store instance
func GetStore() Store {
	return storeInstance
}

// Store defines the interface for storage operations
type Store interface {
	// Number operations
	CreateNumber(number *models.Number) (*models.Number, error)
	GetNumber(numberID string) (*models.Number, error)
	GetNumbersByTenant(tenantID string) ([]*models.Number, error)
	GetAllNumbers() ([]*models.Number, error)
	UpdateNumber(number *models.Number) error
	DeleteNumber(numberID string) error
}
