package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/nimbuscrm/nimbus-backend/internal/models"
)

// MemoryStore holds all data in memory for tests and local development
type MemoryStore struct {
	numbers map[string]*models.Number

	numberMu sync.RWMutex

	numberCounter uint
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		numbers: make(map[string]*models.Number),
	}
}

// Number operations
func (m *MemoryStore) CreateNumber(number *models.Number) (*models.Number, error) {
	m.numberMu.Lock()
	defer m.numberMu.Unlock()

	if _, exists := m.numbers[number.NumberID]; exists {
		return nil, fmt.Errorf("number %s already registered", number.NumberID)
	}

	m.numberCounter++
	number.ID = m.numberCounter
	number.CreatedAt = time.Now()
	number.UpdatedAt = time.Now()

	m.numbers[number.NumberID] = number
	return number, nil
}

func (m *MemoryStore) GetNumber(numberID string) (*models.Number, error) {
	m.numberMu.RLock()
	defer m.numberMu.RUnlock()

	number, exists := m.numbers[numberID]
	if !exists {
		return nil, ErrNumberNotFound
	}
	return number, nil
}

func (m *MemoryStore) GetNumbersByTenant(tenantID string) ([]*models.Number, error) {
	m.numberMu.RLock()
	defer m.numberMu.RUnlock()

	var numbers []*models.Number
	for _, number := range m.numbers {
		if number.TenantID == tenantID {
			numbers = append(numbers, number)
		}
	}
	return numbers, nil
}

func (m *MemoryStore) GetAllNumbers() ([]*models.Number, error) {
	m.numberMu.RLock()
	defer m.numberMu.RUnlock()

	numbers := make([]*models.Number, 0, len(m.numbers))
	for _, number := range m.numbers {
		numbers = append(numbers, number)
	}
	return numbers, nil
}

func (m *MemoryStore) UpdateNumber(number *models.Number) error {
	m.numberMu.Lock()
	defer m.numberMu.Unlock()

	if _, exists := m.numbers[number.NumberID]; !exists {
		return ErrNumberNotFound
	}
	number.UpdatedAt = time.Now()
	m.numbers[number.NumberID] = number
	return nil
}

func (m *MemoryStore) DeleteNumber(numberID string) error {
	m.numberMu.Lock()
	defer m.numberMu.Unlock()

	if _, exists := m.numbers[numberID]; !exists {
		return ErrNumberNotFound
	}
	delete(m.numbers, numberID)
	return nil
}
