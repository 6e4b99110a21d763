package storage

import (
	"errors"

	"gorm.io/gorm"

	"github.com/nimbuscrm/nimbus-backend/internal/models"
)

// DatabaseStore persists data in PostgreSQL via GORM
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a new database-backed storage
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Number operations
func (d *DatabaseStore) CreateNumber(number *models.Number) (*models.Number, error) {
	if err := d.db.Create(number).Error; err != nil {
		return nil, err
	}
	return number, nil
}

func (d *DatabaseStore) GetNumber(numberID string) (*models.Number, error) {
	var number models.Number
	err := d.db.Where("number_id = ?", numberID).First(&number).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNumberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &number, nil
}

func (d *DatabaseStore) GetNumbersByTenant(tenantID string) ([]*models.Number, error) {
	var numbers []*models.Number
	if err := d.db.Where("tenant_id = ?", tenantID).Find(&numbers).Error; err != nil {
		return nil, err
	}
	return numbers, nil
}

func (d *DatabaseStore) GetAllNumbers() ([]*models.Number, error) {
	var numbers []*models.Number
	if err := d.db.Find(&numbers).Error; err != nil {
		return nil, err
	}
	return numbers, nil
}

func (d *DatabaseStore) UpdateNumber(number *models.Number) error {
	return d.db.Save(number).Error
}

func (d *DatabaseStore) DeleteNumber(numberID string) error {
	result := d.db.Where("number_id = ?", numberID).Delete(&models.Number{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNumberNotFound
	}
	return nil
}
