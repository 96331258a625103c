package repositories

import (
	"context"
	"errors"

	"clinical-mdr-api/models"

	"gorm.io/gorm"
)

type LibraryRepository interface {
	Create(ctx context.Context, library *models.Library) error
	FindByName(ctx context.Context, name string) (*models.Library, error)
	List(ctx context.Context) ([]models.Library, error)
}

type libraryRepository struct {
	db *gorm.DB
}

func NewLibraryRepository(db *gorm.DB) LibraryRepository {
	return &libraryRepository{db: db}
}

func (r *libraryRepository) Create(ctx context.Context, library *models.Library) error {
	return r.db.WithContext(ctx).Create(library).Error
}

// FindByName returns nil when no library carries name.
func (r *libraryRepository) FindByName(ctx context.Context, name string) (*models.Library, error) {
	return findLibrary(r.db.WithContext(ctx), name)
}

func (r *libraryRepository) List(ctx context.Context) ([]models.Library, error) {
	var libraries []models.Library
	err := r.db.WithContext(ctx).Order("name").Find(&libraries).Error
	return libraries, err
}

func findLibrary(db *gorm.DB, name string) (*models.Library, error) {
	var library models.Library
	err := db.Where("name = ?", name).First(&library).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &library, nil
}
