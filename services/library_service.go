package services

import (
	"context"

	"clinical-mdr-api/models"
	"clinical-mdr-api/repositories"
)

type LibraryService interface {
	CreateLibrary(ctx context.Context, req models.CreateLibraryRequest) (*models.Library, error)
	GetLibraries(ctx context.Context) ([]models.Library, error)
}

type libraryService struct {
	libraryRepo repositories.LibraryRepository
}

func NewLibraryService(libraryRepo repositories.LibraryRepository) LibraryService {
	return &libraryService{libraryRepo: libraryRepo}
}

func (s *libraryService) CreateLibrary(ctx context.Context, req models.CreateLibraryRequest) (*models.Library, error) {
	existing, err := s.libraryRepo.FindByName(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.BusinessLogicf("Library with name (%s) already exists.", req.Name)
	}

	library := &models.Library{Name: req.Name, IsEditable: req.IsEditable}
	if err := s.libraryRepo.Create(ctx, library); err != nil {
		return nil, err
	}
	return library, nil
}

func (s *libraryService) GetLibraries(ctx context.Context) ([]models.Library, error) {
	libraries, err := s.libraryRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	if libraries == nil {
		libraries = []models.Library{}
	}
	return libraries, nil
}
