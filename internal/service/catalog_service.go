package service

import (
	"context"
	"fmt"

	"detailbook/internal/domain"
	"detailbook/internal/models"

	"github.com/rs/zerolog"
)

type CatalogService struct {
	repo   domain.CatalogRepository
	logger *zerolog.Logger
}

func NewCatalogService(repo domain.CatalogRepository, logger *zerolog.Logger) *CatalogService {
	return &CatalogService{repo: repo, logger: logger}
}

// ListServices returns the services customers can book.
func (s *CatalogService) ListServices(ctx context.Context) ([]*models.Service, error) {
	return s.repo.ListServices(ctx, true)
}

func (s *CatalogService) ListAddOns(ctx context.Context) ([]*models.AddOn, error) {
	return s.repo.ListAddOns(ctx, true)
}

// Seed upserts the catalog file contents. Rows missing from the file are left as is.
func (s *CatalogService) Seed(ctx context.Context, catalog *models.Catalog) error {
	if catalog == nil {
		return nil
	}
	for _, svc := range catalog.Services {
		if svc.DurationMin <= 0 {
			return fmt.Errorf("%w: service %d must have a positive duration", domain.ErrInvalidInput, svc.ID)
		}
	}
	if err := s.repo.SyncCatalog(ctx, catalog); err != nil {
		return err
	}
	s.logger.Info().Int("services", len(catalog.Services)).Int("add_ons", len(catalog.AddOns)).Msg("catalog seeded")
	return nil
}
