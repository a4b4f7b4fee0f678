package service

import (
	"context"
	"errors"
	"testing"

	"detailbook/internal/domain"
	"detailbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCatalogService_Lists(t *testing.T) {
	f := newFixture(t)
	logger := zerolog.Nop()
	svc := NewCatalogService(f.db, &logger)
	ctx := context.Background()

	services, err := svc.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "Exterior Wash", services[0].Name)

	addOns, err := svc.ListAddOns(ctx)
	require.NoError(t, err)
	assert.Len(t, addOns, 2)
}

func TestCatalogService_Seed(t *testing.T) {
	logger := zerolog.Nop()
	repo := new(mockRepo)
	svc := NewCatalogService(repo, &logger)
	ctx := context.Background()

	assert.NoError(t, svc.Seed(ctx, nil))

	bad := &models.Catalog{Services: []models.Service{{ID: 1, Name: "Broken", DurationMin: 0}}}
	assert.ErrorIs(t, svc.Seed(ctx, bad), domain.ErrInvalidInput)

	good := &models.Catalog{Services: []models.Service{{ID: 1, Name: "Wash", DurationMin: 45, IsActive: true}}}
	repo.On("SyncCatalog", ctx, good).Return(nil).Once()
	assert.NoError(t, svc.Seed(ctx, good))

	failing := &models.Catalog{AddOns: []models.AddOn{{ID: 3, Name: "Wax", DurationMin: 20}}}
	repo.On("SyncCatalog", ctx, mock.Anything).Return(errors.New("disk full")).Once()
	assert.ErrorContains(t, svc.Seed(ctx, failing), "disk full")

	repo.AssertExpectations(t)
}
