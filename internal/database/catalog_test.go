package database

import (
	"context"
	"testing"

	"detailbook/internal/domain"
	"detailbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	catalog := &models.Catalog{
		Services: []models.Service{
			{ID: 2, Name: "Full Detail", DurationMin: 180, PriceCents: 25000, SortOrder: 2, IsActive: true},
			{ID: 1, Name: "Express Wash", DurationMin: 60, PriceCents: 6000, SortOrder: 1, IsActive: true},
			{ID: 3, Name: "Retired", DurationMin: 30, IsActive: false},
		},
		AddOns: []models.AddOn{
			{ID: 10, Name: "Pet Hair", DurationMin: 30, PriceCents: 3000, IsActive: true},
			{ID: 11, Name: "Old Add-on", DurationMin: 15, IsActive: false},
		},
	}
	require.NoError(t, db.SyncCatalog(ctx, catalog))

	t.Run("ListServicesOrdered", func(t *testing.T) {
		active, err := db.ListServices(ctx, true)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, "Express Wash", active[0].Name)
		assert.Equal(t, "Full Detail", active[1].Name)

		all, err := db.ListServices(ctx, false)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("GetServiceResolvesInactive", func(t *testing.T) {
		s, err := db.GetService(ctx, 3)
		require.NoError(t, err)
		assert.False(t, s.IsActive)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := db.GetService(ctx, 99)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = db.GetAddOn(ctx, 99)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("AddOns", func(t *testing.T) {
		a, err := db.GetAddOn(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 30, a.DurationMin)

		active, err := db.ListAddOns(ctx, true)
		require.NoError(t, err)
		assert.Len(t, active, 1)
	})

	t.Run("SyncIsIdempotentAndUpdates", func(t *testing.T) {
		catalog.Services[0].PriceCents = 27500
		require.NoError(t, db.SyncCatalog(ctx, catalog))

		s, err := db.GetService(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(27500), s.PriceCents)

		all, err := db.ListServices(ctx, false)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("UpsertAddOn", func(t *testing.T) {
		require.NoError(t, db.UpsertAddOn(ctx, &models.AddOn{ID: 11, Name: "Clay Bar", DurationMin: 45, IsActive: true}))
		a, err := db.GetAddOn(ctx, 11)
		require.NoError(t, err)
		assert.Equal(t, "Clay Bar", a.Name)
		assert.True(t, a.IsActive)
	})
}
