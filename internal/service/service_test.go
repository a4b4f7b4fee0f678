package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"detailbook/internal/database"
	"detailbook/internal/events"
	"detailbook/internal/models"
	"detailbook/internal/repository"
	"detailbook/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testDate = "2030-06-03"

// fixedNow is two days before testDate.
var fixedNow = time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db       *database.DB
	cache    *repository.MemorySlotCache
	bus      *events.EventBus
	slots    *SlotService
	bookings *BookingService
	schedule *ScheduleService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "service.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.SyncCatalog(ctx, &models.Catalog{
		Services: []models.Service{
			{ID: 1, Name: "Exterior Wash", DurationMin: 60, PriceCents: 8000, IsActive: true},
			{ID: 2, Name: "Retired Polish", DurationMin: 90, PriceCents: 15000, IsActive: false},
		},
		AddOns: []models.AddOn{
			{ID: 10, Name: "Tire Shine", DurationMin: 15, PriceCents: 1500, IsActive: true},
			{ID: 11, Name: "Pet Hair", DurationMin: 30, PriceCents: 2500, IsActive: true},
			{ID: 12, Name: "Ozone", DurationMin: 20, PriceCents: 3000, IsActive: false},
		},
	}))

	f := &fixture{db: db, cache: repository.NewMemorySlotCache(), bus: events.NewEventBus()}
	f.slots = NewSlotService(db, f.cache, schedule.DefaultOptions(), 5*time.Minute, 90, &logger).
		WithClock(func() time.Time { return fixedNow })
	f.bookings = NewBookingService(db, f.slots, f.bus, nil, nil, &logger)
	f.schedule = NewScheduleService(db, f.slots, f.bus, &logger)
	return f
}

func utc(h, m int) time.Time {
	return time.Date(2030, 6, 3, h, m, 0, 0, time.UTC)
}

func validRequest(start string) *models.BookingRequest {
	return &models.BookingRequest{
		ServiceID: 1,
		FirstName: "Dana",
		LastName:  "Reyes",
		Email:     "dana@example.com",
		Phone:     "+1 (555) 010-2030",
		Date:      testDate,
		StartTime: start,
		Address:   models.Address{Street: "12 Oak St", City: "Austin", State: "TX", Zip: "78701"},
	}
}
