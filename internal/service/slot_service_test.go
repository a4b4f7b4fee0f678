package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"detailbook/internal/database"
	"detailbook/internal/domain"
	"detailbook/internal/models"
	"detailbook/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func starts(slots []models.Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.StartTime
	}
	return out
}

func TestGetAvailableSlots_EmptyDay(t *testing.T) {
	f := newFixture(t)

	slots, err := f.slots.GetAvailableSlots(context.Background(), testDate, 1, nil)
	require.NoError(t, err)
	require.Len(t, slots, 35)

	first, last := slots[0], slots[len(slots)-1]
	assert.Equal(t, utc(8, 0), first.Start)
	assert.Equal(t, utc(9, 30), first.End)
	assert.Equal(t, "08:00", first.StartTime)
	assert.Equal(t, "8:00 AM - 9:30 AM", first.Label)
	assert.Equal(t, utc(16, 30), last.Start)
	assert.Equal(t, utc(18, 0), last.End)

	for i := 1; i < len(slots); i++ {
		assert.True(t, slots[i-1].Start.Before(slots[i].Start))
	}
}

func TestGetAvailableSlots_ExistingBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	existing := &models.Booking{
		FirstName: "Sam", Email: "sam@example.com", Phone: "5550102030", ServiceID: 1,
		StartAt: utc(10, 0), EndAt: utc(11, 30), Status: models.StatusConfirmed,
	}
	require.NoError(t, f.db.CreateBookingIfFree(ctx, existing))

	slots, err := f.slots.GetAvailableSlots(ctx, testDate, 1, nil)
	require.NoError(t, err)
	require.Len(t, slots, 24)

	for _, s := range slots {
		assert.False(t, schedule.Overlaps(s.Start, s.End, existing.StartAt, existing.EndAt), "slot %s overlaps booking", s.Label)
	}
	assert.Contains(t, starts(slots), "08:30")
	assert.Contains(t, starts(slots), "11:30")
	assert.NotContains(t, starts(slots), "08:45")
}

func TestGetAvailableSlots_IgnoresCancelledBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cancelled := &models.Booking{
		FirstName: "Sam", Email: "sam@example.com", Phone: "5550102030", ServiceID: 1,
		StartAt: utc(10, 0), EndAt: utc(11, 30), Status: models.StatusCancelled,
	}
	require.NoError(t, f.db.CreateBookingIfFree(ctx, cancelled))

	slots, err := f.slots.GetAvailableSlots(ctx, testDate, 1, nil)
	require.NoError(t, err)
	assert.Len(t, slots, 35)
}

func TestGetAvailableSlots_Unavailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	block := &models.Unavailability{StartAt: utc(14, 0), EndAt: utc(15, 0), Reason: "van service"}
	require.NoError(t, f.db.CreateUnavailability(ctx, block))

	slots, err := f.slots.GetAvailableSlots(ctx, testDate, 1, nil)
	require.NoError(t, err)
	require.Len(t, slots, 26)
	for _, s := range slots {
		assert.False(t, schedule.Overlaps(s.Start, s.End, block.StartAt, block.EndAt), "slot %s overlaps block", s.Label)
	}
	assert.Contains(t, starts(slots), "12:30")
	assert.Contains(t, starts(slots), "15:00")
}

func TestGetAvailableSlots_AddOnsExtendFootprint(t *testing.T) {
	f := newFixture(t)

	slots, err := f.slots.GetAvailableSlots(context.Background(), testDate, 1, []int64{10})
	require.NoError(t, err)
	require.Len(t, slots, 34)

	last := slots[len(slots)-1]
	assert.Equal(t, utc(16, 15), last.Start)
	assert.Equal(t, utc(18, 0), last.End)
}

func TestGetAvailableSlots_InactiveServiceResolves(t *testing.T) {
	f := newFixture(t)

	slots, err := f.slots.GetAvailableSlots(context.Background(), testDate, 2, nil)
	require.NoError(t, err)
	assert.Len(t, slots, 33)
}

func TestGetAvailableSlots_Today(t *testing.T) {
	f := newFixture(t)

	slots, err := f.slots.GetAvailableSlots(context.Background(), "2030-06-01", 1, nil)
	require.NoError(t, err)
	require.Len(t, slots, 31)
	assert.Equal(t, "09:00", slots[0].StartTime)
}

func TestGetAvailableSlots_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		date      string
		serviceID int64
		addOnIDs  []int64
		want      error
	}{
		{"past date", "2030-05-31", 1, nil, domain.ErrInvalidInput},
		{"malformed date", "2030-6-3", 1, nil, domain.ErrInvalidInput},
		{"beyond horizon", "2030-12-31", 1, nil, domain.ErrInvalidInput},
		{"missing service", testDate, 0, nil, domain.ErrInvalidInput},
		{"duplicate add-on", testDate, 1, []int64{10, 10}, domain.ErrInvalidInput},
		{"unknown service", testDate, 99, nil, domain.ErrNotFound},
		{"unknown add-on", testDate, 1, []int64{99}, domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.slots.GetAvailableSlots(ctx, tt.date, tt.serviceID, tt.addOnIDs)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGetAvailableSlots_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.slots.GetAvailableSlots(ctx, testDate, 1, []int64{11, 10})
	require.NoError(t, err)
	second, err := f.slots.GetAvailableSlots(ctx, testDate, 1, []int64{10, 11})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	cached, ok, err := f.cache.GetSlots(ctx, testDate, cacheKey(1, []int64{10, 11}))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, first, cached)
}

func TestGetAvailableSlots_CacheInvalidatedByBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, err := f.slots.GetAvailableSlots(ctx, testDate, 1, nil)
	require.NoError(t, err)
	require.Equal(t, "08:00", before[0].StartTime)

	_, err = f.bookings.CreateBooking(ctx, validRequest("08:00"))
	require.NoError(t, err)

	after, err := f.slots.GetAvailableSlots(ctx, testDate, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "09:30", after[0].StartTime)
}

// racingRepo commits a booking for the same day while a reader is between
// its bookings and unavailability queries.
type racingRepo struct {
	*database.DB
	once   sync.Once
	commit func()
}

func (r *racingRepo) ListUnavailability(ctx context.Context, from, to time.Time) ([]*models.Unavailability, error) {
	r.once.Do(r.commit)
	return r.DB.ListUnavailability(ctx, from, to)
}

func TestGetAvailableSlots_CommitDuringFillIsNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	logger := zerolog.Nop()

	repo := &racingRepo{DB: f.db}
	repo.commit = func() {
		_, err := f.bookings.CreateBooking(ctx, validRequest("10:00"))
		require.NoError(t, err)
	}
	reader := NewSlotService(repo, f.cache, schedule.DefaultOptions(), 5*time.Minute, 90, &logger).
		WithClock(func() time.Time { return fixedNow })

	stale, err := reader.GetAvailableSlots(ctx, testDate, 1, nil)
	require.NoError(t, err)
	assert.Contains(t, starts(stale), "10:00")

	_, ok, err := f.cache.GetSlots(ctx, testDate, cacheKey(1, nil))
	require.NoError(t, err)
	assert.False(t, ok)

	fresh, err := f.slots.GetAvailableSlots(ctx, testDate, 1, nil)
	require.NoError(t, err)
	assert.Len(t, fresh, 24)
	assert.NotContains(t, starts(fresh), "10:00")
}

func TestInvalidateHorizon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.slots.GetAvailableSlots(ctx, testDate, 1, nil)
	require.NoError(t, err)
	_, err = f.slots.GetAvailableSlots(ctx, "2030-08-30", 1, nil)
	require.NoError(t, err)

	f.slots.InvalidateHorizon(ctx)

	for _, date := range []string{testDate, "2030-08-30"} {
		_, ok, err := f.cache.GetSlots(ctx, date, cacheKey(1, nil))
		require.NoError(t, err)
		assert.False(t, ok, date)
	}
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "1:", cacheKey(1, nil))
	assert.Equal(t, "3:2,5,9", cacheKey(3, []int64{9, 2, 5}))
}
