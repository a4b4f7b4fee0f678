package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"detailbook/internal/database"
	"detailbook/internal/domain"
	"detailbook/internal/events"
	"detailbook/internal/models"
	"detailbook/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateBooking_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var created []events.BookingEventPayload
	f.bus.Subscribe(events.EventBookingCreated, func(e *events.Event) error {
		var p events.BookingEventPayload
		require.NoError(t, e.Decode(&p))
		created = append(created, p)
		return nil
	})

	req := validRequest("10:00")
	req.AddOnIDs = []int64{10, 11}
	req.Notes = "  gate code 1234 "

	booking, err := f.bookings.CreateBooking(ctx, req)
	require.NoError(t, err)

	assert.NotZero(t, booking.ID)
	assert.Equal(t, models.StatusPendingPayment, booking.Status)
	assert.Equal(t, utc(10, 0), booking.StartAt)
	assert.Equal(t, utc(12, 15), booking.EndAt)
	assert.Equal(t, int64(8000+1500+2500), booking.TotalPriceCents)
	assert.Equal(t, []int64{10, 11}, booking.AddOnIDs)
	assert.Equal(t, "gate code 1234", booking.Notes)
	assert.Empty(t, booking.PaymentID)
	assert.Empty(t, booking.CalendarEventID)

	stored, err := f.db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.EndAt, stored.EndAt)
	assert.Equal(t, "Exterior Wash", stored.ServiceName)
	assert.Equal(t, []int64{10, 11}, stored.AddOnIDs)

	require.Len(t, created, 1)
	assert.Equal(t, booking.ID, created[0].BookingID)
	assert.Equal(t, "Dana Reyes", created[0].CustomerName)
	assert.Equal(t, "customer", created[0].ChangedBy)
}

func TestCreateBooking_InvalidInputTouchesNoStore(t *testing.T) {
	logger := zerolog.Nop()
	repo := new(mockRepo)
	slots := NewSlotService(repo, nil, schedule.DefaultOptions(), time.Minute, 90, &logger).
		WithClock(func() time.Time { return fixedNow })
	svc := NewBookingService(repo, slots, nil, nil, nil, &logger)

	req := validRequest("10:00")
	req.Date = "2030-05-31"

	booking, err := svc.CreateBooking(context.Background(), req)
	assert.Nil(t, booking)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	repo.AssertExpectations(t)
	assert.Empty(t, repo.Calls)
}

func TestCreateBooking_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(r *models.BookingRequest)
	}{
		{"missing first name", func(r *models.BookingRequest) { r.FirstName = "  " }},
		{"bad email", func(r *models.BookingRequest) { r.Email = "dana.example.com" }},
		{"bad phone", func(r *models.BookingRequest) { r.Phone = "call me" }},
		{"short phone", func(r *models.BookingRequest) { r.Phone = "555-01" }},
		{"missing street", func(r *models.BookingRequest) { r.Address.Street = "" }},
		{"missing city", func(r *models.BookingRequest) { r.Address.City = "" }},
		{"malformed date", func(r *models.BookingRequest) { r.Date = "03/06/2030" }},
		{"malformed time", func(r *models.BookingRequest) { r.StartTime = "25:00" }},
		{"missing service", func(r *models.BookingRequest) { r.ServiceID = 0 }},
		{"duplicate add-ons", func(r *models.BookingRequest) { r.AddOnIDs = []int64{10, 10} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest("10:00")
			tt.mutate(req)
			_, err := f.bookings.CreateBooking(ctx, req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestCreateBooking_CatalogErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		serviceID int64
		addOnIDs  []int64
		want      error
	}{
		{"unknown service", 99, nil, domain.ErrNotFound},
		{"inactive service", 2, nil, domain.ErrInactive},
		{"unknown add-on", 1, []int64{10, 99}, domain.ErrNotFound},
		{"inactive add-on", 1, []int64{12}, domain.ErrInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest("10:00")
			req.ServiceID = tt.serviceID
			req.AddOnIDs = tt.addOnIDs
			_, err := f.bookings.CreateBooking(ctx, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateBooking_SlotRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.bookings.CreateBooking(ctx, validRequest("10:05"))
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable, "off-grid start")

	_, err = f.bookings.CreateBooking(ctx, validRequest("16:45"))
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable, "runs past close")

	_, err = f.bookings.CreateBooking(ctx, validRequest("16:30"))
	assert.NoError(t, err, "ends exactly at close")

	_, err = f.bookings.CreateBooking(ctx, validRequest("08:00"))
	require.NoError(t, err)
	_, err = f.bookings.CreateBooking(ctx, validRequest("09:00"))
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable, "overlaps 08:00-09:30")
	_, err = f.bookings.CreateBooking(ctx, validRequest("09:30"))
	assert.NoError(t, err, "adjacent bookings do not conflict")
}

func TestCreateBooking_StartedSlotToday(t *testing.T) {
	f := newFixture(t)

	req := validRequest("08:00")
	req.Date = "2030-06-01"
	_, err := f.bookings.CreateBooking(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
}

func TestCreateBooking_BlockedWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.CreateUnavailability(ctx, &models.Unavailability{StartAt: utc(14, 0), EndAt: utc(15, 0)}))

	_, err := f.bookings.CreateBooking(ctx, validRequest("13:00"))
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
	_, err = f.bookings.CreateBooking(ctx, validRequest("12:30"))
	assert.NoError(t, err)
}

func TestCreateBooking_EverySlotIsCommittable(t *testing.T) {
	addOns := []int64{11}
	f := newFixture(t)
	ctx := context.Background()

	slots, err := f.slots.GetAvailableSlots(ctx, testDate, 1, addOns)
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	for _, s := range []models.Slot{slots[0], slots[len(slots)/2], slots[len(slots)-1]} {
		other := newFixture(t)
		req := validRequest(s.StartTime)
		req.AddOnIDs = addOns
		booking, err := other.bookings.CreateBooking(ctx, req)
		require.NoError(t, err, s.Label)
		assert.Equal(t, s.Start, booking.StartAt)
		assert.Equal(t, s.End, booking.EndAt)
	}
}

func TestCreateBooking_ConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const attempts = 2
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		errs      []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.bookings.CreateBooking(ctx, validRequest("10:00"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	require.Len(t, errs, attempts-1)
	for _, err := range errs {
		assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
	}

	blocking, err := f.db.ListBlockingBookings(ctx, utc(0, 0), utc(23, 59))
	require.NoError(t, err)
	assert.Len(t, blocking, 1)
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booking, err := f.bookings.CreateBooking(ctx, validRequest("10:00"))
	require.NoError(t, err)

	var cancelled int
	f.bus.Subscribe(events.EventBookingCancelled, func(*events.Event) error {
		cancelled++
		return nil
	})

	got, err := f.bookings.CancelBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, booking.Version+1, got.Version)
	assert.Equal(t, 1, cancelled)

	slots, err := f.slots.GetAvailableSlots(ctx, testDate, 1, nil)
	require.NoError(t, err)
	assert.Len(t, slots, 35)

	_, err = f.bookings.CancelBooking(ctx, booking.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.bookings.CancelBooking(ctx, 4242)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancelBooking_RetriesOnVersionConflict(t *testing.T) {
	logger := zerolog.Nop()
	repo := new(mockRepo)
	slots := NewSlotService(repo, nil, schedule.DefaultOptions(), time.Minute, 90, &logger)
	svc := NewBookingService(repo, slots, nil, nil, nil, &logger)
	ctx := context.Background()

	repo.On("GetBooking", ctx, int64(7)).
		Return(&models.Booking{ID: 7, Status: models.StatusPendingPayment, Version: 1}, nil).Once()
	repo.On("GetBooking", ctx, int64(7)).
		Return(&models.Booking{ID: 7, Status: models.StatusPendingPayment, Version: 2}, nil).Once()
	repo.On("UpdateBookingStatusWithVersion", ctx, int64(7), int64(1), models.StatusCancelled).
		Return(database.ErrConcurrentModification).Once()
	repo.On("UpdateBookingStatusWithVersion", ctx, int64(7), int64(2), models.StatusCancelled).
		Return(nil).Once()

	got, err := svc.CancelBooking(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, int64(3), got.Version)
	repo.AssertExpectations(t)
}

func TestCancelBooking_GivesUpAfterRepeatedConflicts(t *testing.T) {
	logger := zerolog.Nop()
	repo := new(mockRepo)
	slots := NewSlotService(repo, nil, schedule.DefaultOptions(), time.Minute, 90, &logger)
	svc := NewBookingService(repo, slots, nil, nil, nil, &logger)
	ctx := context.Background()

	repo.On("GetBooking", ctx, int64(7)).
		Return(&models.Booking{ID: 7, Status: models.StatusConfirmed, Version: 1}, nil).Times(maxTransitionAttempts)
	repo.On("UpdateBookingStatusWithVersion", ctx, int64(7), int64(1), models.StatusCancelled).
		Return(database.ErrConcurrentModification).Times(maxTransitionAttempts)

	_, err := svc.CancelBooking(ctx, 7)
	assert.ErrorIs(t, err, domain.ErrConflict)
	repo.AssertExpectations(t)
}

func paymentFixture(t *testing.T) (*fixture, *BookingService, *mockGateway, *mockSyncWorker) {
	t.Helper()
	f := newFixture(t)
	logger := zerolog.Nop()
	gateway := new(mockGateway)
	worker := new(mockSyncWorker)
	svc := NewBookingService(f.db, f.slots, f.bus, worker, gateway, &logger)
	return f, svc, gateway, worker
}

func TestPaymentFlow_Succeeded(t *testing.T) {
	f, svc, gateway, worker := paymentFixture(t)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, validRequest("10:00"))
	require.NoError(t, err)

	gateway.On("CreatePaymentIntent", ctx, mock.MatchedBy(func(b *models.Booking) bool {
		return b.ID == booking.ID && b.TotalPriceCents == 8000
	})).Return(&models.PaymentIntent{ID: "pi_123", ClientSecret: "secret", AmountCents: 8000, Currency: "usd"}, nil).Once()

	intent, err := svc.StartPayment(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)

	stored, err := f.db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_123", stored.PaymentID)

	var confirmed int
	f.bus.Subscribe(events.EventBookingConfirmed, func(*events.Event) error {
		confirmed++
		return nil
	})
	worker.On("EnqueueTask", mock.Anything, models.SyncTaskUpsertEvent, booking.ID).Return(nil).Once()

	event := &models.PaymentEvent{ID: "evt_1", Type: models.PaymentEventSucceeded, PaymentIntentID: "pi_123"}
	require.NoError(t, svc.HandlePaymentEvent(ctx, event))
	require.NoError(t, svc.HandlePaymentEvent(ctx, event), "replayed webhook")

	stored, err = f.db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
	assert.Equal(t, 1, confirmed)

	_, err = svc.StartPayment(ctx, booking.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	worker.On("EnqueueTask", mock.Anything, models.SyncTaskDeleteEvent, booking.ID).Return(nil).Once()
	_, err = svc.CancelBooking(ctx, booking.ID)
	require.NoError(t, err)

	gateway.AssertExpectations(t)
	worker.AssertExpectations(t)
}

func TestPaymentFlow_Failed(t *testing.T) {
	f, svc, _, worker := paymentFixture(t)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, validRequest("10:00"))
	require.NoError(t, err)

	event := &models.PaymentEvent{Type: models.PaymentEventFailed, PaymentIntentID: "pi_unknown", BookingID: booking.ID}
	require.NoError(t, svc.HandlePaymentEvent(ctx, event))

	stored, err := f.db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaymentFailed, stored.Status)

	_, err = svc.CreateBooking(ctx, validRequest("10:00"))
	assert.NoError(t, err, "failed payment frees the slot")
	worker.AssertNotCalled(t, "EnqueueTask", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandlePaymentEvent_Unrelated(t *testing.T) {
	_, svc, _, _ := paymentFixture(t)
	ctx := context.Background()

	assert.NoError(t, svc.HandlePaymentEvent(ctx, &models.PaymentEvent{Type: "charge.refunded"}))

	err := svc.HandlePaymentEvent(ctx, &models.PaymentEvent{Type: models.PaymentEventSucceeded, PaymentIntentID: "pi_missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStartPayment_NotConfigured(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booking, err := f.bookings.CreateBooking(ctx, validRequest("10:00"))
	require.NoError(t, err)

	_, err = f.bookings.StartPayment(ctx, booking.ID)
	assert.Error(t, err)
}

func TestStartPayment_GatewayError(t *testing.T) {
	f, svc, gateway, _ := paymentFixture(t)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, validRequest("10:00"))
	require.NoError(t, err)

	gateway.On("CreatePaymentIntent", ctx, mock.Anything).Return(nil, errors.New("card processor down")).Once()
	_, err = svc.StartPayment(ctx, booking.ID)
	assert.ErrorContains(t, err, "card processor down")

	stored, err := f.db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.PaymentID)
}

func TestGetBookingsByDateRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.bookings.CreateBooking(ctx, validRequest("08:00"))
	require.NoError(t, err)
	_, err = f.bookings.CreateBooking(ctx, validRequest("12:00"))
	require.NoError(t, err)

	got, err := f.bookings.GetBookingsByDateRange(ctx, utc(0, 0), utc(10, 0))
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = f.bookings.GetBookingsByDateRange(ctx, utc(10, 0), utc(10, 0))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
