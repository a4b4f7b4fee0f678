package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"detailbook/internal/domain"
	"detailbook/internal/events"
	"detailbook/internal/metrics"
	"detailbook/internal/models"
	"detailbook/internal/schedule"

	"github.com/rs/zerolog"
)

const maxTransitionAttempts = 3

type BookingService struct {
	repo       domain.Repository
	slots      *SlotService
	eventBus   domain.EventPublisher
	syncWorker domain.SyncWorker
	payments   domain.PaymentGateway
	logger     *zerolog.Logger
}

func NewBookingService(
	repo domain.Repository,
	slots *SlotService,
	eventBus domain.EventPublisher,
	syncWorker domain.SyncWorker,
	payments domain.PaymentGateway,
	logger *zerolog.Logger,
) *BookingService {
	return &BookingService{
		repo:       repo,
		slots:      slots,
		eventBus:   eventBus,
		syncWorker: syncWorker,
		payments:   payments,
		logger:     logger,
	}
}

// validateRequest checks everything that needs no data store access and
// returns the requested start instant.
func (s *BookingService) validateRequest(req *models.BookingRequest) (time.Time, time.Time, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Address.Street = strings.TrimSpace(req.Address.Street)
	req.Address.City = strings.TrimSpace(req.Address.City)

	if err := validateStruct(req); err != nil {
		return time.Time{}, time.Time{}, err
	}

	day, err := s.slots.ParseBookableDate(req.Date)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	offset, err := schedule.ParseClock(req.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	opts := s.slots.Options()
	start := opts.At(day, int(offset/time.Hour), int((offset%time.Hour)/time.Minute))
	return day, start, nil
}

// CreateBooking validates the request against the live timeline and commits
// it in pending_payment status. The first failing check wins.
func (s *BookingService) CreateBooking(ctx context.Context, req *models.BookingRequest) (*models.Booking, error) {
	day, start, err := s.validateRequest(req)
	if err != nil {
		metrics.IncBookingRejected("invalid_input")
		return nil, err
	}

	service, err := s.repo.GetService(ctx, req.ServiceID)
	if err != nil {
		metrics.IncBookingRejected("service")
		return nil, err
	}
	if !service.IsActive {
		metrics.IncBookingRejected("service")
		return nil, fmt.Errorf("%w: service %d is not offered", domain.ErrInactive, service.ID)
	}

	addOns, err := resolveAddOns(ctx, s.repo, req.AddOnIDs)
	if err != nil {
		metrics.IncBookingRejected("add_on")
		return nil, err
	}
	for _, a := range addOns {
		if !a.IsActive {
			metrics.IncBookingRejected("add_on")
			return nil, fmt.Errorf("%w: add-on %d is not offered", domain.ErrInactive, a.ID)
		}
	}

	length := s.slots.footprint(service, addOns)
	slots, err := s.slots.generate(ctx, day, length)
	if err != nil {
		return nil, err
	}
	if !containsStart(s.slots.dropPast(slots), start) {
		metrics.IncBookingRejected("slot_unavailable")
		return nil, domain.ErrSlotUnavailable
	}

	total := service.PriceCents
	for _, a := range addOns {
		total += a.PriceCents
	}

	booking := &models.Booking{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Phone:           req.Phone,
		ServiceID:       service.ID,
		ServiceName:     service.Name,
		AddOnIDs:        req.AddOnIDs,
		StartAt:         start,
		EndAt:           start.Add(length),
		Status:          models.StatusPendingPayment,
		TotalPriceCents: total,
		Address:         req.Address,
		Notes:           strings.TrimSpace(req.Notes),
	}

	if err := s.repo.CreateBookingIfFree(ctx, booking); err != nil {
		if errors.Is(err, domain.ErrSlotUnavailable) {
			metrics.IncBookingRejected("slot_unavailable")
			s.logger.Info().Time("start", start).Int64("service_id", service.ID).Msg("slot taken by a concurrent booking")
		}
		return nil, err
	}

	metrics.IncBookingCreated()
	s.slots.InvalidateRange(ctx, booking.StartAt, booking.EndAt)
	s.publishEvent(events.EventBookingCreated, booking, "customer")

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("service_id", service.ID).
		Time("start", booking.StartAt).
		Time("end", booking.EndAt).
		Msg("booking created")

	return booking, nil
}

func containsStart(slots []models.Slot, start time.Time) bool {
	for _, sl := range slots {
		if sl.Start.Equal(start) {
			return true
		}
	}
	return false
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: range end must be after start", domain.ErrInvalidInput)
	}
	return s.repo.GetBookingsByDateRange(ctx, start, end)
}

// CancelBooking frees the booking's interval. Final bookings cannot be cancelled.
func (s *BookingService) CancelBooking(ctx context.Context, id int64) (*models.Booking, error) {
	var wasConfirmed bool
	booking, err := s.transition(ctx, id, func(b *models.Booking) (string, error) {
		if models.IsFinalStatus(b.Status) {
			return "", fmt.Errorf("%w: booking %d is already %s", domain.ErrInvalidInput, b.ID, b.Status)
		}
		wasConfirmed = b.Status == models.StatusConfirmed
		return models.StatusCancelled, nil
	})
	if err != nil {
		return nil, err
	}

	s.slots.InvalidateRange(ctx, booking.StartAt, booking.EndAt)
	s.publishEvent(events.EventBookingCancelled, booking, "customer")
	if wasConfirmed || booking.CalendarEventID != "" {
		s.enqueueSync(ctx, booking, models.SyncTaskDeleteEvent)
	}
	return booking, nil
}

// StartPayment opens a card payment for a booking awaiting payment.
func (s *BookingService) StartPayment(ctx context.Context, id int64) (*models.PaymentIntent, error) {
	if s.payments == nil {
		return nil, errors.New("payments are not configured")
	}

	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.StatusPendingPayment {
		return nil, fmt.Errorf("%w: booking %d is %s, not awaiting payment", domain.ErrInvalidInput, id, booking.Status)
	}

	intent, err := s.payments.CreatePaymentIntent(ctx, booking)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	if err := s.repo.SetPaymentID(ctx, id, intent.ID); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("booking_id", id).Str("payment_id", intent.ID).Msg("payment started")
	return intent, nil
}

// HandlePaymentEvent applies a verified processor webhook. Replays and events
// for bookings already out of pending_payment are ignored.
func (s *BookingService) HandlePaymentEvent(ctx context.Context, event *models.PaymentEvent) error {
	var target, eventType string
	switch event.Type {
	case models.PaymentEventSucceeded:
		target, eventType = models.StatusConfirmed, events.EventBookingConfirmed
	case models.PaymentEventFailed:
		target, eventType = models.StatusPaymentFailed, events.EventBookingPaymentFailed
	default:
		s.logger.Debug().Str("type", event.Type).Msg("ignoring payment event")
		return nil
	}

	id, err := s.bookingIDForPayment(ctx, event)
	if err != nil {
		return err
	}

	skipped := false
	booking, err := s.transition(ctx, id, func(b *models.Booking) (string, error) {
		if b.Status != models.StatusPendingPayment {
			skipped = true
			return "", nil
		}
		return target, nil
	})
	if err != nil {
		return err
	}
	if skipped {
		s.logger.Info().Int64("booking_id", id).Str("status", booking.Status).Str("event", event.Type).Msg("payment event ignored")
		return nil
	}

	s.publishEvent(eventType, booking, "payments")
	switch target {
	case models.StatusConfirmed:
		s.enqueueSync(ctx, booking, models.SyncTaskUpsertEvent)
	case models.StatusPaymentFailed:
		s.slots.InvalidateRange(ctx, booking.StartAt, booking.EndAt)
	}
	return nil
}

func (s *BookingService) bookingIDForPayment(ctx context.Context, event *models.PaymentEvent) (int64, error) {
	booking, err := s.repo.GetBookingByPaymentID(ctx, event.PaymentIntentID)
	if err == nil {
		return booking.ID, nil
	}
	if errors.Is(err, domain.ErrNotFound) && event.BookingID > 0 {
		return event.BookingID, nil
	}
	return 0, err
}

// transition re-reads the booking and applies decide under the optimistic
// version check, retrying when another writer got there first. An empty
// target status leaves the booking unchanged.
func (s *BookingService) transition(ctx context.Context, id int64, decide func(b *models.Booking) (string, error)) (*models.Booking, error) {
	var lastErr error
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		booking, err := s.repo.GetBooking(ctx, id)
		if err != nil {
			return nil, err
		}
		status, err := decide(booking)
		if err != nil {
			return nil, err
		}
		if status == "" {
			return booking, nil
		}

		err = s.repo.UpdateBookingStatusWithVersion(ctx, id, booking.Version, status)
		if err == nil {
			booking.Status = status
			booking.Version++
			metrics.IncBookingTransition(status)
			return booking, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, changedBy string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:       booking.ID,
		ServiceID:       booking.ServiceID,
		ServiceName:     booking.ServiceName,
		CustomerName:    booking.CustomerName(),
		Email:           booking.Email,
		Phone:           booking.Phone,
		Address:         booking.Address.String(),
		Status:          booking.Status,
		StartAt:         booking.StartAt,
		EndAt:           booking.EndAt,
		TotalPriceCents: booking.TotalPriceCents,
		ChangedBy:       changedBy,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, booking *models.Booking, taskType string) {
	if s.syncWorker == nil {
		return
	}
	if err := s.syncWorker.EnqueueTask(ctx, taskType, booking.ID); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Str("task", taskType).Msg("calendar enqueue error")
	}
}
