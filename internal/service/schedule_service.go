package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"detailbook/internal/domain"
	"detailbook/internal/events"
	"detailbook/internal/models"

	"github.com/rs/zerolog"
)

// ScheduleService lets staff block and unblock time on the shared timeline.
type ScheduleService struct {
	repo     domain.Repository
	slots    *SlotService
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewScheduleService(repo domain.Repository, slots *SlotService, eventBus domain.EventPublisher, logger *zerolog.Logger) *ScheduleService {
	return &ScheduleService{repo: repo, slots: slots, eventBus: eventBus, logger: logger}
}

func (s *ScheduleService) ListUnavailability(ctx context.Context, from, to time.Time) ([]*models.Unavailability, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: range end must be after start", domain.ErrInvalidInput)
	}
	return s.repo.ListUnavailability(ctx, from, to)
}

// BlockTime stores a new unavailability window. Existing bookings inside the
// window are kept; they are only reported in the log.
func (s *ScheduleService) BlockTime(ctx context.Context, u *models.Unavailability) error {
	if u.StartAt.IsZero() || u.EndAt.IsZero() || !u.StartAt.Before(u.EndAt) {
		return fmt.Errorf("%w: unavailability needs start before end", domain.ErrInvalidInput)
	}
	u.Reason = strings.TrimSpace(u.Reason)

	if err := s.repo.CreateUnavailability(ctx, u); err != nil {
		return err
	}

	if overlapping, err := s.repo.ListBlockingBookings(ctx, u.StartAt, u.EndAt); err == nil && len(overlapping) > 0 {
		s.logger.Warn().Int64("unavailability_id", u.ID).Int("bookings", len(overlapping)).Msg("blocked window overlaps existing bookings")
	}

	s.slots.InvalidateRange(ctx, u.StartAt, u.EndAt)
	s.publish(u, false)
	return nil
}

func (s *ScheduleService) UnblockTime(ctx context.Context, id int64) error {
	u, err := s.repo.DeleteUnavailability(ctx, id)
	if err != nil {
		return err
	}
	s.slots.InvalidateRange(ctx, u.StartAt, u.EndAt)
	s.publish(u, true)
	return nil
}

func (s *ScheduleService) publish(u *models.Unavailability, removed bool) {
	if s.eventBus == nil {
		return
	}
	payload := events.ScheduleEventPayload{UnavailabilityID: u.ID, StartAt: u.StartAt, EndAt: u.EndAt, Removed: removed}
	if err := s.eventBus.PublishJSON(events.EventScheduleChanged, payload); err != nil {
		s.logger.Error().Err(err).Int64("unavailability_id", u.ID).Msg("publish event error")
	}
}
