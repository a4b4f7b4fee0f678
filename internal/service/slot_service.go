package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"detailbook/internal/domain"
	"detailbook/internal/metrics"
	"detailbook/internal/models"
	"detailbook/internal/schedule"

	"github.com/rs/zerolog"
)

var errCacheDisabled = errors.New("slot cache disabled")

// SlotService computes bookable windows for a civil date on the shared timeline.
type SlotService struct {
	repo           domain.Repository
	cache          domain.SlotCache
	opts           schedule.Options
	cacheTTL       time.Duration
	maxBookingDays int
	now            func() time.Time
	logger         *zerolog.Logger
}

func NewSlotService(repo domain.Repository, cache domain.SlotCache, opts schedule.Options, cacheTTL time.Duration, maxBookingDays int, logger *zerolog.Logger) *SlotService {
	if maxBookingDays <= 0 {
		maxBookingDays = 90
	}
	return &SlotService{
		repo:           repo,
		cache:          cache,
		opts:           opts,
		cacheTTL:       cacheTTL,
		maxBookingDays: maxBookingDays,
		now:            time.Now,
		logger:         logger,
	}
}

// WithClock replaces the wall clock, used to pin "today".
func (s *SlotService) WithClock(now func() time.Time) *SlotService {
	s.now = now
	return s
}

func (s *SlotService) Options() schedule.Options {
	return s.opts
}

// ParseBookableDate parses a YYYY-MM-DD civil date and rejects dates before
// today or beyond the booking horizon. It does not touch the store.
func (s *SlotService) ParseBookableDate(date string) (time.Time, error) {
	day, err := s.opts.ParseDate(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	today, err := s.opts.ParseDate(s.now().In(s.opts.Loc()).Format(models.DateLayout))
	if err != nil {
		return time.Time{}, err
	}
	if day.Before(today) {
		return time.Time{}, fmt.Errorf("%w: date %s is in the past", domain.ErrInvalidInput, date)
	}
	if day.After(today.AddDate(0, 0, s.maxBookingDays)) {
		return time.Time{}, fmt.Errorf("%w: date %s is more than %d days ahead", domain.ErrInvalidInput, date, s.maxBookingDays)
	}
	return day, nil
}

// GetAvailableSlots is the read path: validate the date, consult the cache,
// and fall back to Generate.
func (s *SlotService) GetAvailableSlots(ctx context.Context, date string, serviceID int64, addOnIDs []int64) ([]models.Slot, error) {
	if serviceID <= 0 {
		return nil, fmt.Errorf("%w: serviceId is required", domain.ErrInvalidInput)
	}
	day, err := s.ParseBookableDate(date)
	if err != nil {
		return nil, err
	}
	if err := checkDistinct(addOnIDs); err != nil {
		return nil, err
	}

	key := cacheKey(serviceID, addOnIDs)
	dateKey := day.Format(models.DateLayout)
	if s.cache != nil {
		slots, ok, err := s.cache.GetSlots(ctx, dateKey, key)
		if err != nil {
			s.logger.Warn().Err(err).Str("date", dateKey).Msg("slot cache read failed")
		} else if ok {
			metrics.IncAvailability(true)
			return s.dropPast(slots), nil
		}
	}
	metrics.IncAvailability(false)

	// the generation is taken before the store is read; a write committed
	// after this point moves it and the fill below is discarded
	var generation string
	genErr := errCacheDisabled
	if s.cache != nil {
		generation, genErr = s.cache.Generation(ctx, dateKey)
		if genErr != nil {
			s.logger.Warn().Err(genErr).Str("date", dateKey).Msg("slot cache generation read failed")
		}
	}

	slots, err := s.Generate(ctx, day, serviceID, addOnIDs)
	if err != nil {
		return nil, err
	}

	if genErr == nil {
		if err := s.cache.SetSlots(ctx, dateKey, generation, key, slots, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("date", dateKey).Msg("slot cache write failed")
		}
	}
	return s.dropPast(slots), nil
}

// Generate resolves the service (active or not) and the add-ons, then
// returns every free window of the day. It never reads the cache.
func (s *SlotService) Generate(ctx context.Context, day time.Time, serviceID int64, addOnIDs []int64) ([]models.Slot, error) {
	service, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	addOns, err := resolveAddOns(ctx, s.repo, addOnIDs)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, day, s.footprint(service, addOns))
}

// footprint is the timeline length of one appointment, travel buffer included.
func (s *SlotService) footprint(service *models.Service, addOns []*models.AddOn) time.Duration {
	mins := make([]int, len(addOns))
	for i, a := range addOns {
		mins[i] = a.DurationMin
	}
	return s.opts.TotalDuration(service.DurationMin, mins...)
}

func (s *SlotService) generate(ctx context.Context, day time.Time, length time.Duration) ([]models.Slot, error) {
	candidates := s.opts.Candidates(day, length)
	if len(candidates) == 0 {
		return []models.Slot{}, nil
	}

	dayStart, dayEnd := s.opts.Day(day)
	bookings, err := s.repo.ListBlockingBookings(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}
	blocks, err := s.repo.ListUnavailability(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load unavailability: %w", err)
	}

	busy := make([]models.Interval, 0, len(bookings)+len(blocks))
	for _, b := range bookings {
		busy = append(busy, models.Interval{Start: b.StartAt, End: b.EndAt})
	}
	for _, u := range blocks {
		busy = append(busy, models.Interval{Start: u.StartAt, End: u.EndAt})
	}

	return s.opts.Slots(schedule.Free(candidates, busy)), nil
}

// dropPast removes windows that already started.
func (s *SlotService) dropPast(slots []models.Slot) []models.Slot {
	now := s.now()
	out := make([]models.Slot, 0, len(slots))
	for _, sl := range slots {
		if !sl.Start.Before(now) {
			out = append(out, sl)
		}
	}
	return out
}

// InvalidateRange drops cached slots for every civil date touched by [from, to).
func (s *SlotService) InvalidateRange(ctx context.Context, from, to time.Time) {
	if s.cache == nil {
		return
	}
	for _, date := range s.opts.Dates(from, to) {
		if err := s.cache.InvalidateDate(ctx, date); err != nil {
			s.logger.Warn().Err(err).Str("date", date).Msg("slot cache invalidation failed")
		}
	}
}

// InvalidateHorizon drops cached slots for every bookable date, from today up
// to the booking horizon. Catalog changes alter footprints for all of them.
func (s *SlotService) InvalidateHorizon(ctx context.Context) {
	today, err := s.opts.ParseDate(s.now().In(s.opts.Loc()).Format(models.DateLayout))
	if err != nil {
		s.logger.Warn().Err(err).Msg("slot cache horizon invalidation skipped")
		return
	}
	from, _ := s.opts.Day(today)
	_, to := s.opts.Day(today.AddDate(0, 0, s.maxBookingDays))
	s.InvalidateRange(ctx, from, to)
}

func resolveAddOns(ctx context.Context, repo domain.CatalogRepository, ids []int64) ([]*models.AddOn, error) {
	if err := checkDistinct(ids); err != nil {
		return nil, err
	}
	addOns := make([]*models.AddOn, 0, len(ids))
	for _, id := range ids {
		a, err := repo.GetAddOn(ctx, id)
		if err != nil {
			return nil, err
		}
		addOns = append(addOns, a)
	}
	return addOns, nil
}

func checkDistinct(ids []int64) error {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return fmt.Errorf("%w: add-on id %d", domain.ErrInvalidInput, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: add-on %d selected twice", domain.ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func cacheKey(serviceID int64, addOnIDs []int64) string {
	sorted := append([]int64(nil), addOnIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return fmt.Sprintf("%d:%s", serviceID, models.EncodeIDs(sorted))
}
