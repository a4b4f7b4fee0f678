package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"detailbook/internal/domain"
	"detailbook/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSlotCache serves from the primary (Redis) and switches to the
// fallback (memory) after the first primary error. Dates invalidated while
// the primary is down are replayed against it on recovery.
type FailoverSlotCache struct {
	primary  domain.SlotCache
	fallback domain.SlotCache
	logger   *zerolog.Logger

	mu        sync.Mutex
	isDown    bool
	lastCheck time.Time
	missed    map[string]struct{}
	now       func() time.Time
}

func NewFailoverSlotCache(primary, fallback domain.SlotCache, logger *zerolog.Logger) *FailoverSlotCache {
	return &FailoverSlotCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		missed:   make(map[string]struct{}),
		now:      time.Now,
	}
}

// usePrimary reports whether the call should go to the primary, probing it
// again once the recovery interval has passed.
func (r *FailoverSlotCache) usePrimary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isDown {
		return true
	}
	if r.now().Sub(r.lastCheck) > recoveryInterval {
		r.lastCheck = r.now()
		return true
	}
	return false
}

func (r *FailoverSlotCache) markDown(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isDown {
		r.logger.Error().Err(err).Msg("primary slot cache failed, falling back to memory")
	}
	r.isDown = true
	r.lastCheck = r.now()
}

func (r *FailoverSlotCache) markUp(ctx context.Context) {
	r.mu.Lock()
	if !r.isDown {
		r.mu.Unlock()
		return
	}
	missed := r.missed
	r.missed = make(map[string]struct{})
	r.isDown = false
	r.mu.Unlock()

	r.logger.Info().Int("replayed", len(missed)).Msg("primary slot cache recovered")
	for date := range missed {
		if err := r.primary.InvalidateDate(ctx, date); err != nil {
			r.logger.Warn().Err(err).Str("date", date).Msg("failed to replay invalidation")
		}
	}
}

func (r *FailoverSlotCache) IsDown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isDown
}

func (r *FailoverSlotCache) GetSlots(ctx context.Context, date, key string) ([]models.Slot, bool, error) {
	if r.usePrimary() {
		r.mu.Lock()
		_, stale := r.missed[date]
		r.mu.Unlock()
		if !stale {
			slots, ok, err := r.primary.GetSlots(ctx, date, key)
			if err == nil {
				r.markUp(ctx)
				return slots, ok, nil
			}
			r.markDown(err)
		}
	}
	return r.fallback.GetSlots(ctx, date, key)
}

// Generation combines the fallback generation with the primary one as
// "local/primary". The fallback is invalidated on every write, so its part
// stays meaningful while the primary is down.
func (r *FailoverSlotCache) Generation(ctx context.Context, date string) (string, error) {
	local, err := r.fallback.Generation(ctx, date)
	if err != nil {
		return "", err
	}
	if r.usePrimary() {
		primary, err := r.primary.Generation(ctx, date)
		if err == nil {
			r.markUp(ctx)
			return local + "/" + primary, nil
		}
		r.markDown(err)
	}
	return local, nil
}

func (r *FailoverSlotCache) SetSlots(ctx context.Context, date, generation, key string, slots []models.Slot, ttl time.Duration) error {
	local, primary, hasPrimary := strings.Cut(generation, "/")
	if hasPrimary && r.usePrimary() {
		err := r.primary.SetSlots(ctx, date, primary, key, slots, ttl)
		if err == nil {
			r.markUp(ctx)
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetSlots(ctx, date, local, key, slots, ttl)
}

// InvalidateDate always clears the fallback so it never serves data older
// than the last write, whichever side is active.
func (r *FailoverSlotCache) InvalidateDate(ctx context.Context, date string) error {
	fallbackErr := r.fallback.InvalidateDate(ctx, date)

	if r.usePrimary() {
		err := r.primary.InvalidateDate(ctx, date)
		if err == nil {
			r.markUp(ctx)
			return fallbackErr
		}
		r.markDown(err)
	}

	r.mu.Lock()
	r.missed[date] = struct{}{}
	r.mu.Unlock()
	return fallbackErr
}
