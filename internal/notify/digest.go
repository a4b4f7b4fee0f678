package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"detailbook/internal/models"
	"detailbook/internal/schedule"
)

// BookingLister is satisfied by the booking service.
type BookingLister interface {
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
}

// StartDailyDigest sends managers the next day's confirmed route every day at
// the local clock time at ("HH:MM"). It returns once ctx is done.
func (n *Notifier) StartDailyDigest(ctx context.Context, lister BookingLister, at string) error {
	offset, err := schedule.ParseClock(at)
	if err != nil {
		return fmt.Errorf("invalid digest time: %w", err)
	}

	timer := time.NewTimer(n.untilNext(offset))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			tomorrow := n.now().In(n.loc).AddDate(0, 0, 1)
			if err := n.SendDigest(ctx, lister, tomorrow); err != nil {
				n.logger.Error().Err(err).Msg("digest: send failed")
			}
			timer.Reset(n.untilNext(offset))
		}
	}
}

// SendDigest broadcasts the confirmed bookings of the civil day containing day.
func (n *Notifier) SendDigest(ctx context.Context, lister BookingLister, day time.Time) error {
	local := day.In(n.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, n.loc)
	end := start.AddDate(0, 0, 1)

	bookings, err := lister.GetBookingsByDateRange(ctx, start.UTC(), end.UTC())
	if err != nil {
		return fmt.Errorf("digest: list bookings: %w", err)
	}

	var confirmed []*models.Booking
	for _, b := range bookings {
		if b.Status == models.StatusConfirmed {
			confirmed = append(confirmed, b)
		}
	}
	return n.Broadcast(n.formatDigest(start, confirmed))
}

func (n *Notifier) formatDigest(day time.Time, bookings []*models.Booking) string {
	title := day.Format("Mon 02 Jan 2006")
	if len(bookings) == 0 {
		return "📭 No confirmed bookings for " + title
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🗓 Route for %s (%d)\n", title, len(bookings))
	var total int64
	for i, b := range bookings {
		total += b.TotalPriceCents
		fmt.Fprintf(&sb, "\n%d. %s - %s %s\n   %s, %s\n   %s %s, %s",
			i+1,
			b.StartAt.In(n.loc).Format("3:04 PM"),
			b.EndAt.In(n.loc).Format("3:04 PM"),
			b.ServiceName,
			b.Address.Street,
			b.Address.City,
			b.FirstName,
			b.LastName,
			b.Phone)
	}
	fmt.Fprintf(&sb, "\n\n💵 Total: %s", formatCents(total))
	return sb.String()
}

// untilNext returns the wait until the next occurrence of the local clock offset.
func (n *Notifier) untilNext(offset time.Duration) time.Duration {
	now := n.now().In(n.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, n.loc).Add(offset)
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, n.loc).Add(offset)
	}
	return next.Sub(now)
}
