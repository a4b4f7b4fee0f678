// Package notify tells staff about booking lifecycle changes over Telegram.
package notify

import (
	"errors"
	"fmt"
	"time"

	"detailbook/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the part of the Telegram bot API the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewBot connects to the Telegram API with the given token.
func NewBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

type Notifier struct {
	sender   Sender
	managers []int64
	loc      *time.Location
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewNotifier(sender Sender, managers []int64, loc *time.Location, logger *zerolog.Logger) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{sender: sender, managers: managers, loc: loc, now: time.Now, logger: logger}
}

// Subscribe registers the notifier for confirmed and cancelled bookings.
func (n *Notifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventBookingConfirmed, n.handle)
	bus.Subscribe(events.EventBookingCancelled, n.handle)
}

func (n *Notifier) handle(event *events.Event) error {
	var payload events.BookingEventPayload
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	return n.Broadcast(n.format(event.Type, &payload))
}

// Broadcast sends text to every manager chat. Failures are logged and joined.
func (n *Notifier) Broadcast(text string) error {
	var errs []error
	for _, managerID := range n.managers {
		msg := tgbotapi.NewMessage(managerID, text)
		if _, err := n.sender.Send(msg); err != nil {
			n.logger.Error().Err(err).Int64("manager_id", managerID).Msg("Failed to notify manager")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) format(eventType string, p *events.BookingEventPayload) string {
	header := "ℹ️ Booking updated"
	switch eventType {
	case events.EventBookingConfirmed:
		header = "✅ Booking confirmed"
	case events.EventBookingCancelled:
		header = "❌ Booking cancelled"
	}

	start := p.StartAt.In(n.loc)
	end := p.EndAt.In(n.loc)
	return fmt.Sprintf(`%s

🧽 Service: %s
📅 When: %s, %s - %s
👤 Customer: %s
📱 Phone: %s
📍 Address: %s
💵 Total: %s
🆔 Booking ID: %d`,
		header,
		p.ServiceName,
		start.Format("Mon 02 Jan 2006"),
		start.Format("3:04 PM"),
		end.Format("3:04 PM"),
		p.CustomerName,
		p.Phone,
		p.Address,
		formatCents(p.TotalPriceCents),
		p.BookingID)
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
