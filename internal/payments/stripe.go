// Package payments talks to the card processor.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"detailbook/internal/config"
	"detailbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

const bookingMetadataKey = "booking_id"

type StripeGateway struct {
	api           *client.API
	webhookSecret string
	currency      string
	logger        *zerolog.Logger
}

// NewStripeGateway builds a gateway. backends may be nil to use the live API.
func NewStripeGateway(cfg config.PaymentsConfig, backends *stripe.Backends, logger *zerolog.Logger) *StripeGateway {
	return &StripeGateway{
		api:           client.New(cfg.StripeSecretKey, backends),
		webhookSecret: cfg.StripeWebhookSecret,
		currency:      cfg.Currency,
		logger:        logger,
	}
}

// CreatePaymentIntent opens a card payment for the booking total. The booking
// id is both the idempotency key and intent metadata so retries reuse one intent.
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, booking *models.Booking) (*models.PaymentIntent, error) {
	if booking.TotalPriceCents <= 0 {
		return nil, fmt.Errorf("booking %d has nothing to charge", booking.ID)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(booking.TotalPriceCents),
		Currency: stripe.String(g.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description:  stripe.String(fmt.Sprintf("%s on %s", booking.ServiceName, booking.StartAt.Format(models.DateLayout))),
		ReceiptEmail: stripe.String(booking.Email),
	}
	params.Context = ctx
	params.AddMetadata(bookingMetadataKey, strconv.FormatInt(booking.ID, 10))
	params.SetIdempotencyKey(fmt.Sprintf("booking-%d-v%d", booking.ID, booking.Version))

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, err
	}

	g.logger.Debug().Int64("booking_id", booking.ID).Str("payment_id", pi.ID).Msg("payment intent created")
	return &models.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and extracts the intent
// the event refers to. Events about other objects come back with only ID and Type.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*models.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &models.PaymentEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to decode event object: %w", err)
	}
	if pi.Object != "payment_intent" {
		return out, nil
	}

	out.PaymentIntentID = pi.ID
	if raw, ok := pi.Metadata[bookingMetadataKey]; ok {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			out.BookingID = id
		}
	}
	return out, nil
}
