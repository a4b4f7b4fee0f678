package models

// BookingRequest is the customer's submission for a new booking.
type BookingRequest struct {
	ServiceID int64   `json:"service_id" validate:"required,gt=0"`
	AddOnIDs  []int64 `json:"add_on_ids" validate:"max=20,unique,dive,gt=0"`
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"max=100"`
	Email     string  `json:"email" validate:"required,email,max=254"`
	Phone     string  `json:"phone" validate:"required,phone"`
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`  // business time zone
	StartTime string  `json:"start_time" validate:"required,datetime=15:04"` // business time zone
	Address   Address `json:"address"`
	Notes     string  `json:"notes,omitempty" validate:"max=2000"`
}

const (
	PaymentEventSucceeded = "payment_intent.succeeded"
	PaymentEventFailed    = "payment_intent.payment_failed"
)

type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

// PaymentEvent is a verified processor webhook reduced to what the booking flow needs.
type PaymentEvent struct {
	ID              string
	Type            string
	PaymentIntentID string
	BookingID       int64
}
