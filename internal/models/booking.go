package models

import (
	"strconv"
	"strings"
	"time"
)

type Booking struct {
	ID              int64     `json:"id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	ServiceID       int64     `json:"service_id"`
	ServiceName     string    `json:"service_name,omitempty"`
	AddOnIDs        []int64   `json:"add_on_ids"`
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at"`
	Status          string    `json:"status"` // pending, pending_payment, confirmed, cancelled, payment_failed
	TotalPriceCents int64     `json:"total_price_cents"`
	PaymentID       string    `json:"payment_id,omitempty"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	Address         Address   `json:"address"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Version         int64     `json:"version"`
}

type Address struct {
	Street string `json:"street" validate:"required,max=200"`
	City   string `json:"city" validate:"required,max=100"`
	State  string `json:"state,omitempty" validate:"max=50"`
	Zip    string `json:"zip,omitempty" validate:"max=20"`
}

func (a Address) String() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, a.City, a.State, a.Zip} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// CustomerName returns "First Last" with empty parts dropped.
func (b *Booking) CustomerName() string {
	return strings.TrimSpace(b.FirstName + " " + b.LastName)
}

// Blocking reports whether the booking still occupies its interval on the timeline.
func (b *Booking) Blocking() bool {
	return IsBlockingStatus(b.Status)
}

// EncodeIDs serializes an ordered id list as "1,2,3" for storage.
func EncodeIDs(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// DecodeIDs is the inverse of EncodeIDs. Malformed entries are skipped.
func DecodeIDs(s string) []int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	fields := strings.Split(s, ",")
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
