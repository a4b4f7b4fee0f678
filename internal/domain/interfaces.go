package domain

import (
	"context"
	"time"

	"detailbook/internal/models"
)

type CatalogRepository interface {
	GetService(ctx context.Context, id int64) (*models.Service, error)
	ListServices(ctx context.Context, activeOnly bool) ([]*models.Service, error)
	GetAddOn(ctx context.Context, id int64) (*models.AddOn, error)
	ListAddOns(ctx context.Context, activeOnly bool) ([]*models.AddOn, error)
	UpsertService(ctx context.Context, service *models.Service) error
	UpsertAddOn(ctx context.Context, addOn *models.AddOn) error
	SyncCatalog(ctx context.Context, catalog *models.Catalog) error
}

// TimelineRepository reads and edits the commitments that occupy the shared schedule.
type TimelineRepository interface {
	ListBlockingBookings(ctx context.Context, from, to time.Time) ([]*models.Booking, error)
	ListUnavailability(ctx context.Context, from, to time.Time) ([]*models.Unavailability, error)
	CreateUnavailability(ctx context.Context, u *models.Unavailability) error
	DeleteUnavailability(ctx context.Context, id int64) (*models.Unavailability, error)
}

type BookingRepository interface {
	// CreateBookingIfFree re-runs the overlap scan and inserts in one serialized
	// transaction. Returns ErrSlotUnavailable when the interval is taken.
	CreateBookingIfFree(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingByPaymentID(ctx context.Context, paymentID string) (*models.Booking, error)
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id int64, version int64, status string) error
	SetPaymentID(ctx context.Context, id int64, paymentID string) error
	SetCalendarEventID(ctx context.Context, id int64, eventID string) error
}

type Repository interface {
	CatalogRepository
	TimelineRepository
	BookingRepository
}

// SlotCache stores computed slot lists grouped by civil date. Every
// InvalidateDate moves the date's generation; SetSlots stores nothing when the
// generation it was given is no longer current.
type SlotCache interface {
	GetSlots(ctx context.Context, date, key string) ([]models.Slot, bool, error)
	Generation(ctx context.Context, date string) (string, error)
	SetSlots(ctx context.Context, date, generation, key string, slots []models.Slot, ttl time.Duration) error
	InvalidateDate(ctx context.Context, date string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID int64) error
}

type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, booking *models.Booking) (*models.PaymentIntent, error)
	ParseWebhook(payload []byte, signature string) (*models.PaymentEvent, error)
}

type CalendarWriter interface {
	UpsertEvent(ctx context.Context, booking *models.Booking) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

type SlotService interface {
	GetAvailableSlots(ctx context.Context, date string, serviceID int64, addOnIDs []int64) ([]models.Slot, error)
}

type BookingService interface {
	CreateBooking(ctx context.Context, req *models.BookingRequest) (*models.Booking, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	CancelBooking(ctx context.Context, id int64) (*models.Booking, error)
	StartPayment(ctx context.Context, id int64) (*models.PaymentIntent, error)
	HandlePaymentEvent(ctx context.Context, event *models.PaymentEvent) error
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
}

type CatalogService interface {
	ListServices(ctx context.Context) ([]*models.Service, error)
	ListAddOns(ctx context.Context) ([]*models.AddOn, error)
	Seed(ctx context.Context, catalog *models.Catalog) error
}

type ScheduleService interface {
	ListUnavailability(ctx context.Context, from, to time.Time) ([]*models.Unavailability, error)
	BlockTime(ctx context.Context, u *models.Unavailability) error
	UnblockTime(ctx context.Context, id int64) error
}
