package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"detailbook/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const bookingProperty = "booking_id"

// CalendarService mirrors confirmed bookings into one Google Calendar.
type CalendarService struct {
	service    *calendar.Service
	calendarID string
	loc        *time.Location
}

func NewCalendarService(ctx context.Context, credentialsFile, calendarID string, loc *time.Location) (*CalendarService, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := calendar.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}
	return newCalendarService(srv, calendarID, loc), nil
}

func newCalendarService(srv *calendar.Service, calendarID string, loc *time.Location) *CalendarService {
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarService{service: srv, calendarID: calendarID, loc: loc}
}

// TestConnection проверяет доступ к календарю
func (s *CalendarService) TestConnection(ctx context.Context) error {
	if _, err := s.service.Calendars.Get(s.calendarID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// UpsertEvent writes the booking as a calendar event and returns its id. An
// event that was removed on the calendar side is recreated.
func (s *CalendarService) UpsertEvent(ctx context.Context, booking *models.Booking) (string, error) {
	event := s.bookingEvent(booking)

	if booking.CalendarEventID != "" {
		updated, err := s.service.Events.Update(s.calendarID, booking.CalendarEventID, event).Context(ctx).Do()
		if err == nil {
			return updated.Id, nil
		}
		if !isGone(err) {
			return "", fmt.Errorf("unable to update event %s: %w", booking.CalendarEventID, err)
		}
	}

	created, err := s.service.Events.Insert(s.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to insert event: %w", err)
	}
	return created.Id, nil
}

// DeleteEvent removes the event. Missing events count as deleted.
func (s *CalendarService) DeleteEvent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	err := s.service.Events.Delete(s.calendarID, eventID).Context(ctx).Do()
	if err != nil && !isGone(err) {
		return fmt.Errorf("unable to delete event %s: %w", eventID, err)
	}
	return nil
}

func (s *CalendarService) bookingEvent(b *models.Booking) *calendar.Event {
	description := []string{
		"Customer: " + b.CustomerName(),
		"Phone: " + b.Phone,
		"Email: " + b.Email,
		fmt.Sprintf("Total: %d.%02d", b.TotalPriceCents/100, b.TotalPriceCents%100),
		fmt.Sprintf("Booking ID: %d", b.ID),
	}
	if b.Notes != "" {
		description = append(description, "Notes: "+b.Notes)
	}

	return &calendar.Event{
		Summary:     fmt.Sprintf("%s - %s", b.ServiceName, b.CustomerName()),
		Description: strings.Join(description, "\n"),
		Location:    b.Address.String(),
		Start: &calendar.EventDateTime{
			DateTime: b.StartAt.In(s.loc).Format(time.RFC3339),
			TimeZone: s.loc.String(),
		},
		End: &calendar.EventDateTime{
			DateTime: b.EndAt.In(s.loc).Format(time.RFC3339),
			TimeZone: s.loc.String(),
		},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{bookingProperty: strconv.FormatInt(b.ID, 10)},
		},
	}
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
}
