package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"detailbook/internal/domain"
	"detailbook/internal/export"
	"detailbook/internal/models"

	"github.com/go-chi/chi/v5"
)

const (
	maxBodyBytes    = 64 << 10
	signatureHeader = "Stripe-Signature"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ready != nil {
		if err := s.svc.Ready(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.svc.Catalog.ListServices(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	addOns, err := s.svc.Catalog.ListAddOns(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services, "add_ons": addOns})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	date := strings.TrimSpace(q.Get("date"))
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	rawService := strings.TrimSpace(q.Get("serviceId"))
	if rawService == "" {
		writeError(w, http.StatusBadRequest, "serviceId is required")
		return
	}
	serviceID, err := strconv.ParseInt(rawService, 10, 64)
	if err != nil || serviceID <= 0 {
		writeError(w, http.StatusBadRequest, "serviceId must be a positive integer")
		return
	}
	addOnIDs, err := parseIDs(q.Get("addOnIds"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "addOnIds must be a comma separated list of ids")
		return
	}

	slots, err := s.svc.Slots.GetAvailableSlots(r.Context(), date, serviceID, addOnIDs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":       date,
		"serviceId":  serviceID,
		"slots":      slots,
		"totalSlots": len(slots),
	})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	booking, err := s.svc.Bookings.CreateBooking(r.Context(), &req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	booking, err := s.svc.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	booking, err := s.svc.Bookings.CancelBooking(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleStartPayment(w http.ResponseWriter, r *http.Request) {
	if s.svc.Payments == nil {
		writeError(w, http.StatusServiceUnavailable, "payments are not configured")
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	intent, err := s.svc.Bookings.StartPayment(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

// handlePaymentWebhook acknowledges every verified event it cannot act on so
// the processor stops redelivering it. Store failures return 500 to get a retry.
func (s *HTTPServer) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if s.svc.Payments == nil {
		writeError(w, http.StatusServiceUnavailable, "payments are not configured")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read body")
		return
	}

	event, err := s.svc.Payments.ParseWebhook(payload, r.Header.Get(signatureHeader))
	if err != nil {
		s.logger.Warn().Err(err).Msg("rejected payment webhook")
		writeError(w, http.StatusBadRequest, "invalid webhook")
		return
	}

	err = s.svc.Bookings.HandlePaymentEvent(r.Context(), event)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		s.logger.Warn().Err(err).Str("event_id", event.ID).Str("payment_id", event.PaymentIntentID).Msg("payment event for unknown booking")
	default:
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

type unavailabilityRequest struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	Reason  string    `json:"reason"`
}

func (s *HTTPServer) handleListUnavailability(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.dateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	blocks, err := s.svc.Schedule.ListUnavailability(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if blocks == nil {
		blocks = []*models.Unavailability{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"unavailability": blocks})
}

func (s *HTTPServer) handleCreateUnavailability(w http.ResponseWriter, r *http.Request) {
	var req unavailabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	block := &models.Unavailability{StartAt: req.StartAt.UTC(), EndAt: req.EndAt.UTC(), Reason: req.Reason}
	if err := s.svc.Schedule.BlockTime(r.Context(), block); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, block)
}

func (s *HTTPServer) handleDeleteUnavailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.Schedule.UnblockTime(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.dateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bookings, err := s.svc.Bookings.GetBookingsByDateRange(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteBookings(&buf, bookings, from, to, s.opts.Loc()); err != nil {
		s.writeServiceError(w, err)
		return
	}

	// to is exclusive; the name carries the last civil date included
	loc := s.opts.Loc()
	lastDay := to.Add(-time.Nanosecond)
	filename := fmt.Sprintf("bookings_%s_%s.xlsx", from.In(loc).Format("20060102"), lastDay.In(loc).Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// dateRange reads inclusive from/to civil dates in the business zone and
// returns the half-open UTC range. Defaults to the next DefaultExportRangeDays.
func (s *HTTPServer) dateRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()

	var from time.Time
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		d, err := s.opts.ParseDate(raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from: %v", err)
		}
		from = d
	} else {
		d, _ := s.opts.ParseDate(time.Now().In(s.opts.Loc()).Format(models.DateLayout))
		from = d
	}

	lastDay := from.AddDate(0, 0, models.DefaultExportRangeDays-1)
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		d, err := s.opts.ParseDate(raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to: %v", err)
		}
		lastDay = d
	}
	if lastDay.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to must not be before from")
	}

	start, _ := s.opts.Day(from)
	_, end := s.opts.Day(lastDay)
	return start, end, nil
}

// writeServiceError maps domain error kinds onto HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInactive):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrSlotUnavailable):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func parseIDs(raw string) ([]int64, error) {
	parts := splitCSV(raw)
	if len(parts) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
