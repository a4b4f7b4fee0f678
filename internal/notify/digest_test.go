package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"detailbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLister struct {
	mock.Mock
}

func (m *mockLister) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, start, end)
	if b := args.Get(0); b != nil {
		return b.([]*models.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestSendDigest(t *testing.T) {
	sender := new(mockSender)
	lister := new(mockLister)
	logger := zerolog.Nop()
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	n := NewNotifier(sender, []int64{100}, chicago, &logger)

	// 2030-06-03 in Chicago is [05:00Z, next 05:00Z)
	from := time.Date(2030, 6, 3, 5, 0, 0, 0, time.UTC)
	to := time.Date(2030, 6, 4, 5, 0, 0, 0, time.UTC)
	lister.On("GetBookingsByDateRange", mock.Anything, from, to).Return([]*models.Booking{
		{
			ID: 1, ServiceName: "Full Detail", Status: models.StatusConfirmed, TotalPriceCents: 12000,
			FirstName: "Dana", LastName: "Reyes", Phone: "5550102030",
			Address: models.Address{Street: "12 Oak St", City: "Austin"},
			StartAt: time.Date(2030, 6, 3, 14, 0, 0, 0, time.UTC),
			EndAt:   time.Date(2030, 6, 3, 16, 15, 0, 0, time.UTC),
		},
		{ID: 2, ServiceName: "Wash", Status: models.StatusCancelled, TotalPriceCents: 8000},
		{ID: 3, ServiceName: "Wash", Status: models.StatusPendingPayment, TotalPriceCents: 8000},
	}, nil).Once()

	sender.On("Send", messageTo(100,
		"Route for Mon 03 Jun 2030 (1)",
		"9:00 AM - 11:15 AM Full Detail",
		"12 Oak St, Austin",
		"Dana Reyes, 5550102030",
		"Total: $120.00",
	)).Return(tgbotapi.Message{}, nil).Once()

	require.NoError(t, n.SendDigest(context.Background(), lister, time.Date(2030, 6, 3, 20, 0, 0, 0, time.UTC)))
	sender.AssertExpectations(t)
	lister.AssertExpectations(t)
}

func TestSendDigest_Empty(t *testing.T) {
	sender := new(mockSender)
	lister := new(mockLister)
	logger := zerolog.Nop()
	n := NewNotifier(sender, []int64{100}, nil, &logger)

	lister.On("GetBookingsByDateRange", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).Once()
	sender.On("Send", messageTo(100, "No confirmed bookings for Tue 04 Jun 2030")).Return(tgbotapi.Message{}, nil).Once()

	require.NoError(t, n.SendDigest(context.Background(), lister, time.Date(2030, 6, 4, 0, 0, 0, 0, time.UTC)))
	sender.AssertExpectations(t)
}

func TestSendDigest_ListError(t *testing.T) {
	sender := new(mockSender)
	lister := new(mockLister)
	logger := zerolog.Nop()
	n := NewNotifier(sender, []int64{100}, nil, &logger)

	lister.On("GetBookingsByDateRange", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db locked")).Once()

	err := n.SendDigest(context.Background(), lister, time.Now())
	assert.ErrorContains(t, err, "db locked")
	sender.AssertNotCalled(t, "Send", mock.Anything)
}

func TestUntilNext(t *testing.T) {
	logger := zerolog.Nop()
	n := NewNotifier(new(mockSender), nil, nil, &logger)

	n.now = func() time.Time { return time.Date(2030, 6, 3, 7, 30, 0, 0, time.UTC) }
	assert.Equal(t, 90*time.Minute, n.untilNext(9*time.Hour))

	n.now = func() time.Time { return time.Date(2030, 6, 3, 9, 0, 0, 0, time.UTC) }
	assert.Equal(t, 24*time.Hour, n.untilNext(9*time.Hour))
}

func TestStartDailyDigest(t *testing.T) {
	logger := zerolog.Nop()
	n := NewNotifier(new(mockSender), nil, nil, &logger)

	assert.Error(t, n.StartDailyDigest(context.Background(), new(mockLister), "9am"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, n.StartDailyDigest(ctx, new(mockLister), "09:00"))
}
