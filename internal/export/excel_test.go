package export

import (
	"bytes"
	"testing"
	"time"

	"detailbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteBookings(t *testing.T) {
	bookings := []*models.Booking{
		{
			ID: 1, FirstName: "Dana", LastName: "Reyes", Phone: "5550102030", Email: "dana@example.com",
			ServiceName: "Full Detail", Status: models.StatusConfirmed, TotalPriceCents: 12550,
			StartAt: time.Date(2030, 6, 3, 10, 0, 0, 0, time.UTC),
			EndAt:   time.Date(2030, 6, 3, 11, 30, 0, 0, time.UTC),
			Address: models.Address{Street: "12 Oak St", City: "Austin"},
		},
		{
			ID: 2, FirstName: "Sam", ServiceName: "Exterior Wash", Status: models.StatusCancelled, TotalPriceCents: 8000,
			StartAt: time.Date(2030, 6, 4, 8, 0, 0, 0, time.UTC),
			EndAt:   time.Date(2030, 6, 4, 9, 30, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	from := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, WriteBookings(&buf, bookings, from, from.AddDate(0, 0, 7), nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{BookingsSheet, SummarySheet}, f.GetSheetList())

	title, err := f.GetCellValue(BookingsSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Period: 2030-06-01 - 2030-06-08", title)

	rows, err := f.GetRows(BookingsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, bookingHeaders, rows[1])
	assert.Equal(t, []string{"1", "2030-06-03", "10:00", "11:30", "Full Detail", "Dana Reyes"}, rows[2][:6])
	assert.Equal(t, "12 Oak St, Austin", rows[2][8])
	assert.Equal(t, models.StatusConfirmed, rows[2][9])
	assert.Equal(t, "125.5", rows[2][10])
	assert.Equal(t, models.StatusCancelled, rows[3][9])

	revenue, err := f.GetCellValue(SummarySheet, "B8")
	require.NoError(t, err)
	assert.Equal(t, "125.5", revenue)
	confirmed, err := f.GetCellValue(SummarySheet, "B4")
	require.NoError(t, err)
	assert.Equal(t, "1", confirmed)
}

func TestWriteBookings_Empty(t *testing.T) {
	var buf bytes.Buffer
	from := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, WriteBookings(&buf, nil, from, from.AddDate(0, 0, 1), time.UTC))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(BookingsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
