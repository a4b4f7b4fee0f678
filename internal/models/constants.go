package models

const (
	StatusPending        = "pending"
	StatusPendingPayment = "pending_payment"
	StatusConfirmed      = "confirmed"
	StatusCancelled      = "cancelled"
	StatusPaymentFailed  = "payment_failed"
)

// BlockingStatuses are the statuses whose interval is still reserved.
var BlockingStatuses = []string{StatusPending, StatusPendingPayment, StatusConfirmed}

func IsBlockingStatus(status string) bool {
	for _, s := range BlockingStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsFinalStatus reports statuses that accept no further transitions.
func IsFinalStatus(status string) bool {
	return status == StatusCancelled || status == StatusPaymentFailed
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
	// SlotLabelLayout is used for both ends of a human readable slot label.
	SlotLabelLayout = "3:04 PM"
)

const (
	// DefaultSlotCacheTTL время жизни кэша слотов в секундах
	DefaultSlotCacheTTL = 5 * 60

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// DefaultExportRangeDays диапазон экспорта по умолчанию
	DefaultExportRangeDays = 30
)
