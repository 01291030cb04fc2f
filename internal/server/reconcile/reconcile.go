// Package reconcile journals order headers left inconsistent by a failed
// saga compensation, so that an operator can repair them.
package reconcile

import (
	"context"
	"time"

	"github.com/dmitrijs2005/bizledger/internal/logging"
)

// Incident describes one order whose running total no longer matches its
// items: the header was moved to AttemptedTotal, the items were not saved,
// and restoring PreviousTotal failed too.
type Incident struct {
	ID                    string    `json:"id"`
	OrderID               string    `json:"order_id"`
	BuyerID               string    `json:"buyer_id"`
	OrderDate             string    `json:"order_date"`
	PreviousTotal         float64   `json:"previous_total"`
	PreviousMissingCount  int       `json:"previous_missing_count"`
	AttemptedTotal        float64   `json:"attempted_total"`
	AttemptedMissingCount int       `json:"attempted_missing_count"`
	InsertError           string    `json:"insert_error"`
	RollbackError         string    `json:"rollback_error"`
	OccurredAt            time.Time `json:"occurred_at"`
}

// Sink records incidents.
type Sink interface {
	Record(ctx context.Context, incident Incident) error
}

// LogSink writes incidents to the structured log at error level.
type LogSink struct {
	logger logging.Logger
}

func NewLogSink(logger logging.Logger) *LogSink {
	return &LogSink{logger: logger.With("module", "reconcile")}
}

func (s *LogSink) Record(ctx context.Context, in Incident) error {
	s.logger.Error(ctx, "order requires reconciliation",
		"incident_id", in.ID,
		"order_id", in.OrderID,
		"buyer_id", in.BuyerID,
		"order_date", in.OrderDate,
		"previous_total", in.PreviousTotal,
		"previous_missing_count", in.PreviousMissingCount,
		"attempted_total", in.AttemptedTotal,
		"attempted_missing_count", in.AttemptedMissingCount,
		"insert_error", in.InsertError,
		"rollback_error", in.RollbackError,
		"occurred_at", in.OccurredAt,
	)
	return nil
}
