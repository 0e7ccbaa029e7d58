package models

import "time"

// Event type constants
const (
	EventTransactionRequested   = "TRANSACTION_REQUESTED"
	EventTransactionRecorded    = "TRANSACTION_RECORDED"
	EventRecalculationCompleted = "RECALCULATION_COMPLETED"
)

// TransactionEvent is the Kafka envelope for transaction requests and
// recorded-transaction notifications
type TransactionEvent struct {
	EventType string              `json:"event_type"`
	Source    string              `json:"source,omitempty"`
	Request   *TransactionRequest `json:"request,omitempty"`
	Portfolio string              `json:"portfolio"`
	Timestamp time.Time           `json:"timestamp"`
}

// RecalculationEvent announces a completed recalculation run with its
// summary counters
type RecalculationEvent struct {
	EventType             string    `json:"event_type"`
	Portfolio             string    `json:"portfolio"`
	CutoverDate           time.Time `json:"cutover_date"`
	RowsWritten           int       `json:"rows_written"`
	DatesSkipped          int       `json:"dates_skipped"`
	NegativeQuantitySkips int       `json:"negative_quantity_skips"`
	PrecisionFailures     int       `json:"precision_failures"`
	Timestamp             time.Time `json:"timestamp"`
}
