package erp

import (
	"encoding/json"
	"time"
)

const (
	EventRunRequested  = "SyncRunRequested"
	EventRunCompleted  = "SyncRunCompleted"
	EventOrderImported = "StorefrontOrderImported"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "woo-sync-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya profile_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload tipe per event ----

type RunRequestedPayload struct {
	ProfileID string `json:"profile_id"`
	Flow      string `json:"flow"` // import | export | bookings
}

type RunCompletedPayload struct {
	ProfileID string `json:"profile_id"`
	Flow      string `json:"flow"`
	Outcome   string `json:"outcome"` // success | partial | failure
	Created   int    `json:"created"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Message   string `json:"message"`
}

type OrderImportedPayload struct {
	ProfileID   string `json:"profile_id"`
	OrderID     string `json:"order_id"`
	ExternalRef string `json:"external_ref"`
	CustomerID  string `json:"customer_id"`
	Lines       int    `json:"lines"`
}
