package domain

import "time"

// RefinementStatus tracks a refinement record through its lifecycle.
type RefinementStatus string

const (
	RefinementPending RefinementStatus = "pending"
	RefinementRefined RefinementStatus = "refined"
)

// Refinement is the idempotency record for one (account, client session).
type Refinement struct {
	AccountID       string
	ClientSessionID string
	Status          RefinementStatus
	InputText       string
	OutputText      string
	ProfileID       string
	WordCount       int
	CreatedAt       time.Time
}

// Usage event types.
const (
	// UsageEventRefineWords meters refined output words.
	UsageEventRefineWords = "refine_words"
	// UsageEventSTTToken counts issued transcription tokens.
	UsageEventSTTToken = "stt_token"
)

// UsageEvent is an append-only metering entry.
type UsageEvent struct {
	AccountID string         `json:"accountId"`
	EventType string         `json:"eventType"`
	Quantity  int            `json:"quantity"`
	CreatedAt time.Time      `json:"createdAt"`
	Meta      map[string]any `json:"meta,omitempty"`
}
