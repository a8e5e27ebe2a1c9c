package entity

import "time"

type IntentCategory string

const (
	CategoryService IntentCategory = "SERVICE"
	CategoryInfo    IntentCategory = "INFO"
	CategoryCode    IntentCategory = "CODE"
	CategoryUnknown IntentCategory = "UNKNOWN"
	CategoryChat    IntentCategory = "CHAT"
)

func (c IntentCategory) Valid() bool {
	switch c {
	case CategoryService, CategoryInfo, CategoryCode, CategoryUnknown, CategoryChat:
		return true
	}
	return false
}

// Intent is the structured interpretation of one user utterance. It is
// produced once by the ASR/LLM boundary and consumed once by the classifier.
type Intent struct {
	ID              string                 `json:"intent_id"`
	Text            string                 `json:"text"`
	Category        IntentCategory         `json:"category"`
	ConfidenceScore float64                `json:"confidence_score"`
	Slots           map[string]interface{} `json:"slots"`
}

type AttemptStatus string

const (
	AttemptStatusPending          AttemptStatus = "pending"
	AttemptStatusCompleted        AttemptStatus = "completed"
	AttemptStatusFailed           AttemptStatus = "failed"
	AttemptStatusCanceledBillable AttemptStatus = "canceled_billable"
)

// AttemptRecord is the billing/audit row for one logical user attempt.
// Canceled attempts keep their row: the model was already invoked, so the
// attempt is canceled but billable.
type AttemptRecord struct {
	ID         string        `json:"id"`
	DeviceID   string        `json:"device_id"`
	AttemptKey string        `json:"attempt_key"`
	IntentID   string        `json:"intent_id"`
	Category   string        `json:"category"`
	TextInput  string        `json:"text_input"`
	Status     AttemptStatus `json:"status"`
	ErrorCode  string        `json:"error_code"`
	Provider   string        `json:"provider"`
	LatencyMs  int64         `json:"latency_ms"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
