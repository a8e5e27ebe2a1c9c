package intent

import (
	"time"

	"JustNowBackend/pkg/uischema"
)

type ProcessIntentRequest struct {
	TextInput       string                 `json:"text_input" validate:"required,min=1,max=500"`
	Slots           map[string]interface{} `json:"slots,omitempty"`
	ConfidenceScore *float64               `json:"confidence_score,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// GenUIResponse is the 200 body of /intent/process: the validated widget
// tree plus the intent interpretation it came from.
type GenUIResponse struct {
	IntentID        string                 `json:"intent_id"`
	Category        string                 `json:"category"`
	UISchemaVersion string                 `json:"ui_schema_version"`
	Slots           map[string]interface{} `json:"slots"`
	UIPayload       *uischema.UIPayload    `json:"ui_payload"`
}

const UISchemaVersion = "1.0"

// ConfirmationResponse is returned instead of a widget tree when the
// recognizer was confident enough to guess but not enough to act.
type ConfirmationResponse struct {
	ConfirmationRequired bool                   `json:"confirmation_required"`
	IntentID             string                 `json:"intent_id"`
	Category             string                 `json:"category"`
	Prompt               string                 `json:"prompt"`
	Slots                map[string]interface{} `json:"slots"`
}

type AttemptHistoryItem struct {
	ID        string    `json:"id"`
	TextInput string    `json:"text_input"`
	Category  string    `json:"category"`
	Status    string    `json:"status"`
	ErrorCode string    `json:"error_code,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

type HistoryResponse struct {
	Attempts []AttemptHistoryItem `json:"attempts"`
	Total    int                  `json:"total"`
}
