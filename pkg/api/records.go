package api

import (
	"encoding/json"
	"time"
)

type (
	// WebhookEvent is the audit record kept for every authenticated
	// webhook delivery
	WebhookEvent struct {
		ReceivedAt         time.Time       `json:"received_at"`
		ProcessedAt        *time.Time      `json:"processed_at,omitempty"`
		CallbackSentAt     *time.Time      `json:"callback_sent_at,omitempty"`
		CallbackStatusCode *int            `json:"callback_status_code,omitempty"`
		ID                 string          `json:"id"`
		EventType          string          `json:"event_type"`
		Signature          string          `json:"signature,omitempty"`
		CallbackURL        string          `json:"callback_url,omitempty"`
		CallbackError      string          `json:"callback_error,omitempty"`
		Error              string          `json:"error,omitempty"`
		RawPayload         json.RawMessage `json:"raw_payload"`
		SignatureValid     bool            `json:"signature_valid"`
		Processed          bool            `json:"processed"`
		CallbackSent       bool            `json:"callback_sent"`
	}

	// FlowResponseRecord stores the data submitted when a flow completes,
	// along with the raw message it arrived in
	FlowResponseRecord struct {
		ReceivedAt   time.Time       `json:"received_at"`
		ResponseData map[string]any  `json:"response_data"`
		ID           string          `json:"id"`
		SessionID    string          `json:"session_id"`
		FlowID       string          `json:"flow_id"`
		FlowToken    string          `json:"flow_token"`
		PhoneNumber  string          `json:"phone_number,omitempty"`
		RawMessage   json.RawMessage `json:"raw_message,omitempty"`
	}
)

// MarkProcessed records that processing finished at the given time
func (e *WebhookEvent) MarkProcessed(at time.Time) {
	e.Processed = true
	e.ProcessedAt = &at
}

// MarkCallbackSent records a successful callback delivery
func (e *WebhookEvent) MarkCallbackSent(statusCode int, at time.Time) {
	e.CallbackSent = true
	e.CallbackStatusCode = &statusCode
	e.CallbackSentAt = &at
	e.CallbackError = ""
}

// MarkCallbackFailed records a callback delivery that exhausted its retries
func (e *WebhookEvent) MarkCallbackFailed(statusCode int, msg string) {
	e.CallbackSent = false
	if statusCode != 0 {
		e.CallbackStatusCode = &statusCode
	}
	e.CallbackError = msg
}
