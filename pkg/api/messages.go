package api

type (
	// EncryptedRequest is the body posted to the data-exchange endpoint
	EncryptedRequest struct {
		EncryptedAESKey   string `json:"encrypted_aes_key"`
		EncryptedFlowData string `json:"encrypted_flow_data"`
		InitialVector     string `json:"initial_vector"`
	}

	// FlowRequest is the decrypted body of a data-exchange request
	FlowRequest struct {
		Data       map[string]any `json:"data,omitempty"`
		Action     string         `json:"action"`
		FlowToken  string         `json:"flow_token,omitempty"`
		Screen     string         `json:"screen,omitempty"`
		NextScreen string         `json:"next_screen,omitempty"`
		Version    string         `json:"version,omitempty"`
	}

	// FlowResponse is the plaintext of a data-exchange response before it
	// is encrypted
	FlowResponse struct {
		Data    map[string]any `json:"data,omitempty"`
		Version string         `json:"version"`
		Screen  string         `json:"screen,omitempty"`
	}

	// CallbackPayload is relayed to the system of record when a flow
	// completes
	CallbackPayload struct {
		ResponseData map[string]any `json:"response_data"`
		EventType    string         `json:"event_type"`
		FlowToken    string         `json:"flow_token"`
		FlowID       string         `json:"flow_id,omitempty"`
		PhoneNumber  string         `json:"phone_number,omitempty"`
		Timestamp    string         `json:"timestamp"`
	}

	// HealthResponse provides service health information
	HealthResponse struct {
		Service string `json:"service"`
		Status  string `json:"status"`
		Version string `json:"version"`
	}

	// AckResponse acknowledges a webhook delivery
	AckResponse struct {
		Success bool `json:"success"`
	}

	// ErrorResponse contains error details for failed requests
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status,omitempty"`
	}
)

const (
	// EventTypeFlowCompleted marks a callback for a completed flow
	EventTypeFlowCompleted = "flow_completed"

	// EventTypeMessages marks a webhook event carrying messages
	EventTypeMessages = "messages"

	// HealthStatusOK is reported by a healthy service
	HealthStatusOK = "ok"
)
