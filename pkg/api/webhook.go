package api

type (
	// WebhookPayload is the platform's webhook body
	WebhookPayload struct {
		Object string         `json:"object"`
		Entry  []WebhookEntry `json:"entry"`
	}

	// WebhookEntry groups the changes for one business account
	WebhookEntry struct {
		ID      string          `json:"id"`
		Changes []WebhookChange `json:"changes"`
	}

	// WebhookChange is a single change notification
	WebhookChange struct {
		Field string       `json:"field"`
		Value WebhookValue `json:"value"`
	}

	// WebhookValue carries the messages and statuses of a change
	WebhookValue struct {
		Metadata         *WebhookMetadata `json:"metadata,omitempty"`
		MessagingProduct string           `json:"messaging_product"`
		Contacts         []WebhookContact `json:"contacts,omitempty"`
		Messages         []WebhookMessage `json:"messages,omitempty"`
		Statuses         []WebhookStatus  `json:"statuses,omitempty"`
	}

	// WebhookMetadata identifies the receiving phone number
	WebhookMetadata struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	}

	// WebhookContact describes the sender of a message
	WebhookContact struct {
		Profile ContactProfile `json:"profile"`
		WaID    string         `json:"wa_id"`
	}

	// ContactProfile is the sender's public profile
	ContactProfile struct {
		Name string `json:"name"`
	}

	// WebhookMessage is an inbound message
	WebhookMessage struct {
		Interactive *InteractiveMessage `json:"interactive,omitempty"`
		Text        *TextMessage        `json:"text,omitempty"`
		From        string              `json:"from"`
		ID          string              `json:"id"`
		Timestamp   string              `json:"timestamp"`
		Type        string              `json:"type"`
	}

	// TextMessage is the body of a plain text message
	TextMessage struct {
		Body string `json:"body"`
	}

	// InteractiveMessage is a reply to an interactive element
	InteractiveMessage struct {
		NFMReply    *NFMReply    `json:"nfm_reply,omitempty"`
		ButtonReply *ButtonReply `json:"button_reply,omitempty"`
		ListReply   *ListReply   `json:"list_reply,omitempty"`
		Type        string       `json:"type"`
	}

	// NFMReply is the completion reply of a flow. ResponseJSON is itself a
	// JSON document encoded as a string
	NFMReply struct {
		ResponseJSON string `json:"response_json"`
		Body         string `json:"body"`
		Name         string `json:"name"`
	}

	// ButtonReply is a reply to a button
	ButtonReply struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}

	// ListReply is a reply to a list item
	ListReply struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description,omitempty"`
	}

	// WebhookStatus is a delivery status notification
	WebhookStatus struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		Timestamp   string `json:"timestamp"`
		RecipientID string `json:"recipient_id"`
	}

	// FlowReply is a decoded flow completion reply
	FlowReply struct {
		Data      map[string]any
		FlowToken string
		From      string
		Body      string
		Name      string
	}
)

const (
	MessageTypeInteractive = "interactive"
	InteractiveTypeNFM     = "nfm_reply"
)

// IsFlowReply reports whether the message is a flow completion reply
func (m *WebhookMessage) IsFlowReply() bool {
	return m.Type == MessageTypeInteractive &&
		m.Interactive != nil &&
		m.Interactive.Type == InteractiveTypeNFM
}
