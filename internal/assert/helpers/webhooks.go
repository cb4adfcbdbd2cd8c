package helpers

import (
	"encoding/json"
	"maps"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kode4food/flowgate/pkg/api"
)

// TestPhoneNumber is the sender used by generated webhook messages
const TestPhoneNumber = "15550001111"

// NewFlowReplyMessage builds a flow completion message whose response_json
// carries data and the flow token
func NewFlowReplyMessage(
	t *testing.T, id, token string, data map[string]any,
) api.WebhookMessage {
	t.Helper()
	doc := maps.Clone(data)
	if doc == nil {
		doc = map[string]any{}
	}
	doc["flow_token"] = token
	responseJSON, err := json.Marshal(doc)
	require.NoError(t, err)

	return NewReplyMessage(id, string(responseJSON))
}

// NewReplyMessage builds a flow completion message with a literal
// response_json string
func NewReplyMessage(id, responseJSON string) api.WebhookMessage {
	return api.WebhookMessage{
		ID:        id,
		From:      TestPhoneNumber,
		Timestamp: "1760000000",
		Type:      api.MessageTypeInteractive,
		Interactive: &api.InteractiveMessage{
			Type: api.InteractiveTypeNFM,
			NFMReply: &api.NFMReply{
				Name:         "flow",
				Body:         "Sent",
				ResponseJSON: responseJSON,
			},
		},
	}
}

// NewWebhookBody wraps messages in a platform webhook body
func NewWebhookBody(t *testing.T, msgs ...api.WebhookMessage) []byte {
	t.Helper()
	payload := api.WebhookPayload{
		Object: "whatsapp_business_account",
		Entry: []api.WebhookEntry{{
			ID: "waba-1",
			Changes: []api.WebhookChange{{
				Field: "messages",
				Value: api.WebhookValue{
					MessagingProduct: "whatsapp",
					Metadata: &api.WebhookMetadata{
						DisplayPhoneNumber: "15550009999",
						PhoneNumberID:      "pn-1",
					},
					Contacts: []api.WebhookContact{{
						Profile: api.ContactProfile{Name: "Test"},
						WaID:    TestPhoneNumber,
					}},
					Messages: msgs,
				},
			}},
		}},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return body
}
