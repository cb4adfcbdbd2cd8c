package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/kode4food/flowgate/pkg/api"
)

var (
	ErrNotFlowReply = fmt.Errorf(
		"%w: message is not a flow reply", api.ErrValidation,
	)
	ErrResponseJSON = fmt.Errorf(
		"%w: response_json is not a JSON object", api.ErrValidation,
	)
	ErrReplyTokenMissing = fmt.Errorf(
		"%w: flow reply has no flow_token", api.ErrValidation,
	)
	ErrPayload = fmt.Errorf(
		"%w: malformed webhook payload", api.ErrValidation,
	)
	ErrSessionNotFound = fmt.Errorf("session %w", api.ErrNotFound)
)

// DecodeFlowReply extracts the submitted data of a flow completion message.
// The response_json field arrives as a JSON document encoded in a string and
// is parsed a second time here
func DecodeFlowReply(msg *api.WebhookMessage) (*api.FlowReply, error) {
	if !msg.IsFlowReply() || msg.Interactive.NFMReply == nil {
		return nil, ErrNotFlowReply
	}
	nfm := msg.Interactive.NFMReply

	doc := gjson.Parse(nfm.ResponseJSON)
	if !gjson.Valid(nfm.ResponseJSON) || !doc.IsObject() {
		return nil, ErrResponseJSON
	}
	token := doc.Get("flow_token")
	if token.Type != gjson.String || token.Str == "" {
		return nil, ErrReplyTokenMissing
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(nfm.ResponseJSON), &data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResponseJSON, err)
	}

	return &api.FlowReply{
		Data:      data,
		FlowToken: token.Str,
		From:      msg.From,
		Body:      nfm.Body,
		Name:      nfm.Name,
	}, nil
}

// FlowReplies returns every flow completion message in a payload
func FlowReplies(p *api.WebhookPayload) []*api.WebhookMessage {
	var res []*api.WebhookMessage
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			for i := range change.Value.Messages {
				if msg := &change.Value.Messages[i]; msg.IsFlowReply() {
					res = append(res, msg)
				}
			}
		}
	}
	return res
}

// RawMessage returns the undecoded JSON of the message with the given ID,
// exactly as it appeared in the webhook body
func RawMessage(raw []byte, id string) json.RawMessage {
	var res json.RawMessage
	gjson.GetBytes(raw, "entry").ForEach(func(_, entry gjson.Result) bool {
		entry.Get("changes").ForEach(func(_, change gjson.Result) bool {
			msgs := change.Get("value.messages")
			msgs.ForEach(func(_, msg gjson.Result) bool {
				if msg.Get("id").String() == id {
					res = json.RawMessage(msg.Raw)
				}
				return res == nil
			})
			return res == nil
		})
		return res == nil
	})
	return res
}

// EventType names the kind of change a webhook body carries
func EventType(raw []byte) string {
	if f := gjson.GetBytes(raw, "entry.0.changes.0.field"); f.Str != "" {
		return f.Str
	}
	return api.EventTypeMessages
}

// PayloadJSON returns raw as a JSON document suitable for storage. Bodies
// that are not valid JSON are kept as a JSON string
func PayloadJSON(raw []byte) json.RawMessage {
	if gjson.ValidBytes(raw) {
		return raw
	}
	res, _ := json.Marshal(string(raw))
	return res
}
