package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kode4food/flowgate/pkg/api"
)

// Action is a data-exchange request action
type Action string

const (
	ActionPing         Action = "ping"
	ActionInit         Action = "init"
	ActionDataExchange Action = "data_exchange"
	ActionNavigate     Action = "navigate"
	ActionComplete     Action = "complete"
)

// MaxFlowTokenLength is the longest flow token accepted from the platform
const MaxFlowTokenLength = 500

var (
	ErrUnknownAction     = errors.New("unknown action")
	ErrFlowTokenRequired = errors.New("flow token required")
	ErrFlowTokenTooLong  = errors.New("flow token too long")
)

var actions = map[string]Action{
	string(ActionPing):         ActionPing,
	string(ActionInit):         ActionInit,
	string(ActionDataExchange): ActionDataExchange,
	string(ActionNavigate):     ActionNavigate,
	string(ActionComplete):     ActionComplete,
}

// ParseAction maps a wire action to an Action, ignoring case
func ParseAction(s string) (Action, error) {
	if a, ok := actions[strings.ToLower(strings.TrimSpace(s))]; ok {
		return a, nil
	}
	return "", fmt.Errorf("%w: %w: %q",
		api.ErrValidation, ErrUnknownAction, s)
}

// ParseRequest validates a decrypted request, returning its action and the
// trimmed flow token. A token is required for every action except ping
func ParseRequest(req *api.FlowRequest) (Action, string, error) {
	act, err := ParseAction(req.Action)
	if err != nil {
		return "", "", err
	}

	token := strings.TrimSpace(req.FlowToken)
	if len(token) > MaxFlowTokenLength {
		return "", "", fmt.Errorf("%w: %w",
			api.ErrValidation, ErrFlowTokenTooLong)
	}
	if token == "" && act != ActionPing {
		return "", "", fmt.Errorf("%w: %w: %s",
			api.ErrValidation, ErrFlowTokenRequired, act)
	}
	return act, token, nil
}
