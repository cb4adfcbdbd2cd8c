package session

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/kode4food/flowgate/pkg/api"
)

type (
	// Machine interprets decrypted actions against a flow definition and a
	// session snapshot
	Machine struct {
		clock Clock
	}

	// Clock provides the current time for session activity tracking
	Clock func() time.Time
)

const (
	// PingVersion is the protocol version reported in health responses
	PingVersion = "7.2"

	pingStatusActive = "active"
)

var (
	ErrScreenRequired = errors.New("screen must be specified")
	ErrScreenNotFound = errors.New("screen not found in flow")
)

// NewMachine creates a Machine using the wall clock
func NewMachine() *Machine {
	return NewMachineWithClock(time.Now)
}

// NewMachineWithClock creates a Machine with the provided clock
func NewMachineWithClock(clock Clock) *Machine {
	return &Machine{clock: clock}
}

// PingResponse is the fixed health payload returned for ping actions
func PingResponse() *api.FlowResponse {
	return &api.FlowResponse{
		Version: PingVersion,
		Data:    map[string]any{"status": pingStatusActive},
	}
}

// Apply interprets req against the flow and the current session. On error
// the current session is returned unchanged
func (m *Machine) Apply(
	flow *api.Flow, cur Session, req *api.FlowRequest,
) (Session, *api.FlowResponse, error) {
	act, err := ParseAction(req.Action)
	if err != nil {
		return cur, nil, err
	}
	if act == ActionPing {
		return cur, PingResponse(), nil
	}

	if err := checkOpen(cur, act); err != nil {
		return cur, nil, err
	}

	var next Session
	var res *api.FlowResponse
	switch act {
	case ActionInit:
		next, res, err = m.init(flow, cur)
	case ActionDataExchange:
		next, res, err = m.dataExchange(flow, cur, req)
	case ActionNavigate:
		next, res, err = m.navigate(flow, cur, req)
	case ActionComplete:
		next, res, err = m.complete(flow, cur, req)
	default:
		err = fmt.Errorf("%w: %w: %s",
			api.ErrValidation, ErrUnknownAction, act)
	}
	if err != nil {
		return cur, nil, err
	}
	return next, res, nil
}

func (m *Machine) init(
	flow *api.Flow, cur Session,
) (Session, *api.FlowResponse, error) {
	first, ok := flow.FirstScreen()
	if !ok {
		return cur, nil, fmt.Errorf("%w: %w",
			api.ErrValidation, api.ErrFlowNoScreens)
	}

	next := cur.WithScreen(first.ID).Touch(m.clock())
	data := map[string]any{}
	maps.Copy(data, first.Data)
	return next, screenResponse(flow, first.ID, data), nil
}

func (m *Machine) dataExchange(
	flow *api.Flow, cur Session, req *api.FlowRequest,
) (Session, *api.FlowResponse, error) {
	target := req.Screen
	if target == "" {
		target = cur.CurrentScreen
	}
	screen, err := findScreen(flow, target)
	if err != nil {
		return cur, nil, err
	}

	next := cur.WithData(req.Data).Touch(m.clock())
	return next, screenResponse(flow, screen.ID, overlay(screen, next)), nil
}

func (m *Machine) navigate(
	flow *api.Flow, cur Session, req *api.FlowRequest,
) (Session, *api.FlowResponse, error) {
	target := req.NextScreen
	if target == "" {
		target = req.Screen
	}
	screen, err := findScreen(flow, target)
	if err != nil {
		return cur, nil, err
	}

	next := cur.WithData(req.Data).WithScreen(screen.ID).Touch(m.clock())
	return next, screenResponse(flow, screen.ID, overlay(screen, next)), nil
}

func (m *Machine) complete(
	flow *api.Flow, cur Session, req *api.FlowRequest,
) (Session, *api.FlowResponse, error) {
	res := &api.FlowResponse{
		Version: flow.Version,
		Data:    map[string]any{"acknowledged": true},
	}
	if cur.Status == StatusCompleted {
		return cur, res, nil
	}

	now := m.clock()
	next, err := cur.WithData(req.Data).Complete(now)
	if err != nil {
		return cur, nil, err
	}
	return next, res, nil
}

func checkOpen(s Session, act Action) error {
	switch s.Status {
	case StatusActive:
		return nil
	case StatusCompleted:
		if act == ActionComplete {
			return nil
		}
	}
	return fmt.Errorf("%w: %w: %s",
		api.ErrValidation, ErrSessionClosed, s.Status)
}

func findScreen(flow *api.Flow, id string) (*api.Screen, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: %w", api.ErrValidation, ErrScreenRequired)
	}
	screen, ok := flow.Screen(id)
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s",
			api.ErrValidation, ErrScreenNotFound, id)
	}
	return screen, nil
}

func overlay(screen *api.Screen, s Session) map[string]any {
	res := make(map[string]any, len(screen.Data)+len(s.Data))
	maps.Copy(res, screen.Data)
	maps.Copy(res, s.Data)
	return res
}

func screenResponse(
	flow *api.Flow, screen string, data map[string]any,
) *api.FlowResponse {
	return &api.FlowResponse{
		Version: flow.Version,
		Screen:  screen,
		Data:    data,
	}
}
