package session

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/kode4food/flowgate/internal/util"
	"github.com/kode4food/flowgate/pkg/api"
)

type (
	// Status is the lifecycle state of a session
	Status string

	// Session is an immutable snapshot of one conversation's progress
	// through a flow. Transitions return a new snapshot and never modify
	// the receiver
	Session struct {
		StartedAt      time.Time      `json:"started_at"`
		LastActivityAt time.Time      `json:"last_activity_at"`
		CompletedAt    *time.Time     `json:"completed_at,omitempty"`
		Data           map[string]any `json:"session_data"`
		ID             string         `json:"id"`
		FlowID         string         `json:"flow_id"`
		FlowToken      string         `json:"flow_token"`
		PhoneNumber    string         `json:"phone_number,omitempty"`
		CurrentScreen  string         `json:"current_screen,omitempty"`
		ErrorMessage   string         `json:"error_message,omitempty"`
		Status         Status         `json:"status"`
	}
)

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusError     Status = "error"
)

var (
	ErrSessionClosed     = errors.New("session is closed")
	ErrInvalidTransition = errors.New("invalid session status transition")
)

var statusTransitions = util.StateTransitions[Status]{
	StatusActive: util.SetOf(
		StatusCompleted,
		StatusExpired,
		StatusError,
	),
	StatusCompleted: {},
	StatusExpired:   {},
	StatusError:     {},
}

// New starts an active session for a flow token
func New(id, flowID, flowToken string, now time.Time) Session {
	return Session{
		ID:             id,
		FlowID:         flowID,
		FlowToken:      flowToken,
		Data:           map[string]any{},
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
}

// IsActive reports whether the session still accepts navigation
func (s Session) IsActive() bool {
	return s.Status == StatusActive
}

// IsTerminal reports whether the session can no longer change status
func (s Session) IsTerminal() bool {
	return statusTransitions.IsTerminal(s.Status)
}

// WithData returns a copy with data merged over the accumulated session
// data. Existing keys not present in data are kept
func (s Session) WithData(data map[string]any) Session {
	res := s
	res.Data = make(map[string]any, len(s.Data)+len(data))
	maps.Copy(res.Data, s.Data)
	maps.Copy(res.Data, data)
	return res
}

// WithScreen returns a copy positioned on the given screen
func (s Session) WithScreen(screen string) Session {
	res := s
	res.CurrentScreen = screen
	return res
}

// WithPhoneNumber returns a copy carrying the phone number when the session
// does not know one yet
func (s Session) WithPhoneNumber(phone string) Session {
	if s.PhoneNumber != "" || phone == "" {
		return s
	}
	res := s
	res.PhoneNumber = phone
	return res
}

// Touch returns a copy with its activity time moved to now
func (s Session) Touch(now time.Time) Session {
	res := s
	res.LastActivityAt = now
	return res
}

// Complete returns a completed copy. Completing a completed session is a
// no-op
func (s Session) Complete(now time.Time) (Session, error) {
	if s.Status == StatusCompleted {
		return s, nil
	}
	res, err := s.transition(StatusCompleted, now)
	if err != nil {
		return s, err
	}
	res.CompletedAt = &now
	return res, nil
}

// Expire returns an expired copy
func (s Session) Expire(now time.Time) (Session, error) {
	return s.transition(StatusExpired, now)
}

// CheckReplace reports whether next may overwrite the stored snapshot s.
// Status only moves forward, so a stale active snapshot cannot reopen a
// closed session
func (s Session) CheckReplace(next Session) error {
	if next.Status == s.Status {
		return nil
	}
	if s.IsTerminal() ||
		!statusTransitions.CanTransition(s.Status, next.Status) {
		return fmt.Errorf("%w: %w: %s -> %s",
			api.ErrValidation, ErrInvalidTransition, s.Status, next.Status)
	}
	return nil
}

func (s Session) transition(to Status, now time.Time) (Session, error) {
	if !statusTransitions.CanTransition(s.Status, to) {
		return s, fmt.Errorf("%w: %w: %s -> %s",
			api.ErrValidation, ErrInvalidTransition, s.Status, to)
	}
	res := s
	res.Status = to
	res.LastActivityAt = now
	return res, nil
}
