package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

type (
	// FlowStatus is the publication status of a flow definition
	FlowStatus string

	// Flow is a guided-interaction definition and its screens
	Flow struct {
		CreatedAt   time.Time  `json:"created_at"`
		UpdatedAt   time.Time  `json:"updated_at"`
		FlowJSON    FlowJSON   `json:"flow_json"`
		ID          string     `json:"id"`
		Name        string     `json:"name"`
		Version     string     `json:"version"`
		Status      FlowStatus `json:"status"`
		Description string     `json:"description,omitempty"`
	}

	// FlowJSON is the platform-facing flow document
	FlowJSON struct {
		Version        string    `json:"version"`
		DataChannelURI string    `json:"data_channel_uri,omitempty"`
		Screens        []*Screen `json:"screens"`
	}

	// Screen is a single named step of a flow
	Screen struct {
		Data     map[string]any  `json:"data,omitempty"`
		ID       string          `json:"id"`
		Title    string          `json:"title,omitempty"`
		Layout   json.RawMessage `json:"layout,omitempty"`
		Terminal bool            `json:"terminal,omitempty"`
	}
)

const (
	FlowStatusDraft      FlowStatus = "draft"
	FlowStatusActive     FlowStatus = "active"
	FlowStatusDeprecated FlowStatus = "deprecated"
)

var (
	ErrFlowNameEmpty      = errors.New("flow name empty")
	ErrFlowVersionInvalid = errors.New("flow version must be in X.Y format")
	ErrFlowNoScreens      = errors.New("flow must have at least one screen")
	ErrFlowNoTerminal     = errors.New("flow must have a terminal screen")
	ErrScreenIDEmpty      = errors.New("screen ID empty")
	ErrScreenIDDuplicate  = errors.New("duplicate screen ID")
	ErrInvalidFlowStatus  = errors.New("invalid flow status")
)

var (
	flowVersionPattern = regexp.MustCompile(`^\d+\.\d+$`)

	validFlowStatuses = map[FlowStatus]bool{
		FlowStatusDraft:      true,
		FlowStatusActive:     true,
		FlowStatusDeprecated: true,
	}
)

// Validate checks that the flow can be served by the state machine
func (f *Flow) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrFlowNameEmpty)
	}
	if !flowVersionPattern.MatchString(f.Version) {
		return fmt.Errorf("%w: %w: %q",
			ErrValidation, ErrFlowVersionInvalid, f.Version)
	}
	if f.Status != "" && !validFlowStatuses[f.Status] {
		return fmt.Errorf("%w: %w: %s",
			ErrValidation, ErrInvalidFlowStatus, f.Status)
	}
	if len(f.FlowJSON.Screens) == 0 {
		return fmt.Errorf("%w: %w", ErrValidation, ErrFlowNoScreens)
	}

	seen := make(map[string]bool, len(f.FlowJSON.Screens))
	terminal := false
	for _, s := range f.FlowJSON.Screens {
		if s == nil || strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("%w: %w", ErrValidation, ErrScreenIDEmpty)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: %w: %s",
				ErrValidation, ErrScreenIDDuplicate, s.ID)
		}
		seen[s.ID] = true
		terminal = terminal || s.Terminal
	}
	if !terminal {
		return fmt.Errorf("%w: %w", ErrValidation, ErrFlowNoTerminal)
	}
	return nil
}

// Screen returns the screen with exactly the given ID
func (f *Flow) Screen(id string) (*Screen, bool) {
	for _, s := range f.FlowJSON.Screens {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// FirstScreen returns the entry screen of the flow
func (f *Flow) FirstScreen() (*Screen, bool) {
	if len(f.FlowJSON.Screens) == 0 {
		return nil, false
	}
	return f.FlowJSON.Screens[0], true
}

// ScreenIDs returns the IDs of all screens in definition order
func (f *Flow) ScreenIDs() []string {
	res := make([]string, 0, len(f.FlowJSON.Screens))
	for _, s := range f.FlowJSON.Screens {
		res = append(res, s.ID)
	}
	return res
}

// IsTerminal reports whether the screen ends the interaction
func (f *Flow) IsTerminal(id string) bool {
	s, ok := f.Screen(id)
	return ok && s.Terminal
}

// IsActive reports whether the flow is published
func (f *Flow) IsActive() bool {
	return f.Status == FlowStatusActive
}
