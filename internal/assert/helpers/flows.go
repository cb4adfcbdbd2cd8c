package helpers

import (
	"time"

	"github.com/google/uuid"

	"github.com/kode4food/flowgate/pkg/api"
)

const (
	// TestFlowName is the name of the flow returned by NewTestFlow
	TestFlowName = "csat-feedback"

	ScreenWelcome  = "WELCOME"
	ScreenRating   = "RATING"
	ScreenThankYou = "THANK_YOU"
)

// NewTestFlow creates a valid three-screen satisfaction survey flow
func NewTestFlow() *api.Flow {
	now := time.Now()
	return &api.Flow{
		ID:      uuid.NewString(),
		Name:    TestFlowName,
		Version: "1.0",
		Status:  api.FlowStatusActive,
		FlowJSON: api.FlowJSON{
			Version: "7.2",
			Screens: []*api.Screen{
				{
					ID:    ScreenWelcome,
					Title: "Welcome",
					Data:  map[string]any{"title": "Feedback"},
				},
				{
					ID:    ScreenRating,
					Title: "Rate us",
					Data: map[string]any{
						"title":   "Feedback",
						"options": []any{"1", "2", "3", "4", "5"},
					},
				},
				{
					ID:       ScreenThankYou,
					Title:    "Thanks",
					Terminal: true,
				},
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestFlowNamed creates a test flow with a different name
func NewTestFlowNamed(name string) *api.Flow {
	f := NewTestFlow()
	f.Name = name
	return f
}
