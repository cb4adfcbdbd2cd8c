package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/flowgate/internal/store"
	"github.com/kode4food/flowgate/pkg/api"
)

const flowsJSON = `[
	{
		"name": "csat-feedback",
		"version": "1.0",
		"flow_json": {
			"version": "7.2",
			"screens": [
				{"id": "RATING", "data": {"title": "Rate us"}},
				{"id": "THANKS", "terminal": true}
			]
		}
	},
	{
		"id": "fixed-id",
		"name": "onboarding",
		"version": "2.3",
		"status": "draft",
		"flow_json": {
			"version": "7.2",
			"screens": [{"id": "DONE", "terminal": true}]
		}
	}
]`

func TestLoadFlowsFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "flows.json")
	require.NoError(t, os.WriteFile(path, []byte(flowsJSON), 0o600))

	flows := store.NewMemoryFlows()
	n, err := store.LoadFlowsFile(ctx, path, flows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	csat, err := flows.FindByName(ctx, "csat-feedback")
	require.NoError(t, err)
	assert.NotEmpty(t, csat.ID)
	assert.Equal(t, api.FlowStatusActive, csat.Status)
	assert.Equal(t, []string{"RATING", "THANKS"}, csat.ScreenIDs())
	assert.Equal(t, "Rate us", csat.FlowJSON.Screens[0].Data["title"])

	onboarding, err := flows.FindByID(ctx, "fixed-id")
	require.NoError(t, err)
	assert.Equal(t, api.FlowStatusDraft, onboarding.Status)
}

func TestLoadFlowsErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		data string
	}{
		{"not_json", `{`},
		{"null_entry", `[null]`},
		{"invalid_version", `[{"name":"x","version":"1",
			"flow_json":{"screens":[{"id":"A","terminal":true}]}}]`},
		{"no_terminal", `[{"name":"x","version":"1.0",
			"flow_json":{"screens":[{"id":"A"}]}}]`},
		{"duplicate_name", `[
			{"name":"x","version":"1.0",
				"flow_json":{"screens":[{"id":"A","terminal":true}]}},
			{"name":"x","version":"1.1",
				"flow_json":{"screens":[{"id":"A","terminal":true}]}}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flows := store.NewMemoryFlows()
			n, err := store.LoadFlows(ctx, []byte(tt.data), flows)
			assert.ErrorIs(t, err, api.ErrValidation)
			assert.Zero(t, n)

			_, err = flows.FindByName(ctx, "x")
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestLoadFlowsFileMissing(t *testing.T) {
	_, err := store.LoadFlowsFile(
		context.Background(),
		filepath.Join(t.TempDir(), "missing.json"),
		store.NewMemoryFlows(),
	)
	assert.Error(t, err)
}
