package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/kode4food/flowgate/pkg/api"
)

// LoadFlowsFile reads a JSON array of flow definitions from path, validates
// each one and saves it into repo. It returns the number of flows loaded
func LoadFlowsFile(
	ctx context.Context, path string, repo FlowRepository,
) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read flows file: %w", err)
	}
	return LoadFlows(ctx, data, repo)
}

// LoadFlows decodes a JSON array of flow definitions, validates each one
// and saves it into repo. Nothing is saved if any definition is invalid
func LoadFlows(
	ctx context.Context, data []byte, repo FlowRepository,
) (int, error) {
	var flows []*api.Flow
	if err := json.Unmarshal(data, &flows); err != nil {
		return 0, fmt.Errorf("%w: decode flows: %w", api.ErrValidation, err)
	}

	seen := map[string]bool{}
	for i, f := range flows {
		if f == nil {
			return 0, fmt.Errorf("%w: flow %d is null", api.ErrValidation, i)
		}
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if f.Status == "" {
			f.Status = api.FlowStatusActive
		}
		if err := f.Validate(); err != nil {
			return 0, fmt.Errorf("flow %d: %w", i, err)
		}
		if seen[f.Name] {
			return 0, fmt.Errorf("%w: duplicate flow name %q",
				api.ErrValidation, f.Name)
		}
		seen[f.Name] = true
	}

	for _, f := range flows {
		if err := repo.Save(ctx, f); err != nil {
			return 0, fmt.Errorf("save flow %q: %w", f.Name, err)
		}
	}
	return len(flows), nil
}
