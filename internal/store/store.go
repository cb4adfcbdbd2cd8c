package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kode4food/flowgate/internal/session"
	"github.com/kode4food/flowgate/pkg/api"
)

type (
	// FlowRepository provides access to flow definitions
	FlowRepository interface {
		FindByName(ctx context.Context, name string) (*api.Flow, error)
		FindByID(ctx context.Context, id string) (*api.Flow, error)
		Save(ctx context.Context, flow *api.Flow) error
	}

	// SessionRepository persists session snapshots, one per flow token
	SessionRepository interface {
		Create(ctx context.Context, s session.Session) error
		Update(ctx context.Context, s session.Session) error
		FindByFlowToken(
			ctx context.Context, token string,
		) (session.Session, error)
		MarkExpired(ctx context.Context, before time.Time) (int, error)
	}

	// ResponseRepository persists the data submitted by completed flows
	ResponseRepository interface {
		Create(ctx context.Context, r *api.FlowResponseRecord) error
		FindByFlowToken(
			ctx context.Context, token string,
		) (*api.FlowResponseRecord, error)
	}

	// EventRepository persists the webhook audit trail
	EventRepository interface {
		Create(ctx context.Context, e *api.WebhookEvent) error
		Update(ctx context.Context, e *api.WebhookEvent) error
		FindByID(ctx context.Context, id string) (*api.WebhookEvent, error)
	}

	// Store groups the repositories of one backend
	Store struct {
		Flows     FlowRepository
		Sessions  SessionRepository
		Responses ResponseRepository
		Events    EventRepository
		closer    func() error
	}
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = fmt.Errorf("record %w", api.ErrNotFound)

	// ErrDuplicate is returned when a record's unique key already exists
	ErrDuplicate = errors.New("record already exists")
)

var _ session.Expirer = (SessionRepository)(nil)

// Close releases the resources held by the backend
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func notFound(kind, key string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, key)
}
