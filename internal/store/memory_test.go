package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/flowgate/internal/assert/helpers"
	"github.com/kode4food/flowgate/internal/session"
	"github.com/kode4food/flowgate/internal/store"
	"github.com/kode4food/flowgate/pkg/api"
)

var epoch = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func TestMemoryFlows(t *testing.T) {
	ctx := context.Background()
	flows := store.NewMemoryFlows()
	flow := helpers.NewTestFlow()

	_, err := flows.FindByName(ctx, flow.Name)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, err, api.ErrNotFound)

	require.NoError(t, flows.Save(ctx, flow))

	byName, err := flows.FindByName(ctx, flow.Name)
	assert.NoError(t, err)
	assert.Equal(t, flow, byName)

	byID, err := flows.FindByID(ctx, flow.ID)
	assert.NoError(t, err)
	assert.Equal(t, flow, byID)

	_, err = flows.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemorySessions(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemorySessions()
	s := session.New("s1", "f1", "tok-1", epoch).
		WithData(map[string]any{"a": "1"})

	require.NoError(t, sessions.Create(ctx, s))
	assert.ErrorIs(t, sessions.Create(ctx, s), store.ErrDuplicate)

	found, err := sessions.FindByFlowToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, s, found)

	// stored snapshots are isolated from caller maps
	found.Data["a"] = "changed"
	again, _ := sessions.FindByFlowToken(ctx, "tok-1")
	assert.Equal(t, "1", again.Data["a"])

	next := s.WithScreen("RATING")
	require.NoError(t, sessions.Update(ctx, next))
	found, _ = sessions.FindByFlowToken(ctx, "tok-1")
	assert.Equal(t, "RATING", found.CurrentScreen)

	missing := session.New("s2", "f1", "tok-2", epoch)
	assert.ErrorIs(t, sessions.Update(ctx, missing), store.ErrNotFound)

	_, err = sessions.FindByFlowToken(ctx, "tok-2")
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestMemorySessionsRejectsStaleWrite(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemorySessions()
	stale := session.New("s1", "f1", "tok-1", epoch)
	require.NoError(t, sessions.Create(ctx, stale))

	done, err := stale.Complete(epoch.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, sessions.Update(ctx, done))

	err = sessions.Update(ctx, stale.WithScreen("B"))
	assert.ErrorIs(t, err, session.ErrInvalidTransition)
	assert.ErrorIs(t, err, api.ErrValidation)

	found, err := sessions.FindByFlowToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, found.Status)
	assert.Empty(t, found.CurrentScreen)

	// the same terminal status may still be rewritten
	require.NoError(t, sessions.Update(ctx, done.WithPhoneNumber("1555")))
}

func TestMemorySessionsMarkExpired(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemorySessions()

	stale := session.New("s1", "f1", "stale", epoch)
	fresh := session.New("s2", "f1", "fresh", epoch.Add(time.Hour))
	done, err := session.New("s3", "f1", "done", epoch).Complete(epoch)
	require.NoError(t, err)

	for _, s := range []session.Session{stale, fresh, done} {
		require.NoError(t, sessions.Create(ctx, s))
	}

	n, err := sessions.MarkExpired(ctx, epoch.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := sessions.FindByFlowToken(ctx, "stale")
	assert.Equal(t, session.StatusExpired, got.Status)
	got, _ = sessions.FindByFlowToken(ctx, "fresh")
	assert.Equal(t, session.StatusActive, got.Status)
	got, _ = sessions.FindByFlowToken(ctx, "done")
	assert.Equal(t, session.StatusCompleted, got.Status)

	n, err = sessions.MarkExpired(ctx, epoch.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryResponses(t *testing.T) {
	ctx := context.Background()
	responses := store.NewMemoryResponses()

	_, err := responses.FindByFlowToken(ctx, "tok-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	first := &api.FlowResponseRecord{
		ID: "r1", FlowToken: "tok-1", ReceivedAt: epoch,
	}
	second := &api.FlowResponseRecord{
		ID: "r2", FlowToken: "tok-1", ReceivedAt: epoch.Add(time.Second),
	}
	require.NoError(t, responses.Create(ctx, second))
	require.NoError(t, responses.Create(ctx, first))

	latest, err := responses.FindByFlowToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "r2", latest.ID)
	assert.Equal(t, 2, responses.Count())
}

func TestMemoryEvents(t *testing.T) {
	ctx := context.Background()
	events := store.NewMemoryEvents()
	ev := &api.WebhookEvent{ID: "e1", EventType: "messages"}

	require.NoError(t, events.Create(ctx, ev))
	assert.ErrorIs(t, events.Create(ctx, ev), store.ErrDuplicate)

	ev.MarkProcessed(epoch)
	require.NoError(t, events.Update(ctx, ev))

	got, err := events.FindByID(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, got.Processed)
	assert.Len(t, events.All(), 1)

	err = events.Update(ctx, &api.WebhookEvent{ID: "nope"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = events.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestNewMemoryStore(t *testing.T) {
	s := store.NewMemory()
	assert.NotNil(t, s.Flows)
	assert.NotNil(t, s.Sessions)
	assert.NotNil(t, s.Responses)
	assert.NotNil(t, s.Events)
	assert.NoError(t, s.Close())
}
