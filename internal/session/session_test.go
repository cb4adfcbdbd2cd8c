package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/flowgate/internal/session"
	"github.com/kode4food/flowgate/pkg/api"
)

func TestNewSession(t *testing.T) {
	s := session.New("id", "flow", "tok", epoch)

	assert.Equal(t, session.StatusActive, s.Status)
	assert.True(t, s.IsActive())
	assert.False(t, s.IsTerminal())
	assert.Equal(t, epoch, s.StartedAt)
	assert.Equal(t, epoch, s.LastActivityAt)
	assert.NotNil(t, s.Data)
	assert.Empty(t, s.CurrentScreen)
}

func TestWithDataMerges(t *testing.T) {
	s := session.New("id", "flow", "tok", epoch).
		WithData(map[string]any{"a": 1, "b": 2})
	merged := s.WithData(map[string]any{"b": 3, "c": 4})

	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, merged.Data)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, s.Data)
	assert.Equal(t, merged.Data, merged.WithData(nil).Data)
}

func TestWithPhoneNumber(t *testing.T) {
	s := session.New("id", "flow", "tok", epoch)

	withPhone := s.WithPhoneNumber("15550001111")
	assert.Equal(t, "15550001111", withPhone.PhoneNumber)
	assert.Empty(t, s.PhoneNumber)

	kept := withPhone.WithPhoneNumber("19990000000")
	assert.Equal(t, "15550001111", kept.PhoneNumber)
	assert.Equal(t, "15550001111", withPhone.WithPhoneNumber("").PhoneNumber)
}

func TestStatusTransitions(t *testing.T) {
	later := epoch.Add(time.Hour)
	active := session.New("id", "flow", "tok", epoch)

	completed, err := active.Complete(later)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, completed.Status)
	assert.True(t, completed.IsTerminal())
	assert.Equal(t, later, completed.LastActivityAt)

	again, err := completed.Complete(later.Add(time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, completed, again)

	_, err = completed.Expire(later)
	assert.ErrorIs(t, err, session.ErrInvalidTransition)
	assert.ErrorIs(t, err, api.ErrValidation)

	expired, err := active.Expire(later)
	require.NoError(t, err)
	assert.Equal(t, session.StatusExpired, expired.Status)

	_, err = expired.Complete(later)
	assert.ErrorIs(t, err, session.ErrInvalidTransition)

	assert.Equal(t, session.StatusActive, active.Status)
}

func TestTouch(t *testing.T) {
	s := session.New("id", "flow", "tok", epoch)
	assert.Equal(t, epoch.Add(time.Minute), s.Touch(epoch.Add(time.Minute)).
		LastActivityAt)
	assert.Equal(t, epoch, s.LastActivityAt)
}

func TestCheckReplace(t *testing.T) {
	active := session.New("id", "flow", "tok", epoch)
	completed, err := active.Complete(epoch)
	require.NoError(t, err)
	expired, err := active.Expire(epoch)
	require.NoError(t, err)
	failed := active
	failed.Status = session.StatusError

	assert.NoError(t, active.CheckReplace(active.WithScreen("B")))
	assert.NoError(t, active.CheckReplace(completed))
	assert.NoError(t, active.CheckReplace(expired))
	assert.NoError(t, active.CheckReplace(failed))
	assert.NoError(t, completed.CheckReplace(completed.WithPhoneNumber("1")))

	for _, cur := range []session.Session{completed, expired, failed} {
		err := cur.CheckReplace(active)
		assert.ErrorIs(t, err, session.ErrInvalidTransition)
		assert.ErrorIs(t, err, api.ErrValidation)
	}
	assert.ErrorIs(t,
		completed.CheckReplace(expired), session.ErrInvalidTransition,
	)
}
