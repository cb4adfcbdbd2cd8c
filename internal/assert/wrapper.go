package assert

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flowgate/internal/config"
	"github.com/kode4food/flowgate/internal/session"
	"github.com/kode4food/flowgate/pkg/api"
)

// Wrapper wraps testify assertions with flowgate-specific helpers
type Wrapper struct {
	*testing.T
	*assert.Assertions
	Require *assert.Assertions
}

// DefaultRetryInterval is the default polling interval for Eventually checks
const DefaultRetryInterval = 10 * time.Millisecond

// New creates a new test assertion wrapper with both assert and require from
// testify plus flowgate-specific helpers
func New(t *testing.T) *Wrapper {
	return &Wrapper{
		T:          t,
		Assertions: assert.New(t),
		Require:    assert.New(t),
	}
}

// FlowValid asserts that a flow definition is valid
func (w *Wrapper) FlowValid(f *api.Flow) {
	w.Helper()
	w.NoError(f.Validate())
	w.NotEmpty(f.Name)
	_, ok := f.FirstScreen()
	w.True(ok)
}

// FlowInvalid asserts that a flow definition is invalid, that the error is
// classified as a validation error, and that it wraps the expected cause
func (w *Wrapper) FlowInvalid(f *api.Flow, expected error) {
	w.Helper()
	err := f.Validate()
	w.ErrorIs(err, api.ErrValidation)
	if expected != nil {
		w.ErrorIs(err, expected)
	}
}

// SessionStatus asserts the status of a session
func (w *Wrapper) SessionStatus(s session.Session, expected session.Status) {
	w.Helper()
	w.Equal(expected, s.Status)
}

// SessionScreen asserts the current screen of a session
func (w *Wrapper) SessionScreen(s session.Session, expected string) {
	w.Helper()
	w.Equal(expected, s.CurrentScreen)
}

// ErrorClass asserts that err is classified under the given sentinel
func (w *Wrapper) ErrorClass(err, class error) {
	w.Helper()
	w.Error(err)
	w.True(errors.Is(err, class), "expected %v to wrap %v", err, class)
}

// ConfigValid asserts that a configuration is valid
func (w *Wrapper) ConfigValid(cfg *config.Config) {
	w.Helper()
	w.NoError(cfg.Validate())
	w.True(cfg.APIPort > 0 && cfg.APIPort <= 65535)
	w.True(cfg.FlowEndpointTimeout > 0)
}

// ConfigInvalid asserts that a configuration is invalid
func (w *Wrapper) ConfigInvalid(cfg *config.Config, contains string) {
	w.Helper()
	err := cfg.Validate()
	w.Error(err)
	if err != nil && contains != "" {
		w.Contains(err.Error(), contains)
	}
}

// Eventually runs a condition repeatedly until it passes or times out
func (w *Wrapper) Eventually(
	condition func() bool, timeout time.Duration, msg string, args ...any,
) {
	w.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(DefaultRetryInterval)
	}
	w.Fail(msg, args...)
}
