package log_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flowgate/pkg/api"
	"github.com/kode4food/flowgate/pkg/log"
)

type errStub string

func TestFlowToken(t *testing.T) {
	attr := log.FlowToken("tok-123")
	assertAttrEqual(t, attr, "flow_token", "tok-123")
}

func TestFlowName(t *testing.T) {
	attr := log.FlowName("csat-feedback")
	assertAttrEqual(t, attr, "flow_name", "csat-feedback")
}

func TestFlowID(t *testing.T) {
	attr := log.FlowID("flow-1")
	assertAttrEqual(t, attr, "flow_id", "flow-1")
}

func TestSessionID(t *testing.T) {
	attr := log.SessionID("sess-1")
	assertAttrEqual(t, attr, "session_id", "sess-1")
}

func TestEventID(t *testing.T) {
	attr := log.EventID("evt-1")
	assertAttrEqual(t, attr, "event_id", "evt-1")
}

func TestScreen(t *testing.T) {
	attr := log.Screen("WELCOME")
	assertAttrEqual(t, attr, "screen", "WELCOME")
}

func TestStatus(t *testing.T) {
	attr := log.Status(api.FlowStatusActive)
	assertAttrEqual(t, attr, "status", "active")
}

func TestURL(t *testing.T) {
	attr := log.URL("http://example.com/hook")
	assertAttrEqual(t, attr, "url", "http://example.com/hook")
}

func TestStatusCode(t *testing.T) {
	attr := log.StatusCode(502)
	assert.Equal(t, "status_code", attr.Key)
	assert.Equal(t, int64(502), attr.Value.Int64())
}

func TestError(t *testing.T) {
	attr := log.Error(nil)
	assertAttrEqual(t, attr, "error", "")

	attr = log.Error(errStub("boom"))
	assertAttrEqual(t, attr, "error", "boom")
}

func TestErrorString(t *testing.T) {
	attr := log.ErrorString("badness")
	assertAttrEqual(t, attr, "error", "badness")
}

func (e errStub) Error() string { return string(e) }

func assertAttrEqual(t *testing.T, attr slog.Attr, key, value string) {
	t.Helper()
	assert.Equal(t, key, attr.Key)
	assert.Equal(t, value, attr.Value.String())
}
