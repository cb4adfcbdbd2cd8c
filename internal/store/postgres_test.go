package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/flowgate/internal/session"
	"github.com/kode4food/flowgate/internal/store"
	"github.com/kode4food/flowgate/pkg/api"
)

var (
	flowCols = []string{
		"id", "name", "version", "status", "description", "flow_json",
		"created_at", "updated_at",
	}
	sessionCols = []string{
		"id", "flow_id", "flow_token", "phone_number", "current_screen",
		"session_data", "status", "error_message", "started_at",
		"last_activity_at", "completed_at",
	}
	responseCols = []string{
		"id", "session_id", "flow_id", "flow_token", "phone_number",
		"response_data", "raw_message", "received_at",
	}
	eventCols = []string{
		"id", "event_type", "raw_payload", "signature", "signature_valid",
		"processed", "callback_sent", "callback_url", "callback_status_code",
		"callback_error", "error", "received_at", "processed_at",
		"callback_sent_at",
	}
)

func newMockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return store.NewPostgresWithDB(db), mock
}

func TestPostgresFlowsFindByName(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`(?s)SELECT .* FROM flows WHERE name = \$1`).
		WithArgs("csat").
		WillReturnRows(sqlmock.NewRows(flowCols).AddRow(
			"f1", "csat", "1.0", "active", "",
			[]byte(`{"version":"7.2","screens":[{"id":"A","terminal":true}]}`),
			epoch, epoch,
		))

	f, err := s.Flows.FindByName(ctx, "csat")
	require.NoError(t, err)
	assert.Equal(t, "f1", f.ID)
	assert.Equal(t, api.FlowStatusActive, f.Status)
	assert.Equal(t, []string{"A"}, f.ScreenIDs())
	assert.True(t, f.IsTerminal("A"))

	mock.ExpectQuery(`(?s)SELECT .* FROM flows WHERE id = \$1`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(flowCols))

	_, err = s.Flows.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgresFlowsSave(t *testing.T) {
	s, mock := newMockStore(t)

	upsert := `(?s)INSERT INTO flows .* ON CONFLICT \(name\) .* RETURNING id`
	mock.ExpectQuery(upsert).
		WithArgs(
			"", "csat", "1.0", "active", "", sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("stored-id"))

	f := &api.Flow{Name: "csat", Version: "1.0", Status: api.FlowStatusActive}
	require.NoError(t, s.Flows.Save(context.Background(), f))
	assert.Equal(t, "stored-id", f.ID)
	assert.False(t, f.CreatedAt.IsZero())
}

func TestPostgresSessionsCreate(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	sess := session.New("s1", "f1", "tok-1", epoch).
		WithData(map[string]any{"rating": "5"})

	mock.ExpectExec(`INSERT INTO flow_sessions`).
		WithArgs(
			"s1", "f1", "tok-1", "", "", `{"rating":"5"}`, "active", "",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Sessions.Create(ctx, sess))

	mock.ExpectExec(`INSERT INTO flow_sessions`).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	assert.ErrorIs(t, s.Sessions.Create(ctx, sess), store.ErrDuplicate)

	mock.ExpectExec(`INSERT INTO flow_sessions`).
		WillReturnError(errors.New("db is down"))
	err := s.Sessions.Create(ctx, sess)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrDuplicate)
}

func TestPostgresSessionsUpdate(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	sess := session.New("s1", "f1", "tok-1", epoch).WithScreen("B")

	mock.ExpectExec(`UPDATE flow_sessions SET`).
		WithArgs(
			"", "B", "{}", "active", "", sqlmock.AnyArg(), sqlmock.AnyArg(),
			"s1",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Sessions.Update(ctx, sess))

	mock.ExpectExec(`UPDATE flow_sessions SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM flow_sessions WHERE id = \$1`).
		WithArgs("s1").
		WillReturnError(sql.ErrNoRows)
	assert.ErrorIs(t, s.Sessions.Update(ctx, sess), store.ErrNotFound)
}

func TestPostgresSessionsUpdateStaleStatus(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	stale := session.New("s1", "f1", "tok-1", epoch).WithScreen("B")

	mock.ExpectExec(
		`(?s)UPDATE flow_sessions SET .* ` +
			`WHERE id = \$8 AND \(status = 'active' OR status = \$4\)`,
	).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM flow_sessions WHERE id = \$1`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))

	err := s.Sessions.Update(ctx, stale)
	assert.ErrorIs(t, err, session.ErrInvalidTransition)
	assert.ErrorIs(t, err, api.ErrValidation)
}

func TestPostgresSessionsFindByFlowToken(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	done := epoch.Add(time.Minute)

	mock.ExpectQuery(`(?s)SELECT .* FROM flow_sessions WHERE flow_token = \$1`).
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows(sessionCols).AddRow(
			"s1", "f1", "tok-1", "15550001111", "THANKS",
			[]byte(`{"rating":"5"}`), "completed", "", epoch, done, done,
		))

	got, err := s.Sessions.FindByFlowToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, got.Status)
	assert.Equal(t, "15550001111", got.PhoneNumber)
	assert.Equal(t, map[string]any{"rating": "5"}, got.Data)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, done, *got.CompletedAt)

	mock.ExpectQuery(`(?s)SELECT .* FROM flow_sessions`).
		WithArgs("tok-2").
		WillReturnRows(sqlmock.NewRows(sessionCols).AddRow(
			"s2", "f1", "tok-2", "", "", []byte(`{}`), "active", "",
			epoch, epoch, nil,
		))

	got, err = s.Sessions.FindByFlowToken(ctx, "tok-2")
	require.NoError(t, err)
	assert.Nil(t, got.CompletedAt)
	assert.True(t, got.IsActive())

	mock.ExpectQuery(`(?s)SELECT .* FROM flow_sessions`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = s.Sessions.FindByFlowToken(ctx, "missing")
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestPostgresSessionsMarkExpired(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`(?s)UPDATE flow_sessions SET .* WHERE status = \$2`).
		WithArgs("expired", "active", epoch).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.Sessions.MarkExpired(context.Background(), epoch)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPostgresResponses(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	rec := &api.FlowResponseRecord{
		ID:           "r1",
		SessionID:    "s1",
		FlowID:       "f1",
		FlowToken:    "tok-1",
		PhoneNumber:  "15550001111",
		ResponseData: map[string]any{"rating": "5"},
		ReceivedAt:   epoch,
	}

	mock.ExpectExec(`INSERT INTO flow_responses`).
		WithArgs(
			"r1", "s1", "f1", "tok-1", "15550001111", `{"rating":"5"}`,
			nil, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Responses.Create(ctx, rec))

	mock.ExpectQuery(`(?s)SELECT .* FROM flow_responses .* LIMIT 1`).
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows(responseCols).AddRow(
			"r1", "s1", "f1", "tok-1", "15550001111",
			[]byte(`{"rating":"5"}`), []byte(`{"from":"15550001111"}`), epoch,
		))

	got, err := s.Responses.FindByFlowToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "5", got.ResponseData["rating"])
	assert.JSONEq(t, `{"from":"15550001111"}`, string(got.RawMessage))

	mock.ExpectQuery(`(?s)SELECT .* FROM flow_responses`).
		WithArgs("tok-2").
		WillReturnRows(sqlmock.NewRows(responseCols))
	_, err = s.Responses.FindByFlowToken(ctx, "tok-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgresEvents(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	ev := &api.WebhookEvent{
		ID:             "e1",
		EventType:      "messages",
		RawPayload:     []byte(`{"object":"x"}`),
		Signature:      "sha256=abc",
		SignatureValid: true,
		ReceivedAt:     epoch,
	}

	mock.ExpectExec(`INSERT INTO webhook_events`).
		WithArgs(
			"e1", "messages", `{"object":"x"}`, "sha256=abc", true, false,
			false, "", nil, "", "", sqlmock.AnyArg(), nil, nil,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Events.Create(ctx, ev))

	ev.MarkProcessed(epoch)
	ev.MarkCallbackSent(202, epoch)
	mock.ExpectExec(`UPDATE webhook_events SET`).
		WithArgs(
			true, true, true, "", int64(202), "", "", sqlmock.AnyArg(),
			sqlmock.AnyArg(), "e1",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Events.Update(ctx, ev))

	mock.ExpectExec(`UPDATE webhook_events SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.Events.Update(ctx, ev), store.ErrNotFound)

	mock.ExpectQuery(`(?s)SELECT .* FROM webhook_events WHERE id = \$1`).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(eventCols).AddRow(
			"e1", "messages", []byte(`{"object":"x"}`), "sha256=abc", true,
			true, true, "http://cb", int64(202), "", "", epoch, epoch, nil,
		))

	got, err := s.Events.FindByID(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, got.Processed)
	require.NotNil(t, got.CallbackStatusCode)
	assert.Equal(t, 202, *got.CallbackStatusCode)
	require.NotNil(t, got.ProcessedAt)
	assert.Nil(t, got.CallbackSentAt)
	assert.JSONEq(t, `{"object":"x"}`, string(got.RawPayload))
}
