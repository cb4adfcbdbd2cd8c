package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/kode4food/flowgate/internal/session"
	"github.com/kode4food/flowgate/internal/store/migrations"
	"github.com/kode4food/flowgate/pkg/api"
)

type (
	// DBTX is the subset of database/sql used by the repositories. Both
	// *sql.DB and *sql.Tx satisfy it
	DBTX interface {
		ExecContext(
			ctx context.Context, query string, args ...any,
		) (sql.Result, error)
		QueryContext(
			ctx context.Context, query string, args ...any,
		) (*sql.Rows, error)
		QueryRowContext(
			ctx context.Context, query string, args ...any,
		) *sql.Row
	}

	// PostgresFlows is a FlowRepository backed by PostgreSQL
	PostgresFlows struct {
		db DBTX
	}

	// PostgresSessions is a SessionRepository backed by PostgreSQL
	PostgresSessions struct {
		db DBTX
	}

	// PostgresResponses is a ResponseRepository backed by PostgreSQL
	PostgresResponses struct {
		db DBTX
	}

	// PostgresEvents is an EventRepository backed by PostgreSQL
	PostgresEvents struct {
		db DBTX
	}

	rowScanner interface {
		Scan(dest ...any) error
	}
)

const uniqueViolation = "23505"

const (
	flowColumns = `id, name, version, status, description, flow_json,
		created_at, updated_at`

	sessionColumns = `id, flow_id, flow_token, phone_number, current_screen,
		session_data, status, error_message, started_at, last_activity_at,
		completed_at`

	responseColumns = `id, session_id, flow_id, flow_token, phone_number,
		response_data, raw_message, received_at`

	eventColumns = `id, event_type, raw_payload, signature, signature_valid,
		processed, callback_sent, callback_url, callback_status_code,
		callback_error, error, received_at, processed_at, callback_sent_at`
)

var (
	_ FlowRepository     = (*PostgresFlows)(nil)
	_ SessionRepository  = (*PostgresSessions)(nil)
	_ ResponseRepository = (*PostgresResponses)(nil)
	_ EventRepository    = (*PostgresEvents)(nil)
)

// NewPostgres opens a PostgreSQL connection pool through pgx, applies the
// embedded migrations and returns a Store over it
func NewPostgres(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	res := NewPostgresWithDB(db)
	res.closer = db.Close
	return res, nil
}

// NewPostgresWithDB returns a Store whose repositories share db
func NewPostgresWithDB(db DBTX) *Store {
	return &Store{
		Flows:     &PostgresFlows{db: db},
		Sessions:  &PostgresSessions{db: db},
		Responses: &PostgresResponses{db: db},
		Events:    &PostgresEvents{db: db},
	}
}

// RunMigrations applies the embedded schema migrations with goose
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// FindByName returns the flow with the given name
func (r *PostgresFlows) FindByName(
	ctx context.Context, name string,
) (*api.Flow, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+flowColumns+` FROM flows WHERE name = $1`, name,
	)
	f, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("flow", name)
	}
	return f, err
}

// FindByID returns the flow with the given ID
func (r *PostgresFlows) FindByID(
	ctx context.Context, id string,
) (*api.Flow, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+flowColumns+` FROM flows WHERE id = $1`, id,
	)
	f, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("flow", id)
	}
	return f, err
}

// Save upserts the flow by name. The stored ID is written back to flow
func (r *PostgresFlows) Save(ctx context.Context, flow *api.Flow) error {
	doc, err := json.Marshal(flow.FlowJSON)
	if err != nil {
		return fmt.Errorf("marshal flow_json: %w", err)
	}
	now := time.Now()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}
	flow.UpdatedAt = now

	query := `
		INSERT INTO flows (` + flowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name)
		DO UPDATE SET
			version = EXCLUDED.version,
			status = EXCLUDED.status,
			description = EXCLUDED.description,
			flow_json = EXCLUDED.flow_json,
			updated_at = EXCLUDED.updated_at
		RETURNING id`

	var id string
	err = r.db.QueryRowContext(ctx, query,
		flow.ID, flow.Name, flow.Version, string(flow.Status),
		flow.Description, string(doc), flow.CreatedAt, flow.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	flow.ID = id
	return nil
}

// Create inserts a new session. ErrDuplicate is returned when the flow
// token already has a session
func (r *PostgresSessions) Create(
	ctx context.Context, s session.Session,
) error {
	data, err := marshalMap(s.Data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO flow_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.FlowID, s.FlowToken, s.PhoneNumber, s.CurrentScreen,
		data, string(s.Status), s.ErrorMessage, s.StartedAt,
		s.LastActivityAt, s.CompletedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: session for flow token", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Update writes the mutable fields of an existing session. The write only
// applies while the stored session is active or already carries the same
// status
func (r *PostgresSessions) Update(
	ctx context.Context, s session.Session,
) error {
	data, err := marshalMap(s.Data)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE flow_sessions SET
			phone_number = $1,
			current_screen = $2,
			session_data = $3,
			status = $4,
			error_message = $5,
			last_activity_at = $6,
			completed_at = $7,
			updated_at = NOW()
		WHERE id = $8 AND (status = 'active' OR status = $4)`,
		s.PhoneNumber, s.CurrentScreen, data, string(s.Status),
		s.ErrorMessage, s.LastActivityAt, s.CompletedAt, s.ID,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return r.rejectUpdate(ctx, s)
	}
	return nil
}

func (r *PostgresSessions) rejectUpdate(
	ctx context.Context, s session.Session,
) error {
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM flow_sessions WHERE id = $1`, s.ID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("session", s.ID)
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	cur := s
	cur.Status = session.Status(status)
	if err := cur.CheckReplace(s); err != nil {
		return err
	}
	return notFound("session", s.ID)
}

// FindByFlowToken returns the session for a flow token
func (r *PostgresSessions) FindByFlowToken(
	ctx context.Context, token string,
) (session.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM flow_sessions WHERE flow_token = $1`,
		token,
	)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, notFound("session for flow token", token)
	}
	return s, err
}

// MarkExpired expires every active session last touched before the cutoff
func (r *PostgresSessions) MarkExpired(
	ctx context.Context, before time.Time,
) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE flow_sessions SET
			status = $1,
			updated_at = NOW()
		WHERE status = $2 AND last_activity_at < $3`,
		string(session.StatusExpired), string(session.StatusActive), before,
	)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return int(n), nil
}

// Create inserts a response record
func (r *PostgresResponses) Create(
	ctx context.Context, rec *api.FlowResponseRecord,
) error {
	data, err := marshalMap(rec.ResponseData)
	if err != nil {
		return err
	}
	var raw any
	if len(rec.RawMessage) > 0 {
		raw = string(rec.RawMessage)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO flow_responses (`+responseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.SessionID, rec.FlowID, rec.FlowToken, rec.PhoneNumber,
		data, raw, rec.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FindByFlowToken returns the most recently received response for a token
func (r *PostgresResponses) FindByFlowToken(
	ctx context.Context, token string,
) (*api.FlowResponseRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+responseColumns+` FROM flow_responses
		WHERE flow_token = $1 ORDER BY received_at DESC LIMIT 1`,
		token,
	)

	var rec api.FlowResponseRecord
	var data, raw []byte
	err := row.Scan(
		&rec.ID, &rec.SessionID, &rec.FlowID, &rec.FlowToken,
		&rec.PhoneNumber, &data, &raw, &rec.ReceivedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("response for flow token", token)
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal(data, &rec.ResponseData); err != nil {
		return nil, fmt.Errorf("unmarshal response_data: %w", err)
	}
	if len(raw) > 0 {
		rec.RawMessage = raw
	}
	return &rec, nil
}

// Create inserts a webhook event
func (r *PostgresEvents) Create(
	ctx context.Context, e *api.WebhookEvent,
) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webhook_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.EventType, string(e.RawPayload), e.Signature,
		e.SignatureValid, e.Processed, e.CallbackSent, e.CallbackURL,
		e.CallbackStatusCode, e.CallbackError, e.Error, e.ReceivedAt,
		e.ProcessedAt, e.CallbackSentAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: webhook event %s", ErrDuplicate, e.ID)
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Update writes the processing outcome of a webhook event
func (r *PostgresEvents) Update(
	ctx context.Context, e *api.WebhookEvent,
) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events SET
			signature_valid = $1,
			processed = $2,
			callback_sent = $3,
			callback_url = $4,
			callback_status_code = $5,
			callback_error = $6,
			error = $7,
			processed_at = $8,
			callback_sent_at = $9
		WHERE id = $10`,
		e.SignatureValid, e.Processed, e.CallbackSent, e.CallbackURL,
		e.CallbackStatusCode, e.CallbackError, e.Error, e.ProcessedAt,
		e.CallbackSentAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res, "webhook event", e.ID)
}

// FindByID returns a webhook event
func (r *PostgresEvents) FindByID(
	ctx context.Context, id string,
) (*api.WebhookEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM webhook_events WHERE id = $1`, id,
	)

	var e api.WebhookEvent
	var raw []byte
	var statusCode sql.NullInt64
	var processedAt, sentAt sql.NullTime
	err := row.Scan(
		&e.ID, &e.EventType, &raw, &e.Signature, &e.SignatureValid,
		&e.Processed, &e.CallbackSent, &e.CallbackURL, &statusCode,
		&e.CallbackError, &e.Error, &e.ReceivedAt, &processedAt, &sentAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("webhook event", id)
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	e.RawPayload = raw
	if statusCode.Valid {
		code := int(statusCode.Int64)
		e.CallbackStatusCode = &code
	}
	e.ProcessedAt = nullTime(processedAt)
	e.CallbackSentAt = nullTime(sentAt)
	return &e, nil
}

func scanFlow(row rowScanner) (*api.Flow, error) {
	var f api.Flow
	var status string
	var doc []byte
	err := row.Scan(
		&f.ID, &f.Name, &f.Version, &status, &f.Description, &doc,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.Status = api.FlowStatus(status)
	if err := json.Unmarshal(doc, &f.FlowJSON); err != nil {
		return nil, fmt.Errorf("unmarshal flow_json: %w", err)
	}
	return &f, nil
}

func scanSession(row rowScanner) (session.Session, error) {
	var s session.Session
	var status string
	var data []byte
	var completedAt sql.NullTime
	err := row.Scan(
		&s.ID, &s.FlowID, &s.FlowToken, &s.PhoneNumber, &s.CurrentScreen,
		&data, &status, &s.ErrorMessage, &s.StartedAt, &s.LastActivityAt,
		&completedAt,
	)
	if err != nil {
		return session.Session{}, err
	}
	s.Status = session.Status(status)
	s.CompletedAt = nullTime(completedAt)
	s.Data = map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.Data); err != nil {
			return session.Session{}, fmt.Errorf(
				"unmarshal session_data: %w", err,
			)
		}
	}
	return s, nil
}

func marshalMap(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal json: %w", err)
	}
	return string(data), nil
}

func expectOneRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
