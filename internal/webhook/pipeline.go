package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kode4food/flowgate/internal/session"
	"github.com/kode4food/flowgate/internal/store"
	"github.com/kode4food/flowgate/pkg/api"
	"github.com/kode4food/flowgate/pkg/log"
)

type (
	// Archiver keeps a copy of raw webhook bodies outside the database
	Archiver interface {
		Archive(
			ctx context.Context, eventID string, raw []byte,
		) (string, error)
	}

	// Dispatcher relays completion data to the system of record
	Dispatcher interface {
		DeliverWithRetries(
			ctx context.Context, url string, payload *api.CallbackPayload,
			maxRetries int,
		) (int, error)
	}

	// Clock returns the current time
	Clock func() time.Time

	// Dependencies holds the collaborators of a Pipeline. Archiver is
	// optional
	Dependencies struct {
		Sessions   store.SessionRepository
		Responses  store.ResponseRepository
		Events     store.EventRepository
		Dispatcher Dispatcher
		Archiver   Archiver
		Clock      Clock
	}

	// Config holds the settings of a Pipeline
	Config struct {
		AppSecret   string
		CallbackURL string
		MaxRetries  int
	}

	// Pipeline authenticates, records and applies platform webhooks
	Pipeline struct {
		sessions   store.SessionRepository
		responses  store.ResponseRepository
		events     store.EventRepository
		dispatcher Dispatcher
		archiver   Archiver
		clock      Clock
		cfg        Config
	}
)

var ErrRecordEvent = errors.New("failed to record webhook event")

// NewPipeline creates a webhook pipeline
func NewPipeline(deps Dependencies, cfg Config) *Pipeline {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Pipeline{
		sessions:   deps.Sessions,
		responses:  deps.Responses,
		events:     deps.Events,
		dispatcher: deps.Dispatcher,
		archiver:   deps.Archiver,
		clock:      clock,
		cfg:        cfg,
	}
}

// Process handles one webhook delivery. Nothing is recorded when the
// signature does not verify. Otherwise the event is stored before any
// message is applied and updated with the outcome afterward, even when
// applying fails. Callback failures are recorded on the event and never
// fail processing
func (p *Pipeline) Process(
	ctx context.Context, raw []byte, signature string,
) error {
	if err := VerifyOrFail(raw, signature, p.cfg.AppSecret); err != nil {
		slog.Warn("Webhook signature rejected",
			slog.Bool("signature_present", signature != ""))
		return err
	}

	ev := &api.WebhookEvent{
		ID:             uuid.NewString(),
		EventType:      EventType(raw),
		RawPayload:     PayloadJSON(raw),
		Signature:      signature,
		SignatureValid: true,
		ReceivedAt:     p.clock(),
	}
	if err := p.events.Create(ctx, ev); err != nil {
		return fmt.Errorf("%w: %w", ErrRecordEvent, err)
	}

	p.archive(ctx, ev.ID, raw)

	start := p.clock()
	err := p.apply(ctx, raw, ev)
	if err != nil {
		ev.Error = err.Error()
		slog.Error("Webhook processing failed",
			log.EventID(ev.ID),
			slog.Duration("duration", p.clock().Sub(start)),
			log.Error(err))
	} else {
		ev.MarkProcessed(p.clock())
		slog.Info("Webhook processed",
			log.EventID(ev.ID),
			slog.Duration("duration", p.clock().Sub(start)))
	}

	if uerr := p.events.Update(ctx, ev); uerr != nil {
		slog.Error("Failed to update webhook event",
			log.EventID(ev.ID),
			log.Error(uerr))
		return errors.Join(err, fmt.Errorf("%w: %w", ErrRecordEvent, uerr))
	}
	return err
}

func (p *Pipeline) archive(ctx context.Context, id string, raw []byte) {
	if p.archiver == nil {
		return
	}
	key, err := p.archiver.Archive(ctx, id, raw)
	if err != nil {
		slog.Warn("Failed to archive webhook payload",
			log.EventID(id),
			log.Error(err))
		return
	}
	slog.Debug("Webhook payload archived",
		log.EventID(id),
		slog.String("key", key))
}

func (p *Pipeline) apply(
	ctx context.Context, raw []byte, ev *api.WebhookEvent,
) error {
	var payload api.WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: %w", ErrPayload, err)
	}

	var errs []error
	for _, msg := range FlowReplies(&payload) {
		if err := p.applyReply(ctx, raw, msg, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) applyReply(
	ctx context.Context, raw []byte, msg *api.WebhookMessage,
	ev *api.WebhookEvent,
) error {
	reply, err := DecodeFlowReply(msg)
	if err != nil {
		return err
	}

	sess, err := p.sessions.FindByFlowToken(ctx, reply.FlowToken)
	if isNotFound(err) {
		slog.Warn("Session not found for flow token",
			log.FlowToken(reply.FlowToken))
		return fmt.Errorf("%w: flow token %s",
			ErrSessionNotFound, reply.FlowToken)
	}
	if err != nil {
		return err
	}

	dup, err := p.isDuplicate(ctx, sess)
	if err != nil {
		return err
	}
	if dup {
		slog.Info("Duplicate flow reply ignored",
			log.FlowToken(reply.FlowToken),
			log.SessionID(sess.ID))
		return nil
	}

	now := p.clock()
	next, err := sess.WithPhoneNumber(reply.From).Complete(now)
	if err != nil {
		return err
	}
	if err := p.sessions.Update(ctx, next); err != nil {
		return err
	}

	rec := &api.FlowResponseRecord{
		ID:           uuid.NewString(),
		SessionID:    next.ID,
		FlowID:       next.FlowID,
		FlowToken:    reply.FlowToken,
		PhoneNumber:  reply.From,
		ResponseData: reply.Data,
		RawMessage:   RawMessage(raw, msg.ID),
		ReceivedAt:   now,
	}
	if err := p.responses.Create(ctx, rec); err != nil {
		return err
	}
	slog.Info("Flow response saved",
		log.SessionID(next.ID),
		log.FlowID(next.FlowID),
		log.FlowToken(reply.FlowToken))

	p.forward(ctx, next, reply, ev)
	return nil
}

// isDuplicate reports whether the reply for a session has already been
// applied: the session is completed and a response is stored for its token
func (p *Pipeline) isDuplicate(
	ctx context.Context, sess session.Session,
) (bool, error) {
	if sess.Status != session.StatusCompleted {
		return false, nil
	}
	_, err := p.responses.FindByFlowToken(ctx, sess.FlowToken)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Pipeline) forward(
	ctx context.Context, sess session.Session, reply *api.FlowReply,
	ev *api.WebhookEvent,
) {
	url := p.cfg.CallbackURL
	if url == "" || p.dispatcher == nil {
		slog.Warn("Callback URL not configured, skipping callback",
			log.FlowToken(reply.FlowToken))
		return
	}

	phone := reply.From
	if phone == "" {
		phone = sess.PhoneNumber
	}

	ev.CallbackURL = url
	payload := &api.CallbackPayload{
		EventType:    api.EventTypeFlowCompleted,
		FlowToken:    reply.FlowToken,
		FlowID:       sess.FlowID,
		PhoneNumber:  phone,
		ResponseData: reply.Data,
		Timestamp:    p.clock().UTC().Format(time.RFC3339),
	}

	code, err := p.dispatcher.DeliverWithRetries(
		ctx, url, payload, p.cfg.MaxRetries,
	)
	if err != nil {
		ev.MarkCallbackFailed(code, err.Error())
		slog.Error("Callback forward failed",
			log.URL(url),
			log.FlowToken(reply.FlowToken),
			log.Error(err))
		return
	}

	ev.MarkCallbackSent(code, p.clock())
	slog.Info("Callback forwarded",
		log.URL(url),
		log.StatusCode(code),
		log.FlowToken(reply.FlowToken))
}

func isNotFound(err error) bool {
	return errors.Is(err, api.ErrNotFound)
}
