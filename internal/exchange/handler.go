package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kode4food/flowgate/internal/codec"
	"github.com/kode4food/flowgate/internal/session"
	"github.com/kode4food/flowgate/internal/store"
	"github.com/kode4food/flowgate/internal/tokens"
	"github.com/kode4food/flowgate/pkg/api"
	"github.com/kode4food/flowgate/pkg/log"
)

type (
	// Dependencies holds the collaborators of a Handler
	Dependencies struct {
		Codec    *codec.Codec
		Flows    store.FlowRepository
		Sessions store.SessionRepository
		Tokens   tokens.Cache
		Machine  *session.Machine
		Clock    session.Clock
	}

	// Handler serves encrypted data-exchange requests: it opens the
	// envelope, advances the session of the flow token and seals the
	// resulting screen payload
	Handler struct {
		codec       *codec.Codec
		flows       store.FlowRepository
		sessions    store.SessionRepository
		tokens      tokens.Cache
		machine     *session.Machine
		clock       session.Clock
		defaultFlow string
	}
)

var ErrFlowNotFound = fmt.Errorf("flow %w", api.ErrNotFound)

// NewHandler creates a data-exchange handler. defaultFlow names the flow
// used when neither the request path nor the token cache names one
func NewHandler(deps Dependencies, defaultFlow string) *Handler {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	machine := deps.Machine
	if machine == nil {
		machine = session.NewMachineWithClock(clock)
	}
	return &Handler{
		codec:       deps.Codec,
		flows:       deps.Flows,
		sessions:    deps.Sessions,
		tokens:      deps.Tokens,
		machine:     machine,
		clock:       clock,
		defaultFlow: defaultFlow,
	}
}

// Handle decrypts req, applies it to the session of its flow token and
// returns the encrypted response as a base64 string. flowName may be empty
func (h *Handler) Handle(
	ctx context.Context, req *api.EncryptedRequest, flowName string,
) (string, error) {
	env, err := codec.ParseEnvelope(req)
	if err != nil {
		return "", err
	}
	dec, err := h.codec.DecryptRequest(env)
	if err != nil {
		return "", err
	}

	res, err := h.route(ctx, dec.Request, flowName)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return h.codec.EncryptResponse(res, dec.Key, dec.IV)
}

func (h *Handler) route(
	ctx context.Context, req *api.FlowRequest, flowName string,
) (*api.FlowResponse, error) {
	act, token, err := session.ParseRequest(req)
	if err != nil {
		return nil, err
	}

	if act == session.ActionPing {
		if token != "" && flowName != "" {
			h.remember(ctx, token, flowName)
		}
		return session.PingResponse(), nil
	}

	name, err := h.resolveFlowName(ctx, token, flowName)
	if err != nil {
		return nil, err
	}
	flow, err := h.flows.FindByName(ctx, name)
	if errors.Is(err, api.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, name)
	}
	if err != nil {
		return nil, err
	}

	cur, isNew, err := h.loadSession(ctx, flow, token)
	if err != nil {
		return nil, err
	}

	req.FlowToken = token
	next, res, err := h.machine.Apply(flow, cur, req)
	if err != nil {
		slog.Warn("Flow request rejected",
			log.FlowName(flow.Name),
			log.FlowToken(token),
			log.Action(act),
			log.Error(err))
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := h.save(ctx, next, isNew); err != nil {
		return nil, err
	}
	h.remember(ctx, token, flow.Name)

	slog.Debug("Flow request handled",
		log.FlowName(flow.Name),
		log.SessionID(next.ID),
		log.Action(act),
		log.Screen(next.CurrentScreen),
		log.Status(next.Status))
	return res, nil
}

// resolveFlowName picks the flow for a request: the name given by the
// caller, else the one remembered for the token, else the default
func (h *Handler) resolveFlowName(
	ctx context.Context, token, flowName string,
) (string, error) {
	if flowName != "" {
		return flowName, nil
	}
	if h.tokens != nil {
		name, ok, err := h.tokens.Resolve(ctx, token)
		if err != nil {
			slog.Warn("Flow token lookup failed",
				log.FlowToken(token),
				log.Error(err))
		} else if ok {
			return name, nil
		}
	}
	if h.defaultFlow == "" {
		return "", fmt.Errorf("%w: no flow name for token",
			ErrFlowNotFound)
	}
	return h.defaultFlow, nil
}

func (h *Handler) loadSession(
	ctx context.Context, flow *api.Flow, token string,
) (session.Session, bool, error) {
	cur, err := h.sessions.FindByFlowToken(ctx, token)
	if err == nil {
		return cur, false, nil
	}
	if !errors.Is(err, api.ErrNotFound) {
		return session.Session{}, false, err
	}

	s := session.New(uuid.NewString(), flow.ID, token, h.clock())
	slog.Info("Flow session started",
		log.FlowName(flow.Name),
		log.SessionID(s.ID),
		log.FlowToken(token))
	return s, true, nil
}

func (h *Handler) save(
	ctx context.Context, s session.Session, isNew bool,
) error {
	if !isNew {
		return h.sessions.Update(ctx, s)
	}
	err := h.sessions.Create(ctx, s)
	if errors.Is(err, store.ErrDuplicate) {
		// another request for the same token created it first
		cur, ferr := h.sessions.FindByFlowToken(ctx, s.FlowToken)
		if ferr != nil {
			return ferr
		}
		s.ID = cur.ID
		s.StartedAt = cur.StartedAt
		return h.sessions.Update(ctx, s)
	}
	return err
}

func (h *Handler) remember(ctx context.Context, token, flowName string) {
	if h.tokens == nil {
		return
	}
	if err := h.tokens.Remember(ctx, token, flowName); err != nil {
		slog.Warn("Failed to remember flow token",
			log.FlowToken(token),
			log.FlowName(flowName),
			log.Error(err))
	}
}
