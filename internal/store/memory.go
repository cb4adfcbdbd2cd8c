package store

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/kode4food/flowgate/internal/session"
	"github.com/kode4food/flowgate/pkg/api"
)

type (
	// MemoryFlows is an in-process FlowRepository
	MemoryFlows struct {
		byName map[string]*api.Flow
		mu     sync.RWMutex
	}

	// MemorySessions is an in-process SessionRepository
	MemorySessions struct {
		byToken map[string]session.Session
		mu      sync.RWMutex
	}

	// MemoryResponses is an in-process ResponseRepository
	MemoryResponses struct {
		records []*api.FlowResponseRecord
		mu      sync.RWMutex
	}

	// MemoryEvents is an in-process EventRepository
	MemoryEvents struct {
		byID map[string]*api.WebhookEvent
		mu   sync.RWMutex
	}
)

var (
	_ FlowRepository     = (*MemoryFlows)(nil)
	_ SessionRepository  = (*MemorySessions)(nil)
	_ ResponseRepository = (*MemoryResponses)(nil)
	_ EventRepository    = (*MemoryEvents)(nil)
)

// NewMemory creates a Store whose repositories live in process memory
func NewMemory() *Store {
	return &Store{
		Flows:     NewMemoryFlows(),
		Sessions:  NewMemorySessions(),
		Responses: NewMemoryResponses(),
		Events:    NewMemoryEvents(),
	}
}

// NewMemoryFlows creates an empty in-process flow repository
func NewMemoryFlows() *MemoryFlows {
	return &MemoryFlows{byName: map[string]*api.Flow{}}
}

// FindByName returns the flow with the given name
func (r *MemoryFlows) FindByName(
	_ context.Context, name string,
) (*api.Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.byName[name]; ok {
		return f, nil
	}
	return nil, notFound("flow", name)
}

// FindByID returns the flow with the given ID
func (r *MemoryFlows) FindByID(
	_ context.Context, id string,
) (*api.Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.byName {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, notFound("flow", id)
}

// Save stores the flow, replacing any flow with the same name
func (r *MemoryFlows) Save(_ context.Context, flow *api.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[flow.Name] = flow
	return nil
}

// NewMemorySessions creates an empty in-process session repository
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{byToken: map[string]session.Session{}}
}

// Create stores a new session. The flow token must not be in use
func (r *MemorySessions) Create(_ context.Context, s session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byToken[s.FlowToken]; ok {
		return ErrDuplicate
	}
	r.byToken[s.FlowToken] = cloneSession(s)
	return nil
}

// Update replaces the stored snapshot of an existing session. A snapshot
// whose status cannot follow the stored one is rejected
func (r *MemorySessions) Update(_ context.Context, s session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byToken[s.FlowToken]
	if !ok || cur.ID != s.ID {
		return notFound("session", s.ID)
	}
	if err := cur.CheckReplace(s); err != nil {
		return err
	}
	r.byToken[s.FlowToken] = cloneSession(s)
	return nil
}

// FindByFlowToken returns the session for a flow token
func (r *MemorySessions) FindByFlowToken(
	_ context.Context, token string,
) (session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.byToken[token]; ok {
		return cloneSession(s), nil
	}
	return session.Session{}, notFound("session for flow token", token)
}

// MarkExpired expires every active session last touched before the cutoff
func (r *MemorySessions) MarkExpired(
	_ context.Context, before time.Time,
) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	now := time.Now()
	for token, s := range r.byToken {
		if !s.IsActive() || !s.LastActivityAt.Before(before) {
			continue
		}
		expired, err := s.Expire(now)
		if err != nil {
			return n, err
		}
		r.byToken[token] = expired
		n++
	}
	return n, nil
}

// NewMemoryResponses creates an empty in-process response repository
func NewMemoryResponses() *MemoryResponses {
	return &MemoryResponses{}
}

// Create stores a response record
func (r *MemoryResponses) Create(
	_ context.Context, rec *api.FlowResponseRecord,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records = append(r.records, &cp)
	return nil
}

// FindByFlowToken returns the most recently received response for a token
func (r *MemoryResponses) FindByFlowToken(
	_ context.Context, token string,
) (*api.FlowResponseRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res *api.FlowResponseRecord
	for _, rec := range r.records {
		if rec.FlowToken != token {
			continue
		}
		if res == nil || !rec.ReceivedAt.Before(res.ReceivedAt) {
			res = rec
		}
	}
	if res == nil {
		return nil, notFound("response for flow token", token)
	}
	cp := *res
	return &cp, nil
}

// Count returns the number of stored responses
func (r *MemoryResponses) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// NewMemoryEvents creates an empty in-process event repository
func NewMemoryEvents() *MemoryEvents {
	return &MemoryEvents{byID: map[string]*api.WebhookEvent{}}
}

// Create stores a new webhook event
func (r *MemoryEvents) Create(_ context.Context, e *api.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[e.ID]; ok {
		return ErrDuplicate
	}
	cp := *e
	r.byID[e.ID] = &cp
	return nil
}

// Update replaces a stored webhook event
func (r *MemoryEvents) Update(_ context.Context, e *api.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[e.ID]; !ok {
		return notFound("webhook event", e.ID)
	}
	cp := *e
	r.byID[e.ID] = &cp
	return nil
}

// FindByID returns a webhook event
func (r *MemoryEvents) FindByID(
	_ context.Context, id string,
) (*api.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byID[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, notFound("webhook event", id)
}

// All returns every stored webhook event
func (r *MemoryEvents) All() []*api.WebhookEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*api.WebhookEvent, 0, len(r.byID))
	for _, e := range r.byID {
		cp := *e
		res = append(res, &cp)
	}
	return res
}

func cloneSession(s session.Session) session.Session {
	res := s
	res.Data = maps.Clone(s.Data)
	return res
}
