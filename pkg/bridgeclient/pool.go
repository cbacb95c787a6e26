package bridgeclient

import (
	"context"
	"sync"

	"github.com/relaymeet/focus/internal/v1/focuserr"
	"github.com/relaymeet/focus/internal/v1/model"
)

// Pool fans a model.BridgeClient call for a given bridge out to that
// bridge's own Client, since each Client is bound to one bridge's control
// URL and circuit breaker. Register/Remove add and drop bridges; nothing in
// this module calls them from the bridge registry (BRIDGE_REGISTRY_ADDR), so
// the pool holds only the bridges a caller registers.
type Pool struct {
	mu      sync.RWMutex
	clients map[model.BridgeID]*Client
}

// NewPool constructs an empty Pool.
func NewPool() *Pool {
	return &Pool{clients: make(map[model.BridgeID]*Client)}
}

// Register adds or replaces the Client used for bridge.
func (p *Pool) Register(bridge model.BridgeID, controlURL, healthAddr string) *Client {
	c := New(bridge, controlURL, healthAddr)
	p.mu.Lock()
	p.clients[bridge] = c
	p.mu.Unlock()
	return c
}

// Remove drops a bridge from the pool, e.g. once the registry reports it
// gone for good.
func (p *Pool) Remove(bridge model.BridgeID) {
	p.mu.Lock()
	delete(p.clients, bridge)
	p.mu.Unlock()
}

// Client returns the registered Client for bridge, if any.
func (p *Pool) Client(bridge model.BridgeID) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.clients[bridge]
	return c, ok
}

func (p *Pool) get(bridge model.BridgeID) (*Client, error) {
	p.mu.RLock()
	c, ok := p.clients[bridge]
	p.mu.RUnlock()
	if !ok {
		return nil, focuserr.New(focuserr.ServiceUnavailable, "unknown bridge: "+string(bridge))
	}
	return c, nil
}

// Allocate implements model.BridgeClient by routing to bridge's own Client.
func (p *Pool) Allocate(ctx context.Context, bridge model.BridgeID, conference model.MeetingID, participant model.ParticipantID) error {
	c, err := p.get(bridge)
	if err != nil {
		return err
	}
	return c.Allocate(ctx, bridge, conference, participant)
}

// Modify implements model.BridgeClient.
func (p *Pool) Modify(ctx context.Context, bridge model.BridgeID, conference model.MeetingID, participant model.ParticipantID, sources model.SourceSet) error {
	c, err := p.get(bridge)
	if err != nil {
		return err
	}
	return c.Modify(ctx, bridge, conference, participant, sources)
}

// Expire implements model.BridgeClient.
func (p *Pool) Expire(ctx context.Context, bridge model.BridgeID, conference model.MeetingID, participant model.ParticipantID) error {
	c, err := p.get(bridge)
	if err != nil {
		return err
	}
	return c.Expire(ctx, bridge, conference, participant)
}

// Probe reports bridge's current liveness via its gRPC health service, the
// bridge.Prober bridge.Selector uses to decide when a failed bridge has
// recovered.
func (p *Pool) Probe(bridge model.BridgeID) bool {
	c, ok := p.Client(bridge)
	if !ok {
		return false
	}
	return c.CheckHealth(context.Background())
}

var _ model.BridgeClient = (*Pool)(nil)
