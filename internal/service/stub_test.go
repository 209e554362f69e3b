package service

import (
	"context"
	"sync"
	"time"

	"github.com/soulproof/chat-server/internal/gateway"
	"github.com/soulproof/chat-server/internal/model"
)

type stubResult struct {
	reply *model.Reply
	err   error
}

func scored(msg string, score int) stubResult {
	return stubResult{reply: &model.Reply{Message: msg, Raw: msg, Score: &score, Provider: "stub"}}
}

func failed(err error) stubResult {
	return stubResult{err: err}
}

// stubGateway replays scripted results. With block set, each call signals
// started and then waits for block to be closed.
type stubGateway struct {
	mu      sync.Mutex
	results []stubResult
	seen    [][]model.Turn

	started chan struct{}
	block   chan struct{}
}

func newStubGateway(results ...stubResult) *stubGateway {
	return &stubGateway{results: results}
}

func (g *stubGateway) Reply(ctx context.Context, turns []model.Turn) (*model.Reply, error) {
	g.mu.Lock()
	g.seen = append(g.seen, append([]model.Turn(nil), turns...))
	var r stubResult
	if len(g.results) > 0 {
		r = g.results[0]
		g.results = g.results[1:]
	}
	started, block := g.started, g.block
	g.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if r.err != nil {
		return nil, r.err
	}
	if r.reply == nil {
		return nil, gateway.ErrReplyNotFound
	}
	reply := *r.reply
	return &reply, nil
}

func (g *stubGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

func (g *stubGateway) LastTurns() []model.Turn {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.seen) == 0 {
		return nil
	}
	return g.seen[len(g.seen)-1]
}

// fakeClock advances one second on every reading.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recordingPublisher struct {
	mu     sync.Mutex
	turns  []model.Turn
	events []model.ConversationEvent
}

func (p *recordingPublisher) PublishTurn(ctx context.Context, conv *model.Conversation, turn *model.Turn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, *turn)
	return nil
}

func (p *recordingPublisher) PublishEvent(ctx context.Context, event *model.ConversationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return nil
}

func (p *recordingPublisher) EventTypes() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var types []model.EventType
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}
