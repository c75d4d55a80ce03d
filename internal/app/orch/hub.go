package orch

import (
	"sync"

	"github.com/dkeye/callcore/internal/app"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type PublishResult struct {
	SentTo  int
	Dropped []string
	Kicked  []string
}

// Subscription receives meeting snapshots until it is closed or kicked for
// falling behind; C is closed in both cases.
type Subscription struct {
	ID string
	C  <-chan Snapshot

	hub *Hub
}

func (s *Subscription) Close() { s.hub.remove(s.ID) }

type subscriber struct {
	ch     chan Snapshot
	missed int
}

// Hub fans snapshots out to subscribers without ever blocking the publisher.
type Hub struct {
	buffer int
	policy app.Policy

	mu   sync.Mutex
	subs map[string]*subscriber
}

func NewHub(buffer int, policy app.Policy) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	return &Hub{
		buffer: buffer,
		policy: policy,
		subs:   make(map[string]*subscriber),
	}
}

// Subscribe registers a subscriber; initial, when non-nil, is queued first.
func (h *Hub) Subscribe(initial *Snapshot) *Subscription {
	ch := make(chan Snapshot, h.buffer)
	if initial != nil {
		ch <- *initial
	}
	id := uuid.NewString()
	h.mu.Lock()
	h.subs[id] = &subscriber{ch: ch}
	n := len(h.subs)
	h.mu.Unlock()

	log.Info().Str("module", "app.hub").Str("subscriber", id).Int("subscribers", n).Msg("subscribed")
	return &Subscription{ID: id, C: ch, hub: h}
}

func (h *Hub) Publish(snap Snapshot) PublishResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	res := PublishResult{}
	for id, s := range h.subs {
		select {
		case s.ch <- snap:
			s.missed = 0
			res.SentTo++
			continue
		default:
		}
		s.missed++
		switch h.policy.OnBackPressure(id, s.missed) {
		case app.KickSubscriber:
			close(s.ch)
			delete(h.subs, id)
			res.Kicked = append(res.Kicked, id)
			log.Warn().Str("module", "app.hub").Str("subscriber", id).Int("missed", s.missed).Msg("slow subscriber kicked")
		case app.DropFrame, app.NoAction:
			res.Dropped = append(res.Dropped, id)
		}
	}
	log.Debug().Str("module", "app.hub").Uint64("version", snap.Version).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("publish result")
	return res
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// CloseAll disconnects every subscriber.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subs {
		close(s.ch)
		delete(h.subs, id)
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		close(s.ch)
		delete(h.subs, id)
		log.Info().Str("module", "app.hub").Str("subscriber", id).Msg("unsubscribed")
	}
}
