// Package orch ties the call controller to the roster and the meeting
// engines, and fans the combined state out to subscribers.
package orch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/callcore/internal/app"
	"github.com/dkeye/callcore/internal/app/breakout"
	"github.com/dkeye/callcore/internal/app/call"
	"github.com/dkeye/callcore/internal/app/poll"
	"github.com/dkeye/callcore/internal/app/qa"
	"github.com/dkeye/callcore/internal/core"
	"github.com/dkeye/callcore/internal/domain"
	"github.com/rs/zerolog/log"
)

// ErrNoMeeting is returned by meeting operations while no call is connected.
var ErrNoMeeting = errors.New("no meeting in progress")

type Snapshot struct {
	Version      uint64                `json:"version"`
	Call         domain.CallSession    `json:"call"`
	Participants []domain.Participant  `json:"participants"`
	Breakout     *domain.BreakoutState `json:"breakout,omitempty"`
	Polls        []domain.Poll         `json:"polls"`
	Tallies      []domain.Tally        `json:"tallies"`
	Questions    []domain.Question     `json:"questions"`
}

type Config struct {
	Local     domain.Participant
	Registry  *app.Registry
	Directory core.Directory
	Notifier  core.Notifier
	Scheduler core.Scheduler
	Hub       *Hub
	// BreakoutTick is the breakout countdown resolution.
	BreakoutTick time.Duration
	// BreakoutMinutes preloads the breakout timer of every new meeting.
	BreakoutMinutes int
	Now             func() time.Time
}

// meeting holds the engines that live from connected to idle.
type meeting struct {
	breakout *breakout.Allocator
	polls    *poll.Engine
	qa       *qa.Engine
}

type Orchestrator struct {
	cfg  Config
	call *call.Controller

	mu       sync.RWMutex
	meeting  *meeting
	callSnap domain.CallSession

	pubMu   sync.Mutex
	version uint64
}

// New builds the orchestrator and the call controller it drives. The
// controller's change and roster hooks are owned by the orchestrator.
func New(cfg Config, callOpts call.Options) *Orchestrator {
	if cfg.Registry == nil {
		cfg.Registry = app.NewRegistry()
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub(8, nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Local.ID == "" {
		cfg.Local.ID = domain.NewParticipantID()
	}
	cfg.Local.IsLocal = true

	o := &Orchestrator{cfg: cfg}
	callOpts.OnChange = o.onCallChange
	callOpts.OnRoster = o.onRoster
	if callOpts.Scheduler == nil {
		callOpts.Scheduler = cfg.Scheduler
	}
	o.call = call.NewController(callOpts)
	o.callSnap = domain.CallSession{State: domain.CallIdle}
	return o
}

func (o *Orchestrator) Start(ctx context.Context) {
	o.call.Start(ctx)
	log.Info().Str("module", "app.orch").Str("local", string(o.cfg.Local.ID)).Msg("orchestrator started")
}

func (o *Orchestrator) Stop() {
	o.call.Stop()
	o.mu.Lock()
	if o.meeting != nil {
		o.meeting.breakout.Stop()
		o.meeting = nil
	}
	o.mu.Unlock()
	o.cfg.Hub.CloseAll()
	log.Info().Str("module", "app.orch").Msg("orchestrator stopped")
}

func (o *Orchestrator) Call() *call.Controller { return o.call }

func (o *Orchestrator) Hub() *Hub { return o.cfg.Hub }

func (o *Orchestrator) Registry() *app.Registry { return o.cfg.Registry }

// Subscribe starts a snapshot stream primed with the current snapshot.
func (o *Orchestrator) Subscribe() *Subscription {
	snap := o.Snapshot()
	return o.cfg.Hub.Subscribe(&snap)
}

// Snapshot returns the combined meeting state at the last published version.
func (o *Orchestrator) Snapshot() Snapshot {
	o.pubMu.Lock()
	defer o.pubMu.Unlock()
	return o.build()
}

// onCallChange runs on the call controller goroutine, which is also the only
// writer of o.meeting.
func (o *Orchestrator) onCallChange(prev, next domain.CallSession) {
	o.mu.Lock()
	o.callSnap = next
	open := next.State == domain.CallConnected && o.meeting == nil
	var ended *meeting
	if next.State == domain.CallIdle {
		ended, o.meeting = o.meeting, nil
	}
	inMeeting := o.meeting != nil
	o.mu.Unlock()

	switch {
	case open:
		m := o.openMeeting(next)
		o.mu.Lock()
		o.meeting = m
		o.mu.Unlock()
	case ended != nil:
		ended.breakout.Stop()
		o.cfg.Registry.Clear()
		log.Info().Str("module", "app.orch").Msg("meeting closed")
	case inMeeting && (prev.Media.MicOn != next.Media.MicOn || prev.Media.CameraOn != next.Media.CameraOn):
		if err := o.cfg.Registry.SetMedia(o.cfg.Local.ID, next.Media.MicOn, next.Media.CameraOn); err != nil {
			log.Error().Err(err).Str("module", "app.orch").Msg("mirror local media")
		}
	}
	o.publish()
}

// openMeeting seeds the roster and builds the engines of a new meeting.
func (o *Orchestrator) openMeeting(cs domain.CallSession) *meeting {
	local := o.cfg.Local
	local.MicOn, local.CameraOn = cs.Media.MicOn, cs.Media.CameraOn
	var others []domain.Participant
	if cs.Peer != nil {
		others = append(others, cs.Peer.AsParticipant())
	}
	o.cfg.Registry.Reset(local, others...)

	changed := func() { o.publish() }
	m := &meeting{
		breakout: breakout.NewAllocator(breakout.Options{
			Scheduler:  o.cfg.Scheduler,
			Notifier:   o.cfg.Notifier,
			TickPeriod: o.cfg.BreakoutTick,
			OnChange:   func(domain.BreakoutState) { changed() },
		}),
		polls: poll.NewEngine(poll.Options{Now: o.cfg.Now, OnChange: func([]domain.Poll) { changed() }}),
		qa:    qa.NewEngine(qa.Options{Now: o.cfg.Now, OnChange: func([]domain.Question) { changed() }}),
	}
	m.breakout.SetRoster(o.cfg.Registry.IDs())
	if o.cfg.BreakoutMinutes > 0 {
		if err := m.breakout.SetTimer(o.cfg.BreakoutMinutes); err != nil {
			log.Warn().Err(err).Str("module", "app.orch").Msg("default breakout timer")
		}
	}
	log.Info().Str("module", "app.orch").Int("participants", o.cfg.Registry.Len()).Msg("meeting opened")
	return m
}

func (o *Orchestrator) current() (*meeting, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.meeting == nil {
		return nil, ErrNoMeeting
	}
	return o.meeting, nil
}

func (o *Orchestrator) publish() {
	o.pubMu.Lock()
	defer o.pubMu.Unlock()
	o.version++
	o.cfg.Hub.Publish(o.build())
}

// build must be called with pubMu held.
func (o *Orchestrator) build() Snapshot {
	o.mu.RLock()
	cs, m := o.callSnap, o.meeting
	o.mu.RUnlock()

	snap := Snapshot{
		Version:      o.version,
		Call:         cs,
		Participants: o.cfg.Registry.List(),
		Polls:        []domain.Poll{},
		Tallies:      []domain.Tally{},
		Questions:    []domain.Question{},
	}
	if m == nil {
		return snap
	}
	bs := m.breakout.Snapshot()
	snap.Breakout = &bs
	snap.Polls = m.polls.Polls()
	for _, p := range snap.Polls {
		snap.Tallies = append(snap.Tallies, poll.TallyOf(p))
	}
	snap.Questions = m.qa.Questions()
	return snap
}
