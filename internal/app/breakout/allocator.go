// Package breakout partitions the meeting roster into disjoint breakout rooms
// and runs the optional countdown that closes them.
package breakout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dkeye/callcore/internal/core"
	"github.com/dkeye/callcore/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

var (
	ErrUnknownRoom        = errors.New("unknown breakout room")
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrRoomNameTooLong    = errors.New("room name too long")
	ErrInvalidTimer       = errors.New("timer minutes must be between 0 and 240")
	ErrInvalidRoomCount   = errors.New("room count must be positive")
	ErrEmptyMessage       = errors.New("empty broadcast message")
	ErrEmptyRoomName      = errors.New("room name must not be empty")
	ErrOverlap            = errors.New("participant assigned to more than one room")
)

const (
	MaxTimerMinutes = 240
	broadcastFanout = 8
)

type Options struct {
	Scheduler core.Scheduler
	Notifier  core.Notifier
	// TickPeriod is the countdown resolution; one tick is one second of
	// remaining time.
	TickPeriod time.Duration
	// OnChange receives a snapshot after every change, outside the lock.
	OnChange func(domain.BreakoutState)
}

type Allocator struct {
	opts Options

	mu        sync.RWMutex
	rooms     []*domain.BreakoutRoom
	roster    []domain.ParticipantID
	known     map[domain.ParticipantID]bool
	active    bool
	minutes   int
	remaining int
	created   int
	countdown core.Ticker
	epoch     int
}

func NewAllocator(opts Options) *Allocator {
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = time.Second
	}
	return &Allocator{
		opts:  opts,
		known: make(map[domain.ParticipantID]bool),
	}
}

// SetRoster replaces the set of participants that can be placed in rooms.
// Anyone no longer present is taken out of their room.
func (a *Allocator) SetRoster(ids []domain.ParticipantID) {
	a.mu.Lock()
	next := make(map[domain.ParticipantID]bool, len(ids))
	roster := make([]domain.ParticipantID, 0, len(ids))
	for _, id := range ids {
		if !next[id] {
			next[id] = true
			roster = append(roster, id)
		}
	}
	for _, r := range a.rooms {
		r.ParticipantIDs = filter(r.ParticipantIDs, func(id domain.ParticipantID) bool { return next[id] })
	}
	a.known = next
	a.roster = roster
	a.mu.Unlock()
	a.changed()
}

func (a *Allocator) CreateRoom(name string) (domain.BreakoutRoom, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > domain.MaxRoomNameLen {
		return domain.BreakoutRoom{}, ErrRoomNameTooLong
	}
	a.mu.Lock()
	a.created++
	if name == "" {
		name = fmt.Sprintf("Room %d", a.created)
	}
	r := &domain.BreakoutRoom{ID: domain.NewRoomID(), Name: name}
	a.rooms = append(a.rooms, r)
	out := cloneRoom(r)
	a.mu.Unlock()

	log.Info().Str("module", "app.breakout").Str("room", string(r.ID)).Str("name", name).Msg("room created")
	a.changed()
	return out, nil
}

func (a *Allocator) RenameRoom(id domain.RoomID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyRoomName
	}
	if utf8.RuneCountInString(name) > domain.MaxRoomNameLen {
		return ErrRoomNameTooLong
	}
	a.mu.Lock()
	r := a.room(id)
	if r == nil {
		a.mu.Unlock()
		return fmt.Errorf("rename %s: %w", id, ErrUnknownRoom)
	}
	r.Name = name
	a.mu.Unlock()
	a.changed()
	return nil
}

// DeleteRoom removes a room; its members return to the unassigned pool.
func (a *Allocator) DeleteRoom(id domain.RoomID) error {
	a.mu.Lock()
	idx := -1
	for i, r := range a.rooms {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		a.mu.Unlock()
		return fmt.Errorf("delete %s: %w", id, ErrUnknownRoom)
	}
	a.rooms = append(a.rooms[:idx], a.rooms[idx+1:]...)
	a.mu.Unlock()

	log.Info().Str("module", "app.breakout").Str("room", string(id)).Msg("room deleted")
	a.changed()
	return nil
}

// Assign moves pid into the room. It is taken out of every room first, so
// rooms stay disjoint whatever the call order.
func (a *Allocator) Assign(pid domain.ParticipantID, id domain.RoomID) error {
	a.mu.Lock()
	if !a.known[pid] {
		a.mu.Unlock()
		return fmt.Errorf("assign %s: %w", pid, ErrUnknownParticipant)
	}
	target := a.room(id)
	if target == nil {
		a.mu.Unlock()
		return fmt.Errorf("assign %s: %w", pid, ErrUnknownRoom)
	}
	a.detach(pid)
	target.ParticipantIDs = append(target.ParticipantIDs, pid)
	a.mu.Unlock()

	log.Debug().Str("module", "app.breakout").Str("participant", string(pid)).Str("room", string(id)).Msg("assigned")
	a.changed()
	return nil
}

// Unassign returns pid to the pool. Unassigning someone already in the pool
// is a no-op.
func (a *Allocator) Unassign(pid domain.ParticipantID) error {
	a.mu.Lock()
	if !a.known[pid] {
		a.mu.Unlock()
		return fmt.Errorf("unassign %s: %w", pid, ErrUnknownParticipant)
	}
	a.detach(pid)
	a.mu.Unlock()
	a.changed()
	return nil
}

// AutoAssign spreads the unassigned pool over n rooms round-robin, creating
// rooms until there are at least n.
func (a *Allocator) AutoAssign(n int) error {
	if n <= 0 {
		return ErrInvalidRoomCount
	}
	a.mu.Lock()
	for len(a.rooms) < n {
		a.created++
		a.rooms = append(a.rooms, &domain.BreakoutRoom{
			ID:   domain.NewRoomID(),
			Name: fmt.Sprintf("Room %d", a.created),
		})
	}
	i := 0
	for _, pid := range a.unassigned() {
		r := a.rooms[i%n]
		r.ParticipantIDs = append(r.ParticipantIDs, pid)
		i++
	}
	a.mu.Unlock()

	log.Info().Str("module", "app.breakout").Int("rooms", n).Int("placed", i).Msg("auto assigned")
	a.changed()
	return nil
}

func (a *Allocator) SetTimer(minutes int) error {
	if minutes < 0 || minutes > MaxTimerMinutes {
		return ErrInvalidTimer
	}
	a.mu.Lock()
	a.minutes = minutes
	a.mu.Unlock()
	a.changed()
	return nil
}

// Open activates the rooms and starts the countdown when a timer is set.
// Opening active rooms restarts the countdown.
func (a *Allocator) Open() {
	a.mu.Lock()
	minutes := a.minutes
	a.active = true
	a.stopCountdown()
	a.remaining = minutes * 60
	if minutes > 0 && a.opts.Scheduler != nil {
		a.epoch++
		epoch := a.epoch
		a.countdown = a.opts.Scheduler.Every(a.opts.TickPeriod, func() { a.tick(epoch) })
	}
	a.mu.Unlock()

	log.Info().Str("module", "app.breakout").Int("minutes", minutes).Msg("rooms opened")
	a.changed()
}

// Close deactivates the rooms and cancels the countdown. Assignments are
// kept so the rooms can be reopened.
func (a *Allocator) Close() {
	a.mu.Lock()
	a.close()
	a.mu.Unlock()

	log.Info().Str("module", "app.breakout").Msg("rooms closed")
	a.changed()
}

// Stop cancels the countdown without publishing; used when the session ends.
func (a *Allocator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.close()
}

func (a *Allocator) tick(epoch int) {
	a.mu.Lock()
	if epoch != a.epoch || !a.active || a.remaining <= 0 {
		a.mu.Unlock()
		return
	}
	a.remaining--
	expired := a.remaining == 0
	if expired {
		a.close()
	}
	a.mu.Unlock()

	if expired {
		log.Info().Str("module", "app.breakout").Msg("countdown expired, rooms closed")
	}
	a.changed()
}

// Broadcast sends message to every assigned participant. Delivery failures
// are logged and joined into the returned error; membership never changes.
func (a *Allocator) Broadcast(ctx context.Context, message string) (int, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return 0, ErrEmptyMessage
	}
	a.mu.RLock()
	var targets []domain.ParticipantID
	for _, r := range a.rooms {
		targets = append(targets, r.ParticipantIDs...)
	}
	a.mu.RUnlock()

	if a.opts.Notifier == nil || len(targets) == 0 {
		return 0, nil
	}

	p := pool.New().WithContext(ctx).WithMaxGoroutines(broadcastFanout)
	for _, pid := range targets {
		p.Go(func(ctx context.Context) error {
			if err := a.opts.Notifier.Notify(ctx, pid, message); err != nil {
				log.Warn().Err(err).Str("module", "app.breakout").Str("participant", string(pid)).Msg("broadcast delivery failed")
				return fmt.Errorf("notify %s: %w", pid, err)
			}
			return nil
		})
	}
	err := p.Wait()
	log.Info().Str("module", "app.breakout").Int("recipients", len(targets)).Msg("broadcast sent")
	return len(targets), err
}

func (a *Allocator) Snapshot() domain.BreakoutState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot()
}

// CheckDisjoint verifies that no participant sits in two rooms and that
// every room member is on the roster.
func (a *Allocator) CheckDisjoint() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	seen := make(map[domain.ParticipantID]domain.RoomID)
	for _, r := range a.rooms {
		for _, pid := range r.ParticipantIDs {
			if prev, ok := seen[pid]; ok {
				return fmt.Errorf("%s in %s and %s: %w", pid, prev, r.ID, ErrOverlap)
			}
			if !a.known[pid] {
				return fmt.Errorf("%s in %s: %w", pid, r.ID, ErrUnknownParticipant)
			}
			seen[pid] = r.ID
		}
	}
	return nil
}

func (a *Allocator) snapshot() domain.BreakoutState {
	st := domain.BreakoutState{
		Rooms:            make([]domain.BreakoutRoom, 0, len(a.rooms)),
		Unassigned:       a.unassigned(),
		IsActive:         a.active,
		TimerMinutes:     a.minutes,
		RemainingSeconds: a.remaining,
	}
	for _, r := range a.rooms {
		st.Rooms = append(st.Rooms, cloneRoom(r))
	}
	return st
}

func (a *Allocator) changed() {
	if a.opts.OnChange == nil {
		return
	}
	a.opts.OnChange(a.Snapshot())
}

// close must be called with mu held.
func (a *Allocator) close() {
	a.active = false
	a.remaining = 0
	a.stopCountdown()
}

func (a *Allocator) stopCountdown() {
	a.epoch++
	if a.countdown != nil {
		a.countdown.Stop()
		a.countdown = nil
	}
}

func (a *Allocator) room(id domain.RoomID) *domain.BreakoutRoom {
	for _, r := range a.rooms {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (a *Allocator) detach(pid domain.ParticipantID) {
	for _, r := range a.rooms {
		r.ParticipantIDs = filter(r.ParticipantIDs, func(id domain.ParticipantID) bool { return id != pid })
	}
}

func (a *Allocator) unassigned() []domain.ParticipantID {
	placed := make(map[domain.ParticipantID]bool)
	for _, r := range a.rooms {
		for _, pid := range r.ParticipantIDs {
			placed[pid] = true
		}
	}
	out := make([]domain.ParticipantID, 0, len(a.roster))
	for _, pid := range a.roster {
		if !placed[pid] {
			out = append(out, pid)
		}
	}
	return out
}

func cloneRoom(r *domain.BreakoutRoom) domain.BreakoutRoom {
	out := *r
	out.ParticipantIDs = append([]domain.ParticipantID(nil), r.ParticipantIDs...)
	return out
}

func filter(ids []domain.ParticipantID, keep func(domain.ParticipantID) bool) []domain.ParticipantID {
	out := ids[:0]
	for _, id := range ids {
		if keep(id) {
			out = append(out, id)
		}
	}
	return out
}
