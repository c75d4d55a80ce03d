package app

import (
	"errors"
	"sync"

	"github.com/dkeye/callcore/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrLocalParticipant   = errors.New("local participant cannot be removed")
)

// Registry is the roster of the current meeting session. It always holds
// exactly one local participant once Reset has been called.
type Registry struct {
	mu    sync.RWMutex
	order []domain.ParticipantID
	users map[domain.ParticipantID]*domain.Participant
	local domain.ParticipantID
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[domain.ParticipantID]*domain.Participant),
	}
}

// Reset starts a new session roster with local as the only local participant.
func (r *Registry) Reset(local domain.Participant, others ...domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = r.order[:0]
	clear(r.users)

	local.IsLocal = true
	r.put(local)
	r.local = local.ID
	for _, p := range others {
		if p.ID == local.ID {
			continue
		}
		p.IsLocal = false
		r.put(p)
	}
	log.Info().Str("module", "app.registry").Str("local", string(local.ID)).Int("size", len(r.order)).Msg("roster reset")
}

// Clear drops the whole roster at the end of a session.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	clear(r.users)
	r.local = ""
	log.Info().Str("module", "app.registry").Msg("roster cleared")
}

// Add inserts a remote participant or refreshes the name and flags of a
// known one. It reports whether the participant is new.
func (r *Registry) Add(p domain.Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[p.ID]; ok {
		u.DisplayName = p.DisplayName
		u.AvatarRef = p.AvatarRef
		u.MicOn, u.CameraOn = p.MicOn, p.CameraOn
		return false
	}
	p.IsLocal = false
	r.put(p)
	log.Info().Str("module", "app.registry").Str("id", string(p.ID)).Str("name", p.DisplayName).Msg("participant joined")
	return true
}

func (r *Registry) Remove(id domain.ParticipantID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == r.local {
		return ErrLocalParticipant
	}
	if _, ok := r.users[id]; !ok {
		return ErrUnknownParticipant
	}
	delete(r.users, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "app.registry").Str("id", string(id)).Msg("participant left")
	return nil
}

func (r *Registry) SetMedia(id domain.ParticipantID, micOn, cameraOn bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrUnknownParticipant
	}
	u.MicOn, u.CameraOn = micOn, cameraOn
	return nil
}

func (r *Registry) Get(id domain.ParticipantID) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.users[id]; ok {
		return *u, true
	}
	return domain.Participant{}, false
}

func (r *Registry) Local() (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.users[r.local]; ok {
		return *u, true
	}
	return domain.Participant{}, false
}

// List returns copies in join order, local participant first.
func (r *Registry) List() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.users[id])
	}
	return out
}

func (r *Registry) IDs() []domain.ParticipantID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ParticipantID, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) put(p domain.Participant) {
	r.users[p.ID] = &p
	r.order = append(r.order, p.ID)
}
