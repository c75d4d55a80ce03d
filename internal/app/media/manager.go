// Package media owns the local capture handle and the bound remote stream of
// the active call session.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/callcore/internal/core"
	"github.com/dkeye/callcore/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var (
	ErrDevice       = errors.New("capture device error")
	ErrNotSupported = errors.New("not supported")
	ErrNotHeld      = errors.New("stream not held")
)

// DeviceError reports a failed device or PiP operation. It matches ErrDevice
// and the underlying cause with errors.Is.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() []error {
	return []error{ErrDevice, e.Err}
}

type Manager struct {
	provider    core.CaptureProvider
	pip         core.PiPHost
	constraints domain.Constraints

	acquire singleflight.Group

	mu       sync.RWMutex
	local    core.LocalStream
	remote   core.RemoteStream
	micOn    bool
	cameraOn bool
	facing   domain.FacingMode
	pipOn    bool
}

// NewManager builds a manager; pip may be nil when the platform has no
// picture-in-picture surface.
func NewManager(provider core.CaptureProvider, pip core.PiPHost, c domain.Constraints) *Manager {
	if c.Facing == "" {
		c.Facing = domain.FacingUser
	}
	return &Manager{
		provider:    provider,
		pip:         pip,
		constraints: c,
		micOn:       c.Audio,
		cameraOn:    c.Video,
		facing:      c.Facing,
	}
}

// AcquireLocal returns the held stream, acquiring it first if needed.
// Concurrent callers share a single provider acquisition.
func (m *Manager) AcquireLocal(ctx context.Context) (core.LocalStream, error) {
	if s := m.heldLocal(); s != nil {
		return s, nil
	}
	v, err, _ := m.acquire.Do("local", func() (any, error) {
		if s := m.heldLocal(); s != nil {
			return s, nil
		}
		m.mu.RLock()
		c := m.constraints
		c.Facing = m.facing
		m.mu.RUnlock()

		s, err := m.provider.Acquire(ctx, c)
		if err != nil {
			return nil, &DeviceError{Op: "acquire", Err: err}
		}
		if s == nil {
			return nil, &DeviceError{Op: "acquire", Err: errors.New("provider returned no stream")}
		}

		m.mu.Lock()
		m.local = s
		s.SetTrackEnabled(domain.TrackAudio, m.micOn)
		s.SetTrackEnabled(domain.TrackVideo, m.cameraOn)
		m.mu.Unlock()

		log.Info().Str("module", "app.media").Str("stream", s.ID()).Msg("local stream acquired")
		return s, nil
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "app.media").Msg("local acquisition failed")
		return nil, err
	}
	return v.(core.LocalStream), nil
}

// ReleaseLocal releases the held capture handle. Releasing nothing is an
// invariant violation and reported as ErrNotHeld.
func (m *Manager) ReleaseLocal() error {
	m.mu.Lock()
	s := m.local
	m.local = nil
	exitPiP := m.pipOn
	m.pipOn = false
	m.mu.Unlock()

	if s == nil {
		return fmt.Errorf("release local: %w", ErrNotHeld)
	}
	if exitPiP && m.pip != nil {
		if err := m.pip.Exit(); err != nil {
			log.Warn().Err(err).Str("module", "app.media").Msg("pip exit on release")
		}
	}
	if err := m.provider.Release(s); err != nil {
		return &DeviceError{Op: "release", Err: err}
	}
	log.Info().Str("module", "app.media").Str("stream", s.ID()).Msg("local stream released")
	return nil
}

// BindRemote starts consuming the peer's stream. A previously bound stream is
// replaced and closed.
func (m *Manager) BindRemote(ctx context.Context, s core.RemoteStream) error {
	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("bind remote %s: %w", s.ID(), err)
	}
	m.mu.Lock()
	old := m.remote
	m.remote = s
	m.mu.Unlock()

	if old != nil && old != s {
		if err := old.Close(); err != nil {
			log.Warn().Err(err).Str("module", "app.media").Str("stream", old.ID()).Msg("close replaced remote")
		}
	}
	log.Info().Str("module", "app.media").Str("stream", s.ID()).Msg("remote stream bound")
	return nil
}

func (m *Manager) ReleaseRemote() error {
	m.mu.Lock()
	s := m.remote
	m.remote = nil
	m.mu.Unlock()

	if s == nil {
		return fmt.Errorf("release remote: %w", ErrNotHeld)
	}
	if err := s.Close(); err != nil {
		return fmt.Errorf("release remote %s: %w", s.ID(), err)
	}
	log.Info().Str("module", "app.media").Str("stream", s.ID()).Msg("remote stream released")
	return nil
}

// ToggleMic flips the microphone; the track is enabled or disabled in place.
func (m *Manager) ToggleMic() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.micOn = !m.micOn
	if m.local != nil {
		m.local.SetTrackEnabled(domain.TrackAudio, m.micOn)
	}
	return m.micOn
}

func (m *Manager) ToggleCamera() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cameraOn = !m.cameraOn
	if m.local != nil {
		m.local.SetTrackEnabled(domain.TrackVideo, m.cameraOn)
	}
	return m.cameraOn
}

// SwitchCamera flips between front and back cameras. Without a held stream
// only the preference used by the next acquisition changes.
func (m *Manager) SwitchCamera(ctx context.Context) (domain.FacingMode, error) {
	s := m.heldLocal()
	if s == nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.facing = m.facing.Flip()
		return m.facing, nil
	}
	facing, err := s.SwitchFacing(ctx)
	if err != nil {
		return "", &DeviceError{Op: "switch camera", Err: err}
	}
	m.mu.Lock()
	m.facing = facing
	m.mu.Unlock()
	return facing, nil
}

// TogglePictureInPicture enters or leaves PiP for the local stream. It is
// rejected with ErrNotSupported while no local stream is held.
func (m *Manager) TogglePictureInPicture(ctx context.Context) (bool, error) {
	m.mu.RLock()
	s, on := m.local, m.pipOn
	m.mu.RUnlock()

	if s == nil || m.pip == nil {
		return false, fmt.Errorf("picture-in-picture: %w", ErrNotSupported)
	}
	if on {
		if err := m.pip.Exit(); err != nil {
			return true, &DeviceError{Op: "pip exit", Err: err}
		}
	} else {
		if err := m.pip.Enter(ctx, s.ID()); err != nil {
			return false, &DeviceError{Op: "pip enter", Err: err}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipOn = !on
	return m.pipOn, nil
}

func (m *Manager) HoldsLocal() bool { return m.heldLocal() != nil }

func (m *Manager) HoldsRemote() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.remote != nil
}

func (m *Manager) State() domain.MediaState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := domain.MediaState{
		MicOn:    m.micOn,
		CameraOn: m.cameraOn,
		Facing:   m.facing,
		PiP:      m.pipOn,
	}
	if m.local != nil {
		st.LocalRef = m.local.ID()
	}
	if m.remote != nil {
		st.RemoteRef = m.remote.ID()
	}
	return st
}

// Reset restores device preferences for a fresh session.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.micOn = m.constraints.Audio
	m.cameraOn = m.constraints.Video
	m.facing = m.constraints.Facing
}

func (m *Manager) heldLocal() core.LocalStream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.local
}
