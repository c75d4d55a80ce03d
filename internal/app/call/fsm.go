// Package call drives one call session through
// idle → calling/incoming → connected → ended → idle.
//
// Apply is a pure transition function: it never touches devices, timers or
// the network. It returns the effects the Controller must carry out, and the
// Controller feeds the outcome of asynchronous effects back in as events.
package call

import (
	"errors"
	"time"

	"github.com/dkeye/callcore/internal/core"
	"github.com/dkeye/callcore/internal/domain"
)

var (
	ErrInvalidTransition  = errors.New("invalid call transition")
	ErrConflict           = errors.New("call already in progress")
	ErrAcquisitionPending = errors.New("device acquisition in progress")
	ErrMissingPeer        = errors.New("peer required")
)

type EventType string

const (
	EvOutboundInitiate   EventType = "outbound-initiate"
	EvInboundOffer       EventType = "inbound-offer"
	EvAccept             EventType = "accept"
	EvReject             EventType = "reject"
	EvHangUp             EventType = "hang-up"
	EvRemoteHangUp       EventType = "remote-hang-up"
	EvRemoteAccepted     EventType = "remote-accepted"
	EvRemoteStream       EventType = "remote-stream-available"
	EvLocalAcquired      EventType = "local-acquired"
	EvLocalAcquireFailed EventType = "local-acquire-failed"
	EvRemoteBound        EventType = "remote-bound"
	EvRemoteBindFailed   EventType = "remote-bind-failed"
	EvSignalAccepted     EventType = "signal-accepted"
	EvSignalAcceptFailed EventType = "signal-accept-failed"
	EvTick               EventType = "tick"
	EvCleanupDone        EventType = "cleanup-done"
)

type Event struct {
	Type   EventType
	Peer   *domain.Peer
	Stream core.RemoteStream
	// Ref names the stream an acquisition or bind produced.
	Ref     string
	OfferID string
	Err     error
	Epoch   int
	At      time.Time
}

type EffectType string

const (
	EffAcquireLocal   EffectType = "acquire-local"
	EffCancelAcquire  EffectType = "cancel-acquire"
	EffReleaseLocal   EffectType = "release-local"
	EffBindRemote     EffectType = "bind-remote"
	EffCancelBind     EffectType = "cancel-bind"
	EffReleaseRemote  EffectType = "release-remote"
	EffDiscardRemote  EffectType = "discard-remote"
	EffStartTimer     EffectType = "start-timer"
	EffStopTimer      EffectType = "stop-timer"
	EffSignalInitiate EffectType = "signal-initiate"
	EffSignalAccept   EffectType = "signal-accept"
	EffSignalReject   EffectType = "signal-reject"
	EffSignalHangUp   EffectType = "signal-hang-up"
	EffSignalDecline  EffectType = "signal-decline"
	// EffConfirmCleanup asks the controller to verify that nothing is held
	// any more and then apply EvCleanupDone.
	EffConfirmCleanup EffectType = "confirm-cleanup"
)

type Effect struct {
	Type    EffectType
	Peer    *domain.Peer
	OfferID string
	Stream  core.RemoteStream
	Epoch   int
}

// State is the controller's private view of a session.
type State struct {
	Call      domain.CallState
	Peer      *domain.Peer
	StartedAt *time.Time
	Elapsed   int

	LocalHeld     bool
	LocalRef      string
	Acquiring     bool
	PendingAccept bool
	// Answering is set while the answer to an incoming offer is being sent;
	// the call only connects once it went out.
	Answering bool

	RemoteRef string
	Binding   bool
	// Parked holds a remote stream waiting to be bound: it arrived before the
	// call connected or while another bind was in flight.
	Parked core.RemoteStream

	TimerEpoch   int
	TimerRunning bool

	Notice       string
	LastDuration int
}

func NewState() State {
	return State{Call: domain.CallIdle}
}

// Apply computes the next state and the effects of ev. On error the returned
// state differs from s at most in Notice, and the only effect produced is
// EffSignalDecline for an offer that conflicts with the current call.
func Apply(s State, ev Event) (State, []Effect, error) {
	switch ev.Type {
	case EvOutboundInitiate:
		return outboundInitiate(s, ev)
	case EvInboundOffer:
		return inboundOffer(s, ev)
	case EvAccept:
		return accept(s, ev)
	case EvSignalAccepted:
		if s.Call != domain.CallIncoming || !s.Answering {
			return s, nil, ErrInvalidTransition
		}
		s.Answering = false
		next, effects := connect(s, ev.At)
		return next, effects, nil
	case EvSignalAcceptFailed:
		if s.Call != domain.CallIncoming || !s.Answering {
			return s, nil, ErrInvalidTransition
		}
		s.Answering = false
		s.Notice = "could not answer the call"
		if ev.Err != nil {
			s.Notice += ": " + ev.Err.Error()
		}
		return s, nil, nil
	case EvRemoteAccepted:
		if s.Call != domain.CallCalling {
			return s, nil, ErrInvalidTransition
		}
		return accept(s, ev)
	case EvReject:
		return reject(s)
	case EvHangUp:
		if s.Call != domain.CallCalling && s.Call != domain.CallConnected {
			return s, nil, ErrInvalidTransition
		}
		next, effects := end(s, true)
		return next, effects, nil
	case EvRemoteHangUp:
		if s.Call == domain.CallIdle || s.Call == domain.CallEnded {
			return s, nil, nil
		}
		next, effects := end(s, false)
		return next, effects, nil
	case EvRemoteStream:
		return remoteStream(s, ev)
	case EvLocalAcquired:
		return localAcquired(s, ev)
	case EvLocalAcquireFailed:
		return localAcquireFailed(s, ev)
	case EvRemoteBound:
		return remoteBound(s, ev)
	case EvRemoteBindFailed:
		return remoteBindFailed(s, ev)
	case EvTick:
		if s.Call == domain.CallConnected && s.TimerRunning && ev.Epoch == s.TimerEpoch {
			s.Elapsed++
		}
		return s, nil, nil
	case EvCleanupDone:
		if s.Call != domain.CallEnded || s.Acquiring || s.Binding {
			return s, nil, ErrInvalidTransition
		}
		return State{
			Call:         domain.CallIdle,
			TimerEpoch:   s.TimerEpoch,
			LastDuration: s.LastDuration,
		}, nil, nil
	default:
		return s, nil, ErrInvalidTransition
	}
}

func outboundInitiate(s State, ev Event) (State, []Effect, error) {
	if ev.Peer == nil {
		return s, nil, ErrMissingPeer
	}
	if s.Call != domain.CallIdle {
		return s, nil, ErrConflict
	}
	peer := *ev.Peer
	s.Call = domain.CallCalling
	s.Peer = &peer
	s.Notice = ""
	s.Acquiring = true
	return s, []Effect{
		{Type: EffSignalInitiate, Peer: &peer},
		{Type: EffAcquireLocal},
	}, nil
}

func inboundOffer(s State, ev Event) (State, []Effect, error) {
	if ev.Peer == nil {
		return s, nil, ErrMissingPeer
	}
	if s.Call != domain.CallIdle {
		s.Notice = "busy: dropped call from " + ev.Peer.DisplayName
		return s, []Effect{{Type: EffSignalDecline, Peer: ev.Peer, OfferID: ev.OfferID}}, ErrConflict
	}
	peer := *ev.Peer
	s.Call = domain.CallIncoming
	s.Peer = &peer
	s.Notice = ""
	return s, nil, nil
}

func accept(s State, ev Event) (State, []Effect, error) {
	if s.Call != domain.CallCalling && s.Call != domain.CallIncoming {
		return s, nil, ErrInvalidTransition
	}
	if s.PendingAccept || s.Answering {
		return s, nil, ErrAcquisitionPending
	}
	if s.LocalHeld {
		next, effects := proceed(s, ev.At)
		return next, effects, nil
	}
	s.PendingAccept = true
	s.Notice = ""
	if s.Acquiring {
		// the acquisition started by outbound-initiate is still in flight
		return s, nil, nil
	}
	s.Acquiring = true
	return s, []Effect{{Type: EffAcquireLocal}}, nil
}

// proceed runs once capture is held for an accepted call: an incoming call
// still has to send its answer, an outgoing one connects right away.
func proceed(s State, at time.Time) (State, []Effect) {
	if s.Call == domain.CallIncoming {
		s.PendingAccept = false
		s.Answering = true
		s.Notice = ""
		return s, []Effect{{Type: EffSignalAccept}}
	}
	return connect(s, at)
}

func connect(s State, at time.Time) (State, []Effect) {
	var effects []Effect
	started := at
	s.Call = domain.CallConnected
	s.StartedAt = &started
	s.Elapsed = 0
	s.PendingAccept = false
	s.Notice = ""
	s.TimerEpoch++
	s.TimerRunning = true
	effects = append(effects, Effect{Type: EffStartTimer, Epoch: s.TimerEpoch})
	if s.Parked != nil {
		effects = append(effects, Effect{Type: EffBindRemote, Stream: s.Parked})
		s.Parked = nil
		s.Binding = true
	}
	return s, effects
}

func reject(s State) (State, []Effect, error) {
	if s.Call != domain.CallIncoming {
		return s, nil, ErrInvalidTransition
	}
	if s.Acquiring || s.PendingAccept || s.Answering {
		return s, nil, ErrAcquisitionPending
	}
	effects := []Effect{{Type: EffSignalReject}}
	if s.LocalHeld {
		// kept from an answer that failed to go out
		effects = append(effects, Effect{Type: EffReleaseLocal})
	}
	if s.Parked != nil {
		effects = append(effects, Effect{Type: EffDiscardRemote, Stream: s.Parked})
	}
	return State{
		Call:         domain.CallIdle,
		TimerEpoch:   s.TimerEpoch,
		LastDuration: s.LastDuration,
	}, effects, nil
}

// end moves any active session to ended. Cleanup is confirmed right away
// unless an acquisition or bind is still in flight; its result is released
// when it lands.
func end(s State, local bool) (State, []Effect) {
	var effects []Effect
	if s.TimerRunning {
		effects = append(effects, Effect{Type: EffStopTimer})
	}
	if s.Call == domain.CallConnected {
		s.LastDuration = s.Elapsed
	}
	if local {
		effects = append(effects, Effect{Type: EffSignalHangUp})
	}
	if s.LocalHeld {
		effects = append(effects, Effect{Type: EffReleaseLocal})
	}
	if s.Acquiring {
		effects = append(effects, Effect{Type: EffCancelAcquire})
	}
	if s.RemoteRef != "" {
		effects = append(effects, Effect{Type: EffReleaseRemote})
	}
	if s.Binding {
		effects = append(effects, Effect{Type: EffCancelBind})
	}
	if s.Parked != nil {
		effects = append(effects, Effect{Type: EffDiscardRemote, Stream: s.Parked})
	}

	s.Call = domain.CallEnded
	s.LocalHeld = false
	s.LocalRef = ""
	s.RemoteRef = ""
	s.Parked = nil
	s.PendingAccept = false
	s.Answering = false
	s.TimerRunning = false
	s.TimerEpoch++

	if !s.Acquiring && !s.Binding {
		effects = append(effects, Effect{Type: EffConfirmCleanup})
	}
	return s, effects
}

func remoteStream(s State, ev Event) (State, []Effect, error) {
	if ev.Stream == nil {
		return s, nil, ErrInvalidTransition
	}
	switch s.Call {
	case domain.CallConnected:
		if !s.Binding {
			s.Binding = true
			return s, []Effect{{Type: EffBindRemote, Stream: ev.Stream}}, nil
		}
		// binds are serialized: park it until the current one settles
		fallthrough
	case domain.CallCalling, domain.CallIncoming:
		var effects []Effect
		if s.Parked != nil && s.Parked != ev.Stream {
			effects = append(effects, Effect{Type: EffDiscardRemote, Stream: s.Parked})
		}
		s.Parked = ev.Stream
		return s, effects, nil
	default:
		return s, []Effect{{Type: EffDiscardRemote, Stream: ev.Stream}}, nil
	}
}

func localAcquired(s State, ev Event) (State, []Effect, error) {
	switch s.Call {
	case domain.CallCalling, domain.CallIncoming:
		s.Acquiring = false
		s.LocalHeld = true
		s.LocalRef = ev.Ref
		if s.PendingAccept {
			next, effects := proceed(s, ev.At)
			return next, effects, nil
		}
		return s, nil, nil
	case domain.CallEnded:
		s.Acquiring = false
		effects := []Effect{{Type: EffReleaseLocal}}
		if !s.Binding {
			effects = append(effects, Effect{Type: EffConfirmCleanup})
		}
		return s, effects, nil
	default:
		return s, nil, nil
	}
}

func localAcquireFailed(s State, ev Event) (State, []Effect, error) {
	switch s.Call {
	case domain.CallCalling, domain.CallIncoming:
		s.Acquiring = false
		s.PendingAccept = false
		s.Notice = "could not start camera or microphone"
		if ev.Err != nil {
			s.Notice += ": " + ev.Err.Error()
		}
		return s, nil, nil
	case domain.CallEnded:
		s.Acquiring = false
		if !s.Binding {
			return s, []Effect{{Type: EffConfirmCleanup}}, nil
		}
		return s, nil, nil
	default:
		return s, nil, nil
	}
}

func remoteBound(s State, ev Event) (State, []Effect, error) {
	switch s.Call {
	case domain.CallConnected:
		s.Binding = false
		s.RemoteRef = ev.Ref
		next, effects := bindParked(s)
		return next, effects, nil
	case domain.CallEnded:
		s.Binding = false
		effects := []Effect{{Type: EffReleaseRemote}}
		if !s.Acquiring {
			effects = append(effects, Effect{Type: EffConfirmCleanup})
		}
		return s, effects, nil
	default:
		return s, nil, nil
	}
}

func remoteBindFailed(s State, ev Event) (State, []Effect, error) {
	switch s.Call {
	case domain.CallConnected:
		s.Binding = false
		s.Notice = "remote media unavailable"
		if ev.Err != nil {
			s.Notice += ": " + ev.Err.Error()
		}
		next, effects := bindParked(s)
		return next, effects, nil
	case domain.CallEnded:
		s.Binding = false
		if !s.Acquiring {
			return s, []Effect{{Type: EffConfirmCleanup}}, nil
		}
		return s, nil, nil
	default:
		return s, nil, nil
	}
}

func bindParked(s State) (State, []Effect) {
	if s.Parked == nil {
		return s, nil
	}
	stream := s.Parked
	s.Parked = nil
	s.Binding = true
	return s, []Effect{{Type: EffBindRemote, Stream: stream}}
}

// Session renders the public snapshot of s.
func (s State) Session(m domain.MediaState) domain.CallSession {
	out := domain.CallSession{
		State:               s.Call,
		ElapsedSeconds:      s.Elapsed,
		LocalMediaRef:       s.LocalRef,
		RemoteMediaRef:      s.RemoteRef,
		Acquiring:           s.Acquiring,
		Notice:              s.Notice,
		LastDurationSeconds: s.LastDuration,
		Media:               m,
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.Peer != nil {
		p := *s.Peer
		out.Peer = &p
	}
	return out
}
