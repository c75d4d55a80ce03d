package call

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/dkeye/callcore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStream struct{ id string }

func (s *stubStream) ID() string                  { return s.id }
func (s *stubStream) Start(context.Context) error { return nil }
func (s *stubStream) Close() error                { return nil }

var bob = domain.Peer{ID: "bob", DisplayName: "Bob"}

func types(effects []Effect) []EffectType {
	out := make([]EffectType, 0, len(effects))
	for _, e := range effects {
		out = append(out, e.Type)
	}
	return out
}

// run applies evs in order and fails the test on the first error.
func run(t *testing.T, s State, evs ...Event) State {
	t.Helper()
	for _, ev := range evs {
		var err error
		s, _, err = Apply(s, ev)
		require.NoError(t, err, "event %s in %s", ev.Type, s.Call)
	}
	return s
}

func peer() *domain.Peer {
	p := bob
	return &p
}

func TestApply_Transitions(t *testing.T) {
	calling := run(t, NewState(), Event{Type: EvOutboundInitiate, Peer: peer()})
	callingHeld := run(t, calling, Event{Type: EvLocalAcquired, Ref: "local"})
	incoming := run(t, NewState(), Event{Type: EvInboundOffer, Peer: peer()})
	connected := run(t, callingHeld, Event{Type: EvRemoteAccepted})
	ended := run(t, connected, Event{Type: EvHangUp})

	tests := []struct {
		name    string
		from    State
		ev      Event
		want    domain.CallState
		effects []EffectType
		err     error
	}{
		{
			name:    "dial from idle",
			from:    NewState(),
			ev:      Event{Type: EvOutboundInitiate, Peer: peer()},
			want:    domain.CallCalling,
			effects: []EffectType{EffSignalInitiate, EffAcquireLocal},
		},
		{
			name: "dial without peer",
			from: NewState(),
			ev:   Event{Type: EvOutboundInitiate},
			want: domain.CallIdle,
			err:  ErrMissingPeer,
		},
		{
			name: "accept while calling waits for capture",
			from: calling,
			ev:   Event{Type: EvAccept},
			want: domain.CallCalling,
		},
		{
			name:    "accept while calling with held stream connects",
			from:    callingHeld,
			ev:      Event{Type: EvAccept},
			want:    domain.CallConnected,
			effects: []EffectType{EffStartTimer},
		},
		{
			name: "dial while calling",
			from: calling,
			ev:   Event{Type: EvOutboundInitiate, Peer: peer()},
			want: domain.CallCalling,
			err:  ErrConflict,
		},
		{
			name: "offer from idle does not acquire",
			from: NewState(),
			ev:   Event{Type: EvInboundOffer, Peer: peer()},
			want: domain.CallIncoming,
		},
		{
			name:    "offer while connected is declined",
			from:    connected,
			ev:      Event{Type: EvInboundOffer, Peer: peer()},
			want:    domain.CallConnected,
			effects: []EffectType{EffSignalDecline},
			err:     ErrConflict,
		},
		{
			name:    "offer while ended is declined",
			from:    ended,
			ev:      Event{Type: EvInboundOffer, Peer: peer()},
			want:    domain.CallEnded,
			effects: []EffectType{EffSignalDecline},
			err:     ErrConflict,
		},
		{
			name: "answer sent without pending answer",
			from: incoming,
			ev:   Event{Type: EvSignalAccepted},
			want: domain.CallIncoming,
			err:  ErrInvalidTransition,
		},
		{
			name:    "accept incoming acquires",
			from:    incoming,
			ev:      Event{Type: EvAccept},
			want:    domain.CallIncoming,
			effects: []EffectType{EffAcquireLocal},
		},
		{
			name:    "remote accepted with held stream connects",
			from:    callingHeld,
			ev:      Event{Type: EvRemoteAccepted},
			want:    domain.CallConnected,
			effects: []EffectType{EffStartTimer},
		},
		{
			name: "remote accepted while acquisition in flight waits",
			from: calling,
			ev:   Event{Type: EvRemoteAccepted},
			want: domain.CallCalling,
		},
		{
			name: "remote accepted on incoming",
			from: incoming,
			ev:   Event{Type: EvRemoteAccepted},
			want: domain.CallIncoming,
			err:  ErrInvalidTransition,
		},
		{
			name:    "reject incoming",
			from:    incoming,
			ev:      Event{Type: EvReject},
			want:    domain.CallIdle,
			effects: []EffectType{EffSignalReject},
		},
		{
			name: "reject while calling",
			from: calling,
			ev:   Event{Type: EvReject},
			want: domain.CallCalling,
			err:  ErrInvalidTransition,
		},
		{
			name:    "hang up calling with acquisition in flight",
			from:    calling,
			ev:      Event{Type: EvHangUp},
			want:    domain.CallEnded,
			effects: []EffectType{EffSignalHangUp, EffCancelAcquire},
		},
		{
			name:    "hang up connected",
			from:    connected,
			ev:      Event{Type: EvHangUp},
			want:    domain.CallEnded,
			effects: []EffectType{EffStopTimer, EffSignalHangUp, EffReleaseLocal, EffConfirmCleanup},
		},
		{
			name: "hang up from idle",
			from: NewState(),
			ev:   Event{Type: EvHangUp},
			want: domain.CallIdle,
			err:  ErrInvalidTransition,
		},
		{
			name:    "remote hang up on incoming",
			from:    incoming,
			ev:      Event{Type: EvRemoteHangUp},
			want:    domain.CallEnded,
			effects: []EffectType{EffConfirmCleanup},
		},
		{
			name: "remote hang up in idle is ignored",
			from: NewState(),
			ev:   Event{Type: EvRemoteHangUp},
			want: domain.CallIdle,
		},
		{
			name: "cleanup done",
			from: ended,
			ev:   Event{Type: EvCleanupDone},
			want: domain.CallIdle,
		},
		{
			name: "cleanup done outside ended",
			from: connected,
			ev:   Event{Type: EvCleanupDone},
			want: domain.CallConnected,
			err:  ErrInvalidTransition,
		},
		{
			name: "unknown event",
			from: NewState(),
			ev:   Event{Type: "bogus"},
			want: domain.CallIdle,
			err:  ErrInvalidTransition,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, effects, err := Apply(tc.from, tc.ev)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.want, next.Call)
			if tc.effects == nil {
				assert.Empty(t, effects)
			} else {
				assert.Equal(t, tc.effects, types(effects))
			}
		})
	}
}

func TestApply_AcceptDuringAcquisition(t *testing.T) {
	s := run(t, NewState(),
		Event{Type: EvInboundOffer, Peer: peer()},
		Event{Type: EvAccept},
	)
	require.True(t, s.Acquiring)

	_, _, err := Apply(s, Event{Type: EvAccept})
	assert.ErrorIs(t, err, ErrAcquisitionPending)
	_, _, err = Apply(s, Event{Type: EvReject})
	assert.ErrorIs(t, err, ErrAcquisitionPending)

	next, effects, err := Apply(s, Event{Type: EvLocalAcquired, Ref: "local"})
	require.NoError(t, err)
	assert.Equal(t, domain.CallIncoming, next.Call)
	assert.True(t, next.Answering)
	assert.Equal(t, []EffectType{EffSignalAccept}, types(effects))

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	next, effects, err = Apply(next, Event{Type: EvSignalAccepted, At: at})
	require.NoError(t, err)
	assert.Equal(t, domain.CallConnected, next.Call)
	assert.Equal(t, []EffectType{EffStartTimer}, types(effects))
	require.NotNil(t, next.StartedAt)
	assert.Equal(t, at, *next.StartedAt)
	assert.Equal(t, "local", next.LocalRef)
}

func TestApply_FailedAnswerStaysIncoming(t *testing.T) {
	s := run(t, NewState(),
		Event{Type: EvInboundOffer, Peer: peer()},
		Event{Type: EvAccept},
		Event{Type: EvLocalAcquired, Ref: "local"},
	)
	require.True(t, s.Answering)

	_, _, err := Apply(s, Event{Type: EvReject})
	assert.ErrorIs(t, err, ErrAcquisitionPending)

	s, effects, err := Apply(s, Event{Type: EvSignalAcceptFailed, Err: errors.New("answer failed")})
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.Equal(t, domain.CallIncoming, s.Call)
	assert.False(t, s.Answering)
	assert.True(t, s.LocalHeld)
	assert.Equal(t, "local", s.LocalRef)
	assert.False(t, s.TimerRunning)
	assert.Nil(t, s.StartedAt)
	assert.Contains(t, s.Notice, "answer failed")

	// the held capture is reused on retry
	s, effects, err = Apply(s, Event{Type: EvAccept})
	require.NoError(t, err)
	assert.Equal(t, []EffectType{EffSignalAccept}, types(effects))
	assert.Empty(t, s.Notice)

	s = run(t, s, Event{Type: EvSignalAcceptFailed})

	// rejecting instead releases the capture
	rejected, effects, err := Apply(s, Event{Type: EvReject})
	require.NoError(t, err)
	assert.Equal(t, domain.CallIdle, rejected.Call)
	assert.Equal(t, []EffectType{EffSignalReject, EffReleaseLocal}, types(effects))

	// so does the peer giving up
	ended, effects, err := Apply(s, Event{Type: EvRemoteHangUp})
	require.NoError(t, err)
	assert.Equal(t, domain.CallEnded, ended.Call)
	assert.Equal(t, []EffectType{EffReleaseLocal, EffConfirmCleanup}, types(effects))
}

func TestApply_AcceptFromCallingConnects(t *testing.T) {
	s := run(t, NewState(),
		Event{Type: EvOutboundInitiate, Peer: peer()},
		Event{Type: EvAccept},
	)
	assert.Equal(t, domain.CallCalling, s.Call)
	assert.True(t, s.PendingAccept)

	s, effects, err := Apply(s, Event{Type: EvLocalAcquired, Ref: "local"})
	require.NoError(t, err)
	assert.Equal(t, domain.CallConnected, s.Call)
	assert.Equal(t, []EffectType{EffStartTimer}, types(effects))
}

func TestApply_AcquisitionFailureKeepsState(t *testing.T) {
	s := run(t, NewState(),
		Event{Type: EvInboundOffer, Peer: peer()},
		Event{Type: EvAccept},
		Event{Type: EvLocalAcquireFailed, Err: errors.New("permission denied")},
	)
	assert.Equal(t, domain.CallIncoming, s.Call)
	assert.False(t, s.Acquiring)
	assert.False(t, s.PendingAccept)
	assert.Contains(t, s.Notice, "permission denied")

	// the user may retry
	_, effects, err := Apply(s, Event{Type: EvAccept})
	require.NoError(t, err)
	assert.Equal(t, []EffectType{EffAcquireLocal}, types(effects))
}

func TestApply_AcquisitionLandsAfterHangUp(t *testing.T) {
	s := run(t, NewState(),
		Event{Type: EvOutboundInitiate, Peer: peer()},
		Event{Type: EvHangUp},
	)
	require.Equal(t, domain.CallEnded, s.Call)
	require.True(t, s.Acquiring)

	s, effects, err := Apply(s, Event{Type: EvLocalAcquired, Ref: "late"})
	require.NoError(t, err)
	assert.Equal(t, []EffectType{EffReleaseLocal, EffConfirmCleanup}, types(effects))
	assert.False(t, s.LocalHeld)

	s = run(t, s, Event{Type: EvCleanupDone})
	assert.Equal(t, domain.CallIdle, s.Call)
}

func TestApply_RemoteStreamParkedUntilConnected(t *testing.T) {
	early := &stubStream{id: "remote-1"}
	s := run(t, NewState(),
		Event{Type: EvOutboundInitiate, Peer: peer()},
		Event{Type: EvRemoteStream, Stream: early},
	)
	assert.Same(t, early, s.Parked)

	s = run(t, s, Event{Type: EvLocalAcquired, Ref: "local"})
	next, effects, err := Apply(s, Event{Type: EvRemoteAccepted})
	require.NoError(t, err)
	require.Equal(t, []EffectType{EffStartTimer, EffBindRemote}, types(effects))
	assert.Same(t, early, effects[1].Stream)
	assert.True(t, next.Binding)
	assert.Nil(t, next.Parked)

	// a second stream while binding waits for the first bind to settle
	late := &stubStream{id: "remote-2"}
	next, effects, err = Apply(next, Event{Type: EvRemoteStream, Stream: late})
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.Same(t, late, next.Parked)

	next, effects, err = Apply(next, Event{Type: EvRemoteBound, Ref: "remote-1"})
	require.NoError(t, err)
	require.Equal(t, []EffectType{EffBindRemote}, types(effects))
	assert.Same(t, late, effects[0].Stream)
	assert.Equal(t, "remote-1", next.RemoteRef)
}

func TestApply_RemoteStreamAfterEndIsDiscarded(t *testing.T) {
	s := run(t, NewState(), Event{Type: EvInboundOffer, Peer: peer()}, Event{Type: EvRemoteHangUp})
	st := &stubStream{id: "remote-1"}
	_, effects, err := Apply(s, Event{Type: EvRemoteStream, Stream: st})
	require.NoError(t, err)
	assert.Equal(t, []EffectType{EffDiscardRemote}, types(effects))
}

func TestApply_StaleTicksAreIgnored(t *testing.T) {
	s := run(t, NewState(),
		Event{Type: EvOutboundInitiate, Peer: peer()},
		Event{Type: EvLocalAcquired, Ref: "local"},
		Event{Type: EvRemoteAccepted},
	)
	epoch := s.TimerEpoch
	s = run(t, s,
		Event{Type: EvTick, Epoch: epoch},
		Event{Type: EvTick, Epoch: epoch},
		Event{Type: EvTick, Epoch: epoch - 1},
	)
	assert.Equal(t, 2, s.Elapsed)

	s = run(t, s, Event{Type: EvHangUp}, Event{Type: EvTick, Epoch: epoch})
	assert.Equal(t, 2, s.Elapsed)
	assert.Equal(t, 2, s.LastDuration)

	s = run(t, s, Event{Type: EvCleanupDone})
	assert.Equal(t, 0, s.Elapsed)
	assert.Nil(t, s.StartedAt)
	assert.Equal(t, 2, s.LastDuration)
	assert.Equal(t, 2, s.Session(domain.MediaState{}).LastDurationSeconds)
}

func TestSession_CopiesPointers(t *testing.T) {
	s := run(t, NewState(),
		Event{Type: EvOutboundInitiate, Peer: peer()},
		Event{Type: EvLocalAcquired, Ref: "local"},
		Event{Type: EvRemoteAccepted, At: time.Unix(100, 0)},
	)
	out := s.Session(domain.MediaState{MicOn: true})
	out.Peer.DisplayName = "mutated"
	*out.StartedAt = time.Unix(0, 0)

	assert.Equal(t, "Bob", s.Peer.DisplayName)
	assert.Equal(t, time.Unix(100, 0), *s.StartedAt)
	assert.True(t, out.Media.MicOn)
}

var allowed = map[domain.CallState][]domain.CallState{
	domain.CallIdle:      {domain.CallCalling, domain.CallIncoming},
	domain.CallCalling:   {domain.CallConnected, domain.CallEnded},
	domain.CallIncoming:  {domain.CallConnected, domain.CallIdle, domain.CallEnded},
	domain.CallConnected: {domain.CallEnded},
	domain.CallEnded:     {domain.CallIdle},
}

// world plays the controller's part: it executes effects against counters
// and resolves asynchronous work in random order.
type world struct {
	t   *testing.T
	rng *rand.Rand
	s   State

	acquiring bool
	binds     []*stubStream
	local     int
	remote    *stubStream
	open      map[*stubStream]bool
	epoch     int
	streams   int

	accepted        bool
	acquiredOnOffer bool
}

func (w *world) apply(ev Event) {
	w.t.Helper()
	prev := w.s
	next, effects, err := Apply(w.s, ev)
	if err != nil {
		for _, e := range effects {
			require.Equal(w.t, EffSignalDecline, e.Type)
		}
		require.Equal(w.t, prev.Call, next.Call)
	}
	if prev.Call != next.Call {
		require.Contains(w.t, allowed[prev.Call], next.Call, "%s -> %s on %s", prev.Call, next.Call, ev.Type)
	}
	switch {
	case prev.Call == domain.CallConnected && next.Call == domain.CallConnected:
		require.GreaterOrEqual(w.t, next.Elapsed, prev.Elapsed)
	case prev.Call == domain.CallConnected && next.Call == domain.CallEnded:
		require.Equal(w.t, prev.Elapsed, next.Elapsed)
		require.Equal(w.t, prev.Elapsed, next.LastDuration)
	case prev.Call == domain.CallEnded && next.Call == domain.CallEnded:
		require.Equal(w.t, prev.Elapsed, next.Elapsed)
	}
	if next.Call == domain.CallIncoming && prev.Call != domain.CallIncoming {
		w.accepted, w.acquiredOnOffer = false, false
	}
	if prev.Call == domain.CallIncoming && ev.Type == EvAccept && err == nil {
		w.accepted = true
	}
	w.s = next

	for _, e := range effects {
		w.exec(e)
	}
	if w.s.Call == domain.CallIncoming {
		require.False(w.t, w.acquiredOnOffer && !w.accepted, "acquired on an offer that was never accepted")
	}
	if w.s.Call == domain.CallIdle {
		require.Zero(w.t, w.local)
		require.Nil(w.t, w.remote)
		require.False(w.t, w.s.Acquiring)
		require.False(w.t, w.s.Binding)
		require.Nil(w.t, w.s.Parked)
	}
}

func (w *world) exec(e Effect) {
	w.t.Helper()
	switch e.Type {
	case EffAcquireLocal:
		require.False(w.t, w.acquiring, "overlapping acquisitions")
		require.Zero(w.t, w.local, "acquire while holding")
		w.acquiring = true
		if w.s.Call == domain.CallIncoming {
			w.acquiredOnOffer = true
		}
	case EffReleaseLocal:
		require.Equal(w.t, 1, w.local, "release without a held stream")
		w.local = 0
	case EffBindRemote:
		require.Empty(w.t, w.binds, "overlapping binds")
		w.binds = append(w.binds, e.Stream.(*stubStream))
	case EffReleaseRemote:
		require.NotNil(w.t, w.remote, "release without a bound stream")
		delete(w.open, w.remote)
		w.remote = nil
	case EffDiscardRemote:
		st := e.Stream.(*stubStream)
		require.True(w.t, w.open[st], "discarding a closed stream")
		delete(w.open, st)
	case EffStartTimer:
		w.epoch = e.Epoch
	case EffSignalAccept:
		if w.rng.IntN(4) == 0 {
			w.apply(Event{Type: EvSignalAcceptFailed, Err: errors.New("send failed")})
			return
		}
		w.apply(Event{Type: EvSignalAccepted})
	case EffConfirmCleanup:
		require.Zero(w.t, w.local)
		require.Nil(w.t, w.remote)
		require.False(w.t, w.acquiring)
		require.Empty(w.t, w.binds)
		w.apply(Event{Type: EvCleanupDone})
	}
}

func (w *world) settleAcquire(ok bool) {
	w.acquiring = false
	if ok {
		w.local++
		w.apply(Event{Type: EvLocalAcquired, Ref: "local"})
		return
	}
	w.apply(Event{Type: EvLocalAcquireFailed, Err: errors.New("denied")})
}

func (w *world) settleBind(ok bool) {
	st := w.binds[0]
	w.binds = w.binds[1:]
	if ok {
		if w.remote != nil {
			delete(w.open, w.remote)
		}
		w.remote = st
		w.apply(Event{Type: EvRemoteBound, Ref: st.id})
		return
	}
	delete(w.open, st)
	w.apply(Event{Type: EvRemoteBindFailed, Ref: st.id, Err: errors.New("ice failed")})
}

func (w *world) step() {
	if w.acquiring && w.rng.IntN(4) == 0 {
		w.settleAcquire(w.rng.IntN(3) > 0)
		return
	}
	if len(w.binds) > 0 && w.rng.IntN(4) == 0 {
		w.settleBind(w.rng.IntN(3) > 0)
		return
	}
	switch w.rng.IntN(10) {
	case 0:
		w.apply(Event{Type: EvOutboundInitiate, Peer: peer()})
	case 1:
		w.apply(Event{Type: EvInboundOffer, Peer: peer()})
	case 2:
		w.apply(Event{Type: EvAccept})
	case 3:
		w.apply(Event{Type: EvReject})
	case 4:
		w.apply(Event{Type: EvHangUp})
	case 5:
		w.apply(Event{Type: EvRemoteHangUp})
	case 6:
		w.apply(Event{Type: EvRemoteAccepted})
	case 7:
		w.streams++
		st := &stubStream{id: fmt.Sprintf("remote-%d", w.streams)}
		w.open[st] = true
		w.apply(Event{Type: EvRemoteStream, Stream: st})
	default:
		epoch := w.epoch
		if w.rng.IntN(5) == 0 {
			epoch--
		}
		w.apply(Event{Type: EvTick, Epoch: epoch})
	}
}

func (w *world) drain() {
	for w.acquiring || len(w.binds) > 0 {
		if w.acquiring {
			w.settleAcquire(true)
		}
		if len(w.binds) > 0 {
			w.settleBind(true)
		}
	}
}

func TestApply_RandomSequencesKeepInvariants(t *testing.T) {
	for seed := uint64(1); seed <= 200; seed++ {
		w := &world{
			t:    t,
			rng:  rand.New(rand.NewPCG(seed, 7)),
			s:    NewState(),
			open: map[*stubStream]bool{},
		}
		for range 300 {
			w.step()
		}
		w.drain()
		if w.s.Call != domain.CallIdle {
			w.apply(Event{Type: EvRemoteHangUp})
			w.drain()
		}

		require.Equal(t, domain.CallIdle, w.s.Call, "seed %d", seed)
		assert.Zero(t, w.local, "seed %d", seed)
		assert.Nil(t, w.remote, "seed %d", seed)
		assert.Empty(t, w.open, "seed %d: remote streams left open", seed)
	}
}
