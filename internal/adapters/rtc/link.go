// Package rtc implements the media collaborators on top of pion: the peer
// link carrying the call, local sample tracks and the remote stream.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/callcore/internal/core"
	"github.com/dkeye/callcore/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrLinkClosed = errors.New("peer link closed")

func DefaultWebRTCConfig(iceServers ...string) webrtc.Configuration {
	if len(iceServers) == 0 {
		iceServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}
}

// PeerLink is the client side of one call's peer connection. It always
// negotiates one audio and one video sendrecv transceiver so the local
// tracks can be attached before or after negotiation.
type PeerLink struct {
	pc   *webrtc.PeerConnection
	peer domain.ParticipantID

	audio *webrtc.RTPSender
	video *webrtc.RTPSender

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	onICE    func(webrtc.ICECandidateInit)
	onStream func(core.RemoteStream)
	onClosed func()
	streams  map[string]*RemoteStream
}

func NewPeerLink(cfg webrtc.Configuration, peer domain.ParticipantID) (*PeerLink, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	l := &PeerLink{pc: pc, peer: peer, streams: make(map[string]*RemoteStream)}
	l.ctx, l.cancel = context.WithCancel(context.Background())

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		tr, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendrecv,
		})
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
		}
		if kind == webrtc.RTPCodecTypeAudio {
			l.audio = tr.Sender()
		} else {
			l.video = tr.Sender()
		}
	}
	l.bind()
	return l, nil
}

func (l *PeerLink) bind() {
	logger := log.With().Str("module", "adapters.rtc").Str("peer", string(l.peer)).Logger()

	l.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		logger.Info().Str("ice_state", s.String()).Msg("ICE state")
	})

	l.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		logger.Info().Str("peer_connection_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			l.mu.Lock()
			fn := l.onClosed
			l.mu.Unlock()
			if fn != nil {
				fn()
			}
		}
	})

	l.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		l.mu.Lock()
		fn := l.onICE
		l.mu.Unlock()
		if cand != nil && fn != nil {
			fn(cand.ToJSON())
		}
	})

	l.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		l.addRemoteTrack(track)
	})
}

// addRemoteTrack groups tracks by stream id; the stream is announced once,
// with its first track.
func (l *PeerLink) addRemoteTrack(track *webrtc.TrackRemote) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	rs, known := l.streams[track.StreamID()]
	if !known {
		rs = NewRemoteStream(track.StreamID())
		l.streams[track.StreamID()] = rs
	}
	fn := l.onStream
	l.mu.Unlock()

	rs.AddSource(TrackSource(track))
	if !known && fn != nil {
		fn(rs)
	}
}

// CreateOffer builds the local offer and waits for ICE gathering so the
// returned SDP is complete.
func (l *PeerLink) CreateOffer(ctx context.Context) (string, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	return l.setLocal(ctx, offer)
}

// Answer applies the remote offer and returns the complete local answer.
func (l *PeerLink) Answer(ctx context.Context, offerSDP string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("apply offer: %w", err)
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	return l.setLocal(ctx, answer)
}

func (l *PeerLink) ApplyAnswer(answerSDP string) error {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := l.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	return nil
}

func (l *PeerLink) setLocal(ctx context.Context, desc webrtc.SessionDescription) (string, error) {
	gatherComplete := webrtc.GatheringCompletePromise(l.pc)
	if err := l.pc.SetLocalDescription(desc); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-l.ctx.Done():
		return "", ErrLinkClosed
	}
	return l.pc.LocalDescription().SDP, nil
}

func (l *PeerLink) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(ci)
}

// AttachLocal puts the local tracks on the link's senders. A nil stream
// detaches them; nothing is renegotiated.
func (l *PeerLink) AttachLocal(s *LocalStream) error {
	var audio, video webrtc.TrackLocal
	if s != nil {
		if t := s.Track(domain.TrackAudio); t != nil {
			audio = t
		}
		if t := s.Track(domain.TrackVideo); t != nil {
			video = t
		}
	}
	if err := l.audio.ReplaceTrack(audio); err != nil {
		return fmt.Errorf("attach audio: %w", err)
	}
	if err := l.video.ReplaceTrack(video); err != nil {
		return fmt.Errorf("attach video: %w", err)
	}
	return nil
}

func (l *PeerLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	l.mu.Lock()
	l.onICE = fn
	l.mu.Unlock()
}

// OnRemoteStream is called once per remote media stream.
func (l *PeerLink) OnRemoteStream(fn func(core.RemoteStream)) {
	l.mu.Lock()
	l.onStream = fn
	l.mu.Unlock()
}

// OnClosed sets the callback for a failed or closed connection.
func (l *PeerLink) OnClosed(fn func()) {
	l.mu.Lock()
	l.onClosed = fn
	l.mu.Unlock()
}

// Close tears the connection down. Remote streams handed out stay owned by
// whoever bound them; their reads fail once the connection is gone.
func (l *PeerLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.onClosed = nil
	l.mu.Unlock()

	l.cancel()
	if err := l.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "adapters.rtc").Str("peer", string(l.peer)).Msg("close error")
		return err
	}
	log.Info().Str("module", "adapters.rtc").Str("peer", string(l.peer)).Msg("closed")
	return nil
}
