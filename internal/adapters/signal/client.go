// Package signal is the websocket signaling channel of the call engine.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/callcore/internal/adapters/rtc"
	"github.com/dkeye/callcore/internal/core"
	"github.com/dkeye/callcore/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var (
	ErrBusy          = errors.New("a call is already in progress")
	ErrNoPendingCall = errors.New("no pending offer")
	ErrNoCall        = errors.New("no active call")
)

// Link is the media connection negotiated for one call.
type Link interface {
	CreateOffer(ctx context.Context) (string, error)
	Answer(ctx context.Context, offerSDP string) (string, error)
	ApplyAnswer(sdp string) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	AttachLocal(s *rtc.LocalStream) error
	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnRemoteStream(fn func(core.RemoteStream))
	// OnClosed fires when the connection fails or closes on its own; Close
	// does not trigger it.
	OnClosed(fn func())
	Close() error
}

type LinkFactory func(peer domain.ParticipantID) (Link, error)

// PionLinks builds pion peer links with cfg.
func PionLinks(cfg webrtc.Configuration) LinkFactory {
	return func(peer domain.ParticipantID) (Link, error) {
		l, err := rtc.NewPeerLink(cfg, peer)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
}

type Options struct {
	URL     string
	Self    domain.Participant
	NewLink LinkFactory
	// OnRemoteStream sees every remote stream before it is reported.
	OnRemoteStream func(core.RemoteStream)

	SendBuffer  int
	EventBuffer int
	WriteWait   time.Duration
	PingPeriod  time.Duration
	ReadLimit   int64
}

func (o *Options) defaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
}

// Client implements core.SignalChannel and core.Notifier over one websocket.
// It owns at most one call at a time.
type Client struct {
	opts   Options
	conn   *wsConn
	events chan core.SignalEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu      sync.Mutex
	peer    *domain.Peer
	offer   string
	offerID string
	offers  uint64
	link    Link
	local   *rtc.LocalStream
	// ready is set once the link has the remote description; candidates
	// arriving earlier wait in pending.
	ready   bool
	pending []webrtc.ICECandidateInit
}

// Dial connects to the signaling service and announces the local identity.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	opts.defaults()
	if opts.NewLink == nil {
		opts.NewLink = PionLinks(rtc.DefaultWebRTCConfig())
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signal %s: %w", opts.URL, err)
	}
	ws.SetReadLimit(opts.ReadLimit)

	c := &Client{
		opts:   opts,
		conn:   newWSConn(ws, opts.SendBuffer),
		events: make(chan core.SignalEvent, opts.EventBuffer),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if err := c.send(ctx, helloMsg{
		Type:        typeHello,
		ID:          opts.Self.ID,
		DisplayName: opts.Self.DisplayName,
		AvatarRef:   opts.Self.AvatarRef,
	}); err != nil {
		c.conn.Close()
		return nil, err
	}

	c.wg.Go(func() { c.conn.writePump(c.ctx, opts.WriteWait) })
	c.wg.Go(c.pinger)
	c.wg.Go(func() {
		err := c.conn.readPump(c.ctx, c.handleSignal)
		if c.ctx.Err() == nil {
			log.Warn().Err(err).Str("module", "adapters.signal").Msg("signal connection lost")
			c.dropCall()
		}
		c.conn.Close()
	})

	log.Info().Str("module", "adapters.signal").Str("url", opts.URL).Str("self", string(opts.Self.ID)).Msg("signal connected")
	return c, nil
}

func (c *Client) Events() <-chan core.SignalEvent { return c.events }

func (c *Client) Initiate(ctx context.Context, peer domain.Peer) error {
	c.mu.Lock()
	if c.peer != nil {
		c.mu.Unlock()
		return ErrBusy
	}
	link, err := c.newLink(peer.ID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.peer = &peer
	c.link = link
	c.mu.Unlock()

	sdp, err := link.CreateOffer(ctx)
	if err == nil {
		err = c.send(ctx, sdpMsg{Type: typeOffer, To: peer.ID, SDP: sdp})
	}
	if err != nil {
		c.endCall(link)
		return fmt.Errorf("initiate %s: %w", peer.ID, err)
	}
	log.Info().Str("module", "adapters.signal").Str("peer", string(peer.ID)).Msg("offer sent")
	return nil
}

// Accept answers the pending inbound offer.
func (c *Client) Accept(ctx context.Context) error {
	c.mu.Lock()
	if c.peer == nil || c.offer == "" {
		c.mu.Unlock()
		return ErrNoPendingCall
	}
	peer, offer := *c.peer, c.offer
	link, err := c.newLink(peer.ID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.link = link
	c.offer = ""
	c.mu.Unlock()

	var applied []webrtc.ICECandidateInit
	sdp, err := link.Answer(ctx, offer)
	if err == nil {
		applied = c.flushCandidates(link)
		err = c.send(ctx, sdpMsg{Type: typeAnswer, To: peer.ID, SDP: sdp})
	}
	if err != nil {
		c.restoreOffer(link, offer, applied)
		return fmt.Errorf("accept %s: %w", peer.ID, err)
	}
	log.Info().Str("module", "adapters.signal").Str("peer", string(peer.ID)).Msg("answer sent")
	return nil
}

func (c *Client) Reject(ctx context.Context) error {
	c.mu.Lock()
	if c.peer == nil || c.offer == "" {
		c.mu.Unlock()
		return ErrNoPendingCall
	}
	to := c.peer.ID
	c.clearCall()
	c.mu.Unlock()
	return c.send(ctx, peerMsg{Type: typeReject, To: to})
}

// Decline refuses the pending offer offerID. An offer the client already
// turned down as busy, or one that is gone, needs nothing more.
func (c *Client) Decline(ctx context.Context, peer domain.ParticipantID, offerID string) error {
	c.mu.Lock()
	if c.peer == nil || c.peer.ID != peer || c.offer == "" || c.offerID != offerID {
		c.mu.Unlock()
		return nil
	}
	c.clearCall()
	c.mu.Unlock()
	log.Info().Str("module", "adapters.signal").Str("peer", string(peer)).Str("offer", offerID).Msg("offer declined")
	return c.send(ctx, peerMsg{Type: typeReject, To: peer})
}

func (c *Client) HangUp(ctx context.Context) error {
	c.mu.Lock()
	if c.peer == nil {
		c.mu.Unlock()
		return ErrNoCall
	}
	to, link := c.peer.ID, c.link
	c.mu.Unlock()

	c.endCall(link)
	return c.send(ctx, peerMsg{Type: typeHangUp, To: to})
}

// Notify sends a text message to one participant through the service.
func (c *Client) Notify(ctx context.Context, to domain.ParticipantID, message string) error {
	return c.send(ctx, noticeMsg{Type: typeNotice, To: to, Text: message})
}

// AttachLocal keeps the local tracks on the current and every later link;
// nil detaches them.
func (c *Client) AttachLocal(s *rtc.LocalStream) {
	c.mu.Lock()
	c.local = s
	link := c.link
	c.mu.Unlock()
	if link == nil {
		return
	}
	if err := link.AttachLocal(s); err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("attach local tracks")
	}
}

// Close drops the connection and any call link. Events is left open.
func (c *Client) Close() {
	c.cancel()
	c.conn.Close()
	c.mu.Lock()
	link := c.link
	c.clearCall()
	c.mu.Unlock()
	if link != nil {
		_ = link.Close()
	}
	c.wg.Wait()
	log.Info().Str("module", "adapters.signal").Msg("signal closed")
}

// newLink must be called with mu held.
func (c *Client) newLink(peer domain.ParticipantID) (Link, error) {
	link, err := c.opts.NewLink(peer)
	if err != nil {
		return nil, fmt.Errorf("new link: %w", err)
	}
	link.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		c.sendCandidate(peer, ci)
	})
	link.OnRemoteStream(func(rs core.RemoteStream) {
		if c.opts.OnRemoteStream != nil {
			c.opts.OnRemoteStream(rs)
		}
		c.emit(core.SignalEvent{Kind: core.SignalRemoteStream, Stream: rs})
	})
	link.OnClosed(func() {
		c.mu.Lock()
		current := c.link == link
		c.mu.Unlock()
		if !current {
			return
		}
		log.Warn().Str("module", "adapters.signal").Str("peer", string(peer)).Msg("peer connection lost")
		c.dropCall()
	})
	if c.local != nil {
		if err := link.AttachLocal(c.local); err != nil {
			log.Error().Err(err).Str("module", "adapters.signal").Msg("attach local tracks")
		}
	}
	return link, nil
}

// clearCall must be called with mu held.
func (c *Client) clearCall() {
	c.peer, c.link, c.offer, c.offerID, c.pending, c.ready = nil, nil, "", "", nil, false
}

// endCall forgets the call if link is still the current one.
func (c *Client) endCall(link Link) {
	c.mu.Lock()
	if c.link == link {
		c.clearCall()
	}
	c.mu.Unlock()
	if link != nil {
		if err := link.Close(); err != nil {
			log.Warn().Err(err).Str("module", "adapters.signal").Msg("close link")
		}
	}
}

// dropCall ends the call as if the peer hung up.
func (c *Client) dropCall() {
	c.mu.Lock()
	active := c.peer != nil
	link := c.link
	c.mu.Unlock()
	if !active {
		return
	}
	c.endCall(link)
	c.emit(core.SignalEvent{Kind: core.SignalRemoteHangUp})
}

// restoreOffer puts an offer back after its answer failed, so Accept can be
// retried and the caller can still hang up.
func (c *Client) restoreOffer(link Link, offer string, applied []webrtc.ICECandidateInit) {
	c.mu.Lock()
	if c.link == link {
		c.link, c.offer, c.ready = nil, offer, false
		c.pending = append(applied, c.pending...)
	}
	c.mu.Unlock()
	if err := link.Close(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.signal").Msg("close link")
	}
}

// flushCandidates marks link ready and applies the queued candidates, which
// it returns.
func (c *Client) flushCandidates(link Link) []webrtc.ICECandidateInit {
	c.mu.Lock()
	if c.link != link {
		c.mu.Unlock()
		return nil
	}
	pending := c.pending
	c.pending, c.ready = nil, true
	c.mu.Unlock()
	for _, ci := range pending {
		if err := link.AddICECandidate(ci); err != nil {
			log.Error().Err(err).Str("module", "adapters.signal").Msg("add ice candidate")
		}
	}
	return pending
}

func (c *Client) sendCandidate(to domain.ParticipantID, ci webrtc.ICECandidateInit) {
	msg := candidateMsg{
		Type:          typeCandidate,
		To:            to,
		Candidate:     ci.Candidate,
		SDPMLineIndex: ci.SDPMLineIndex,
	}
	if ci.SDPMid != nil {
		msg.SDPMid = *ci.SDPMid
	}
	if err := c.send(c.ctx, msg); err != nil {
		log.Warn().Err(err).Str("module", "adapters.signal").Msg("send candidate")
	}
}

func (c *Client) pinger() {
	t := time.NewTicker(c.opts.PingPeriod)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			if err := c.send(c.ctx, envelope{Type: typePing}); err != nil {
				log.Warn().Err(err).Str("module", "adapters.signal").Msg("ping")
			}
		}
	}
}

// emit blocks so events keep their order; it gives up once the client closes.
func (c *Client) emit(ev core.SignalEvent) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Client) send(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return c.conn.TrySend(b)
}
