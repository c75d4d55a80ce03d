package call

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/callcore/internal/app/media"
	"github.com/dkeye/callcore/internal/core"
	"github.com/dkeye/callcore/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrStopped = errors.New("call controller stopped")

// MediaSession is the part of the media manager the controller drives.
type MediaSession interface {
	AcquireLocal(ctx context.Context) (core.LocalStream, error)
	ReleaseLocal() error
	BindRemote(ctx context.Context, s core.RemoteStream) error
	ReleaseRemote() error
	HoldsLocal() bool
	HoldsRemote() bool
	ToggleMic() bool
	ToggleCamera() bool
	SwitchCamera(ctx context.Context) (domain.FacingMode, error)
	TogglePictureInPicture(ctx context.Context) (bool, error)
	State() domain.MediaState
	Reset()
}

type Options struct {
	Media     MediaSession
	Signal    core.SignalChannel
	Scheduler core.Scheduler

	TickPeriod     time.Duration
	AcquireTimeout time.Duration
	SignalTimeout  time.Duration
	Now            func() time.Time

	// OnChange runs on the controller goroutine after every applied event.
	// It must not call back into the controller.
	OnChange func(prev, next domain.CallSession)
	// OnRoster receives participant events while the call is connected.
	// Same goroutine rule as OnChange.
	OnRoster func(core.SignalEvent)
}

type msg interface{ isMsg() }

type eventMsg struct {
	ev    Event
	reply chan error
}

type snapshotMsg struct {
	reply chan domain.CallSession
}

type refreshMsg struct{}

type rosterMsg struct {
	ev core.SignalEvent
}

func (eventMsg) isMsg()    {}
func (snapshotMsg) isMsg() {}
func (refreshMsg) isMsg()  {}
func (rosterMsg) isMsg()   {}

// Controller serializes UI intents, signaling events, device results and
// timer ticks through one inbox, so no two transitions of a session ever run
// concurrently.
type Controller struct {
	opts  Options
	inbox chan msg
	done  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	// owned by the loop goroutine
	state         State
	last          domain.CallSession
	timer         core.Ticker
	cancelAcquire context.CancelFunc
	cancelBind    context.CancelFunc
}

func NewController(opts Options) *Controller {
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = time.Second
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 15 * time.Second
	}
	if opts.SignalTimeout <= 0 {
		opts.SignalTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		opts:  opts,
		inbox: make(chan msg, 64),
		done:  make(chan struct{}),
		state: NewState(),
	}
}

// Start launches the event loop and, when a signal channel is configured,
// the goroutine forwarding its events into the loop.
func (c *Controller) Start(parent context.Context) {
	c.ctx, c.cancel = context.WithCancel(parent)
	c.last = c.snapshot()
	go c.loop()
	if c.opts.Signal != nil {
		go c.forwardSignals()
	}
}

// Stop ends the loop, releasing anything the session still holds.
func (c *Controller) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *Controller) Dial(ctx context.Context, peer domain.Peer) error {
	return c.do(ctx, Event{Type: EvOutboundInitiate, Peer: &peer})
}

func (c *Controller) Accept(ctx context.Context) error {
	return c.do(ctx, Event{Type: EvAccept})
}

func (c *Controller) Reject(ctx context.Context) error {
	return c.do(ctx, Event{Type: EvReject})
}

func (c *Controller) HangUp(ctx context.Context) error {
	return c.do(ctx, Event{Type: EvHangUp})
}

func (c *Controller) ToggleMic(ctx context.Context) (bool, error) {
	on := c.opts.Media.ToggleMic()
	return on, c.refresh(ctx)
}

func (c *Controller) ToggleCamera(ctx context.Context) (bool, error) {
	on := c.opts.Media.ToggleCamera()
	return on, c.refresh(ctx)
}

func (c *Controller) SwitchCamera(ctx context.Context) (domain.FacingMode, error) {
	facing, err := c.opts.Media.SwitchCamera(ctx)
	if err != nil {
		return "", err
	}
	return facing, c.refresh(ctx)
}

func (c *Controller) TogglePictureInPicture(ctx context.Context) (bool, error) {
	on, err := c.opts.Media.TogglePictureInPicture(ctx)
	if err != nil {
		return on, err
	}
	return on, c.refresh(ctx)
}

// Snapshot returns the session as of every message queued before the call.
func (c *Controller) Snapshot(ctx context.Context) (domain.CallSession, error) {
	reply := make(chan domain.CallSession, 1)
	if err := c.send(ctx, snapshotMsg{reply: reply}); err != nil {
		return domain.CallSession{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return domain.CallSession{}, ctx.Err()
	case <-c.done:
		return domain.CallSession{}, ErrStopped
	}
}

func (c *Controller) do(ctx context.Context, ev Event) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, eventMsg{ev: ev, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

func (c *Controller) refresh(ctx context.Context) error {
	return c.send(ctx, refreshMsg{})
}

func (c *Controller) send(ctx context.Context, m msg) error {
	select {
	case c.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// post is used by goroutines the controller owns; it reports false once the
// loop is gone.
func (c *Controller) post(m msg) bool {
	// the inbox is buffered, so check first or a stopped loop would swallow m
	if c.ctx.Err() != nil {
		return false
	}
	select {
	case c.inbox <- m:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return
		case m := <-c.inbox:
			switch msg := m.(type) {
			case eventMsg:
				err := c.apply(msg.ev)
				if msg.reply != nil {
					msg.reply <- err
				}
			case snapshotMsg:
				msg.reply <- c.snapshot()
			case refreshMsg:
				c.publish()
			case rosterMsg:
				if c.state.Call == domain.CallConnected && c.opts.OnRoster != nil {
					c.opts.OnRoster(msg.ev)
				}
			}
		}
	}
}

func (c *Controller) forwardSignals() {
	events := c.opts.Signal.Events()
	for {
		select {
		case <-c.ctx.Done():
			return
		case se, ok := <-events:
			if !ok {
				log.Warn().Str("module", "app.call").Msg("signal channel closed")
				return
			}
			var m msg
			switch se.Kind {
			case core.SignalInboundOffer:
				m = eventMsg{ev: Event{Type: EvInboundOffer, Peer: se.Peer, OfferID: se.OfferID}}
			case core.SignalRemoteHangUp:
				m = eventMsg{ev: Event{Type: EvRemoteHangUp}}
			case core.SignalRemoteAccepted:
				m = eventMsg{ev: Event{Type: EvRemoteAccepted}}
			case core.SignalRemoteStream:
				m = eventMsg{ev: Event{Type: EvRemoteStream, Stream: se.Stream}}
			case core.SignalParticipantJoin, core.SignalParticipantLeave, core.SignalParticipantMedia:
				m = rosterMsg{ev: se}
			default:
				log.Warn().Str("module", "app.call").Str("kind", string(se.Kind)).Msg("unknown signal event")
				continue
			}
			if !c.post(m) {
				return
			}
		}
	}
}

func (c *Controller) apply(ev Event) error {
	if ev.At.IsZero() {
		ev.At = c.opts.Now()
	}
	from := c.state.Call
	next, effects, err := Apply(c.state, ev)
	c.state = next
	if err != nil {
		log.Warn().Err(err).Str("module", "app.call").Str("state", string(from)).Str("event", string(ev.Type)).Msg("event rejected")
		for _, e := range effects {
			c.run(e)
		}
		c.publish()
		return err
	}
	if from != next.Call {
		log.Info().Str("module", "app.call").Str("from", string(from)).Str("to", string(next.Call)).Str("event", string(ev.Type)).Msg("transition")
	}

	confirm := false
	var answered *Event
	for _, e := range effects {
		switch e.Type {
		case EffConfirmCleanup:
			confirm = true
		case EffSignalAccept:
			res := Event{Type: EvSignalAccepted}
			if err := c.signal("accept", c.opts.Signal.Accept); err != nil {
				res = Event{Type: EvSignalAcceptFailed, Err: err}
			}
			answered = &res
		default:
			c.run(e)
		}
	}
	c.publish()
	if confirm {
		c.confirmCleanup()
	}
	if answered != nil {
		// the call connects only once the answer went out
		if err := c.apply(*answered); err != nil {
			return err
		}
		return answered.Err
	}
	return nil
}

func (c *Controller) run(e Effect) {
	switch e.Type {
	case EffAcquireLocal:
		ctx, cancel := context.WithTimeout(c.ctx, c.opts.AcquireTimeout)
		c.cancelAcquire = cancel
		go c.acquire(ctx, cancel)
	case EffCancelAcquire:
		if c.cancelAcquire != nil {
			c.cancelAcquire()
			c.cancelAcquire = nil
		}
	case EffReleaseLocal:
		if err := c.opts.Media.ReleaseLocal(); err != nil {
			log.Error().Err(err).Str("module", "app.call").Msg("release local")
		}
	case EffBindRemote:
		ctx, cancel := context.WithCancel(c.ctx)
		c.cancelBind = cancel
		go c.bind(ctx, cancel, e.Stream)
	case EffCancelBind:
		if c.cancelBind != nil {
			c.cancelBind()
			c.cancelBind = nil
		}
	case EffReleaseRemote:
		if err := c.opts.Media.ReleaseRemote(); err != nil {
			log.Error().Err(err).Str("module", "app.call").Msg("release remote")
		}
	case EffDiscardRemote:
		if err := e.Stream.Close(); err != nil {
			log.Warn().Err(err).Str("module", "app.call").Str("stream", e.Stream.ID()).Msg("discard remote")
		}
	case EffStartTimer:
		c.stopTimer()
		epoch := e.Epoch
		c.timer = c.opts.Scheduler.Every(c.opts.TickPeriod, func() {
			c.post(eventMsg{ev: Event{Type: EvTick, Epoch: epoch}})
		})
	case EffStopTimer:
		c.stopTimer()
	case EffSignalInitiate:
		peer := *e.Peer
		c.noticeOnError("initiate", c.signal("initiate", func(ctx context.Context) error { return c.opts.Signal.Initiate(ctx, peer) }))
	case EffSignalReject:
		c.noticeOnError("reject", c.signal("reject", c.opts.Signal.Reject))
	case EffSignalHangUp:
		c.noticeOnError("hang-up", c.signal("hang-up", c.opts.Signal.HangUp))
	case EffSignalDecline:
		id, offer := e.Peer.ID, e.OfferID
		if err := c.signal("decline", func(ctx context.Context) error { return c.opts.Signal.Decline(ctx, id, offer) }); err != nil {
			log.Warn().Err(err).Str("module", "app.call").Str("peer", string(id)).Msg("decline conflicting offer")
		}
	}
}

func (c *Controller) acquire(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	s, err := c.opts.Media.AcquireLocal(ctx)
	ev := Event{Type: EvLocalAcquired}
	if err != nil {
		ev = Event{Type: EvLocalAcquireFailed, Err: err}
	} else {
		ev.Ref = s.ID()
	}
	if !c.post(eventMsg{ev: ev}) && err == nil {
		// loop is gone; never leak the device
		if rerr := c.opts.Media.ReleaseLocal(); rerr != nil && !errors.Is(rerr, media.ErrNotHeld) {
			log.Warn().Err(rerr).Str("module", "app.call").Msg("release after shutdown")
		}
	}
}

func (c *Controller) bind(ctx context.Context, cancel context.CancelFunc, s core.RemoteStream) {
	defer cancel()
	ev := Event{Type: EvRemoteBound, Ref: s.ID()}
	if err := c.opts.Media.BindRemote(ctx, s); err != nil {
		if cerr := s.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("module", "app.call").Msg("close unbound remote")
		}
		ev = Event{Type: EvRemoteBindFailed, Ref: s.ID(), Err: err}
	}
	if !c.post(eventMsg{ev: ev}) && ev.Type == EvRemoteBound {
		// loop is gone; the manager owns the stream now
		if rerr := c.opts.Media.ReleaseRemote(); rerr != nil && !errors.Is(rerr, media.ErrNotHeld) {
			log.Warn().Err(rerr).Str("module", "app.call").Msg("release remote after shutdown")
		}
	}
}

func (c *Controller) signal(op string, fn func(ctx context.Context) error) error {
	if c.opts.Signal == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.SignalTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn().Err(err).Str("module", "app.call").Str("op", op).Msg("signal failed")
		return err
	}
	return nil
}

func (c *Controller) noticeOnError(op string, err error) {
	if err != nil {
		c.state.Notice = "signaling " + op + " failed: " + err.Error()
	}
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) confirmCleanup() {
	if c.opts.Media.HoldsLocal() {
		log.Error().Str("module", "app.call").Msg("local stream still held at cleanup")
		_ = c.opts.Media.ReleaseLocal()
	}
	if c.opts.Media.HoldsRemote() {
		log.Error().Str("module", "app.call").Msg("remote stream still held at cleanup")
		_ = c.opts.Media.ReleaseRemote()
	}
	c.opts.Media.Reset()
	if err := c.apply(Event{Type: EvCleanupDone}); err != nil {
		log.Error().Err(err).Str("module", "app.call").Msg("cleanup")
	}
}

func (c *Controller) shutdown() {
	c.stopTimer()
	if c.cancelAcquire != nil {
		c.cancelAcquire()
	}
	if c.cancelBind != nil {
		c.cancelBind()
	}
	if c.opts.Media.HoldsLocal() {
		_ = c.opts.Media.ReleaseLocal()
	}
	if c.opts.Media.HoldsRemote() {
		_ = c.opts.Media.ReleaseRemote()
	}
	log.Info().Str("module", "app.call").Str("state", string(c.state.Call)).Msg("controller stopped")
}

func (c *Controller) snapshot() domain.CallSession {
	return c.state.Session(c.opts.Media.State())
}

func (c *Controller) publish() {
	next := c.snapshot()
	prev := c.last
	c.last = next
	if c.opts.OnChange != nil {
		c.opts.OnChange(prev, next)
	}
}
