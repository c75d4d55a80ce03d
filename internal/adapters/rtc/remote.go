package rtc

import (
	"context"
	"errors"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrStreamClosed = errors.New("remote stream closed")

// PacketSource is one incoming track.
type PacketSource interface {
	ID() string
	Kind() webrtc.RTPCodecType
	ReadPacket() (*rtp.Packet, error)
}

type trackSource struct{ t *webrtc.TrackRemote }

// TrackSource adapts a pion remote track.
func TrackSource(t *webrtc.TrackRemote) PacketSource { return trackSource{t: t} }

func (s trackSource) ID() string                { return s.t.ID() }
func (s trackSource) Kind() webrtc.RTPCodecType { return s.t.Kind() }

func (s trackSource) ReadPacket() (*rtp.Packet, error) {
	pkt, _, err := s.t.ReadRTP()
	return pkt, err
}

// PacketSink receives forwarded packets; *webrtc.TrackLocalStaticRTP is one.
type PacketSink interface {
	WriteRTP(p *rtp.Packet) error
}

type SinkState int32

const (
	SinkStateOk SinkState = iota
	SinkStateDelete
)

// sink is a single render target of one track kind.
type sink struct {
	kind  webrtc.RTPCodecType
	out   PacketSink
	state atomic.Int32
}

func (s *sink) get() SinkState   { return SinkState(s.state.Load()) }
func (s *sink) set(st SinkState) { s.state.Store(int32(st)) }

// RemoteStream drains the peer's tracks and forwards packets to the attached
// sinks. Packets are consumed even with no sink so the receiver never stalls.
type RemoteStream struct {
	id string

	mu      sync.RWMutex
	sources []PacketSource
	sinks   map[string]*sink
	ctx     context.Context
	cancel  context.CancelFunc
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup

	packets atomic.Uint64
}

func NewRemoteStream(id string) *RemoteStream {
	return &RemoteStream{id: id, sinks: make(map[string]*sink), done: make(chan struct{})}
}

func (r *RemoteStream) ID() string { return r.id }

// AddSource registers a track; once started its loop runs immediately.
func (r *RemoteStream) AddSource(src PacketSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.sources = append(r.sources, src)
	if r.ctx != nil {
		r.spawn(src)
	}
}

// Start begins draining. Starting twice is a no-op.
func (r *RemoteStream) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrStreamClosed
	}
	if r.ctx != nil {
		return nil
	}
	// the stream outlives the bind call; only Close stops it
	r.ctx, r.cancel = context.WithCancel(context.Background())
	for _, src := range r.sources {
		r.spawn(src)
	}
	return nil
}

// spawn must be called with mu held.
func (r *RemoteStream) spawn(src PacketSource) {
	logger := log.With().
		Str("module", "adapters.rtc").
		Str("stream", r.id).
		Str("track", src.ID()).
		Logger()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(r.ctx, src, &logger)
	}()
}

func (r *RemoteStream) loop(ctx context.Context, src PacketSource, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, err := src.ReadPacket()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn().Err(err).Msg("read RTP error, stopping track")
			}
			return
		}
		r.packets.Add(1)
		r.forward(src.Kind(), pkt, logger)
	}
}

func (r *RemoteStream) forward(kind webrtc.RTPCodecType, pkt *rtp.Packet, logger *zerolog.Logger) {
	snapshot := make(map[string]*sink, len(r.sinks))
	r.mu.RLock()
	maps.Copy(snapshot, r.sinks)
	r.mu.RUnlock()

	var dirty []string
	for id, s := range snapshot {
		if s.kind != kind {
			continue
		}
		switch s.get() {
		case SinkStateDelete:
			dirty = append(dirty, id)
		case SinkStateOk:
			if err := s.out.WriteRTP(pkt); err != nil {
				logger.Error().Err(err).Str("sink", id).Msg("write RTP error, dropping sink")
				s.set(SinkStateDelete)
				dirty = append(dirty, id)
			}
		}
	}
	if len(dirty) > 0 {
		r.mu.Lock()
		for _, id := range dirty {
			if s, ok := r.sinks[id]; ok && s.get() == SinkStateDelete {
				delete(r.sinks, id)
			}
		}
		r.mu.Unlock()
	}
}

// AddSink attaches a render target for one track kind, replacing any sink
// with the same id.
func (r *RemoteStream) AddSink(id string, kind webrtc.RTPCodecType, out PacketSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sinks[id]; ok {
		old.set(SinkStateDelete)
	}
	r.sinks[id] = &sink{kind: kind, out: out}
}

func (r *RemoteStream) RemoveSink(id string) {
	r.mu.RLock()
	s, ok := r.sinks[id]
	r.mu.RUnlock()
	if ok {
		s.set(SinkStateDelete)
	}
}

// Packets reports how many packets were read across all tracks.
func (r *RemoteStream) Packets() uint64 { return r.packets.Load() }

// Close stops every loop. Loops blocked in a read exit once the connection
// closes the track.
func (r *RemoteStream) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cancel := r.cancel
	for _, s := range r.sinks {
		s.set(SinkStateDelete)
	}
	close(r.done)
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	log.Info().Str("module", "adapters.rtc").Str("stream", r.id).Uint64("packets", r.packets.Load()).Msg("remote stream closed")
	return nil
}

// Done is closed once the stream is closed.
func (r *RemoteStream) Done() <-chan struct{} { return r.done }

// Wait blocks until every track loop has returned.
func (r *RemoteStream) Wait() { r.wg.Wait() }
