package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/callcore/internal/core"
	"github.com/dkeye/callcore/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoTracks      = errors.New("no tracks requested")
	ErrForeignStream = errors.New("stream not issued by this provider")
	ErrReleased      = errors.New("stream released")
)

// Source feeds samples into a held stream until ctx is done.
type Source func(ctx context.Context, s *LocalStream)

// LocalStream is a pair of sample tracks. Disabled tracks stay attached and
// drop their samples.
type LocalStream struct {
	id     string
	audio  *webrtc.TrackLocalStaticSample
	video  *webrtc.TrackLocalStaticSample
	micOn  atomic.Bool
	camOn  atomic.Bool
	cancel context.CancelFunc

	mu       sync.Mutex
	facing   domain.FacingMode
	released bool
}

func (s *LocalStream) ID() string { return s.id }

func (s *LocalStream) SetTrackEnabled(kind domain.TrackKind, enabled bool) {
	switch kind {
	case domain.TrackAudio:
		s.micOn.Store(enabled)
	case domain.TrackVideo:
		s.camOn.Store(enabled)
	}
}

func (s *LocalStream) Enabled(kind domain.TrackKind) bool {
	if kind == domain.TrackAudio {
		return s.audio != nil && s.micOn.Load()
	}
	return s.video != nil && s.camOn.Load()
}

// SwitchFacing flips the video source. A stream without video has nothing to
// flip.
func (s *LocalStream) SwitchFacing(ctx context.Context) (domain.FacingMode, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return "", ErrReleased
	}
	if s.video == nil {
		return "", fmt.Errorf("switch facing: %w", ErrNoTracks)
	}
	s.facing = s.facing.Flip()
	return s.facing, nil
}

func (s *LocalStream) Facing() domain.FacingMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facing
}

// Track returns the sample track of kind, or nil when it was not captured.
func (s *LocalStream) Track(kind domain.TrackKind) *webrtc.TrackLocalStaticSample {
	if kind == domain.TrackAudio {
		return s.audio
	}
	return s.video
}

// WriteSample pushes a sample to an enabled track. Samples for disabled or
// missing tracks are dropped.
func (s *LocalStream) WriteSample(kind domain.TrackKind, sample media.Sample) error {
	if !s.Enabled(kind) {
		return nil
	}
	return s.Track(kind).WriteSample(sample)
}

type ProviderOptions struct {
	// Source, when set, runs for every held stream.
	Source Source
	// OnAcquire and OnRelease let the transport attach and detach tracks.
	OnAcquire func(*LocalStream)
	OnRelease func(*LocalStream)
}

// Provider issues local streams backed by pion sample tracks.
type Provider struct {
	opts ProviderOptions

	mu   sync.Mutex
	held map[string]*LocalStream
}

func NewProvider(opts ProviderOptions) *Provider {
	return &Provider{opts: opts, held: make(map[string]*LocalStream)}
}

func (p *Provider) Acquire(ctx context.Context, c domain.Constraints) (core.LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Audio && !c.Video {
		return nil, ErrNoTracks
	}
	id := uuid.NewString()
	s := &LocalStream{id: id, facing: c.Facing}
	if s.facing == "" {
		s.facing = domain.FacingUser
	}

	var err error
	if c.Audio {
		s.audio, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", id)
		if err != nil {
			return nil, fmt.Errorf("audio track: %w", err)
		}
	}
	if c.Video {
		s.video, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", id)
		if err != nil {
			return nil, fmt.Errorf("video track: %w", err)
		}
	}
	s.micOn.Store(c.Audio)
	s.camOn.Store(c.Video)

	srcCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	p.mu.Lock()
	p.held[id] = s
	p.mu.Unlock()

	if p.opts.Source != nil {
		go p.opts.Source(srcCtx, s)
	}
	if p.opts.OnAcquire != nil {
		p.opts.OnAcquire(s)
	}
	log.Info().Str("module", "adapters.rtc").Str("stream", id).Bool("audio", c.Audio).Bool("video", c.Video).Msg("capture started")
	return s, nil
}

func (p *Provider) Release(ls core.LocalStream) error {
	s, ok := ls.(*LocalStream)
	if !ok {
		return ErrForeignStream
	}
	p.mu.Lock()
	if _, held := p.held[s.id]; !held {
		p.mu.Unlock()
		return ErrReleased
	}
	delete(p.held, s.id)
	p.mu.Unlock()

	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
	s.cancel()

	if p.opts.OnRelease != nil {
		p.opts.OnRelease(s)
	}
	log.Info().Str("module", "adapters.rtc").Str("stream", s.id).Msg("capture stopped")
	return nil
}

// Held reports how many streams are currently issued.
func (p *Provider) Held() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.held)
}

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilenceSource keeps the audio track alive with silent frames. It is used
// where no capture device exists.
func SilenceSource(ctx context.Context, s *LocalStream) {
	const frame = 20 * time.Millisecond
	t := time.NewTicker(frame)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.WriteSample(domain.TrackAudio, media.Sample{Data: opusSilence, Duration: frame}); err != nil {
				log.Warn().Err(err).Str("module", "adapters.rtc").Str("stream", s.id).Msg("silence write")
				return
			}
		}
	}
}
