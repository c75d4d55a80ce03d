package rtc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dkeye/callcore/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"
)

const (
	recordAudioSink = "record-audio"
	recordVideoSink = "record-video"
)

var ErrRecorderClosed = errors.New("recorder closed")

type mediaWriter interface {
	WriteRTP(p *rtp.Packet) error
	Close() error
}

// fileSink serializes writes with Close; writes after Close fail, which drops
// the sink.
type fileSink struct {
	mu     sync.Mutex
	w      mediaWriter
	closed bool
}

func (f *fileSink) WriteRTP(p *rtp.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return os.ErrClosed
	}
	return f.w.WriteRTP(p)
}

func (f *fileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.w.Close()
}

type recording struct {
	stream *RemoteStream
	audio  *fileSink
	video  *fileSink
}

// Recorder writes remote streams to disk: Opus audio to <id>.ogg and VP8
// video to <id>.ivf. A file pair is closed when its stream closes.
type Recorder struct {
	dir  string
	stop chan struct{}

	mu     sync.Mutex
	closed bool
	active map[string]*recording
}

func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recording dir: %w", err)
	}
	return &Recorder{dir: dir, stop: make(chan struct{}), active: make(map[string]*recording)}, nil
}

// Attach starts recording s. Attaching a stream twice is a no-op.
func (r *Recorder) Attach(s core.RemoteStream) error {
	rs, ok := s.(*RemoteStream)
	if !ok {
		return ErrForeignStream
	}
	select {
	case <-rs.Done():
		return ErrStreamClosed
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderClosed
	}
	if _, ok := r.active[rs.ID()]; ok {
		return nil
	}

	base := filepath.Join(r.dir, fileName(rs.ID()))
	audio, err := oggwriter.New(base+".ogg", 48000, 2)
	if err != nil {
		return fmt.Errorf("record audio: %w", err)
	}
	video, err := ivfwriter.New(base + ".ivf")
	if err != nil {
		_ = audio.Close()
		return fmt.Errorf("record video: %w", err)
	}

	rec := &recording{stream: rs, audio: &fileSink{w: audio}, video: &fileSink{w: video}}
	r.active[rs.ID()] = rec
	rs.AddSink(recordAudioSink, webrtc.RTPCodecTypeAudio, rec.audio)
	rs.AddSink(recordVideoSink, webrtc.RTPCodecTypeVideo, rec.video)
	go func() {
		select {
		case <-rs.Done():
			r.finish(rs.ID())
		case <-r.stop:
		}
	}()

	log.Info().Str("module", "adapters.rtc").Str("stream", rs.ID()).Str("path", base).Msg("recording started")
	return nil
}

func (r *Recorder) finish(id string) {
	r.mu.Lock()
	rec, ok := r.active[id]
	delete(r.active, id)
	r.mu.Unlock()
	if ok {
		rec.close()
	}
}

// Close stops every recording and refuses new ones.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.stop)
	active := r.active
	r.active = make(map[string]*recording)
	r.mu.Unlock()

	for _, rec := range active {
		rec.stream.RemoveSink(recordAudioSink)
		rec.stream.RemoveSink(recordVideoSink)
		rec.close()
	}
	return nil
}

func (rec *recording) close() {
	for _, f := range []*fileSink{rec.audio, rec.video} {
		if err := f.Close(); err != nil {
			log.Warn().Err(err).Str("module", "adapters.rtc").Str("stream", rec.stream.ID()).Msg("close recording")
		}
	}
	log.Info().Str("module", "adapters.rtc").Str("stream", rec.stream.ID()).Uint64("packets", rec.stream.Packets()).Msg("recording finished")
}

// fileName keeps stream ids from escaping the recording dir.
func fileName(id string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
	if name == "" {
		return "stream"
	}
	return name
}
