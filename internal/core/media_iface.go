package core

//go:generate mockgen -source=media_iface.go -destination=mocks/media_mock.go -package=mocks

import (
	"context"

	"github.com/dkeye/callcore/internal/domain"
)

// LocalStream is a held capture handle. It is owned by the media manager;
// nothing else may release it.
type LocalStream interface {
	ID() string
	// SetTrackEnabled enables or disables a track without replacing it.
	SetTrackEnabled(kind domain.TrackKind, enabled bool)
	// SwitchFacing flips the video source and reports the new facing mode.
	SwitchFacing(ctx context.Context) (domain.FacingMode, error)
}

// RemoteStream is the media originating from the peer.
type RemoteStream interface {
	ID() string
	// Start begins consuming media; it returns once the stream is bound.
	Start(ctx context.Context) error
	Close() error
}

type CaptureProvider interface {
	Acquire(ctx context.Context, c domain.Constraints) (LocalStream, error)
	Release(s LocalStream) error
}

// PiPHost renders a stream in a floating picture-in-picture surface.
type PiPHost interface {
	Enter(ctx context.Context, ref string) error
	Exit() error
}

// Directory supplies display identity for a participant id.
type Directory interface {
	Lookup(ctx context.Context, id domain.ParticipantID) (displayName, avatarRef string, err error)
}
