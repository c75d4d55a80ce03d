package domain

import "time"

type CallState string

const (
	CallIdle      CallState = "idle"
	CallCalling   CallState = "calling"
	CallIncoming  CallState = "incoming"
	CallConnected CallState = "connected"
	CallEnded     CallState = "ended"
)

// CallStates lists every value a CallSession.State may take.
var CallStates = []CallState{CallIdle, CallCalling, CallIncoming, CallConnected, CallEnded}

func (s CallState) Valid() bool {
	switch s {
	case CallIdle, CallCalling, CallIncoming, CallConnected, CallEnded:
		return true
	}
	return false
}

type FacingMode string

const (
	FacingUser        FacingMode = "user"
	FacingEnvironment FacingMode = "environment"
)

func (f FacingMode) Flip() FacingMode {
	if f == FacingEnvironment {
		return FacingUser
	}
	return FacingEnvironment
}

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Constraints is what the capture provider is asked for.
type Constraints struct {
	Audio  bool       `json:"audio"`
	Video  bool       `json:"video"`
	Facing FacingMode `json:"facing"`
}

func DefaultConstraints() Constraints {
	return Constraints{Audio: true, Video: true, Facing: FacingUser}
}

// MediaState is the read-only view of the media manager.
type MediaState struct {
	LocalRef  string     `json:"local_ref,omitempty"`
	RemoteRef string     `json:"remote_ref,omitempty"`
	MicOn     bool       `json:"mic_on"`
	CameraOn  bool       `json:"camera_on"`
	Facing    FacingMode `json:"facing"`
	PiP       bool       `json:"pip"`
}

// CallSession is an immutable snapshot handed to the presentation layer.
type CallSession struct {
	State          CallState  `json:"state"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	ElapsedSeconds int        `json:"elapsed_seconds"`
	Peer           *Peer      `json:"peer,omitempty"`
	LocalMediaRef  string     `json:"local_media_ref,omitempty"`
	RemoteMediaRef string     `json:"remote_media_ref,omitempty"`
	Acquiring      bool       `json:"acquiring"`
	Notice         string     `json:"notice,omitempty"`
	// LastDurationSeconds is the length of the previous session, kept for the
	// "call ended" banner after the session itself is discarded.
	LastDurationSeconds int        `json:"last_duration_seconds"`
	Media               MediaState `json:"media"`
}
