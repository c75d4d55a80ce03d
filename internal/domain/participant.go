// Package domain contains session entities without logic, just meta-data
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxParticipantIDLen = 64
	MaxDisplayNameLen   = 36
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrParticipantIDEmpty = errors.New("participant id empty")
)

type ParticipantID string

// Peer describes the remote party of a call. Display identity is owned by an
// external directory, so the strings are opaque here.
type Peer struct {
	ID          ParticipantID `json:"id"`
	DisplayName string        `json:"display_name"`
	AvatarRef   string        `json:"avatar_ref,omitempty"`
}

type Participant struct {
	ID          ParticipantID `json:"id"`
	DisplayName string        `json:"display_name"`
	AvatarRef   string        `json:"avatar_ref,omitempty"`
	MicOn       bool          `json:"mic_on"`
	CameraOn    bool          `json:"camera_on"`
	IsLocal     bool          `json:"is_local"`
}

// NewParticipantID is a tiny helper to avoid ad-hoc uuid calls in adapters.
func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.NewString())
}

func NewPeer(id ParticipantID, displayName, avatarRef string) (Peer, error) {
	if id == "" {
		return Peer{}, ErrParticipantIDEmpty
	}
	name, err := NormalizeDisplayName(displayName)
	if err != nil {
		// fall back to the id; a peer always needs something to render
		name = truncate(string(id), MaxDisplayNameLen)
	}
	return Peer{ID: id, DisplayName: name, AvatarRef: avatarRef}, nil
}

// NormalizeDisplayName trims and validates a display name.
func NormalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return "", ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return "", ErrDisplayNameTooLong
	}
	return name, nil
}

// AsParticipant turns the remote peer into a roster entry.
func (p Peer) AsParticipant() Participant {
	return Participant{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		AvatarRef:   p.AvatarRef,
		MicOn:       true,
		CameraOn:    true,
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
