package domain

import "github.com/google/uuid"

const MaxRoomNameLen = 36

type RoomID string

func NewRoomID() RoomID {
	return RoomID(uuid.NewString())
}

// BreakoutRoom is a snapshot of one room. ParticipantIDs keeps assignment
// order so views render stably.
type BreakoutRoom struct {
	ID             RoomID          `json:"id"`
	Name           string          `json:"name"`
	ParticipantIDs []ParticipantID `json:"participant_ids"`
}

func (r BreakoutRoom) Has(id ParticipantID) bool {
	for _, p := range r.ParticipantIDs {
		if p == id {
			return true
		}
	}
	return false
}

type BreakoutState struct {
	Rooms            []BreakoutRoom  `json:"rooms"`
	Unassigned       []ParticipantID `json:"unassigned"`
	IsActive         bool            `json:"is_active"`
	TimerMinutes     int             `json:"timer_minutes"`
	RemainingSeconds int             `json:"remaining_seconds"`
}

// RoomOf returns the room holding id, if any.
func (s BreakoutState) RoomOf(id ParticipantID) (BreakoutRoom, bool) {
	for _, r := range s.Rooms {
		if r.Has(id) {
			return r, true
		}
	}
	return BreakoutRoom{}, false
}
