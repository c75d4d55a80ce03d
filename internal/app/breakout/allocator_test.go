package breakout

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/dkeye/callcore/internal/app/timer"
	"github.com/dkeye/callcore/internal/core/mocks"
	"github.com/dkeye/callcore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newAllocator(ids ...domain.ParticipantID) (*Allocator, *timer.Manual) {
	sched := timer.NewManual()
	a := NewAllocator(Options{Scheduler: sched})
	a.SetRoster(ids)
	return a, sched
}

func roomOf(st domain.BreakoutState, id domain.RoomID) domain.BreakoutRoom {
	for _, r := range st.Rooms {
		if r.ID == id {
			return r
		}
	}
	return domain.BreakoutRoom{}
}

func TestAssign_MovesBetweenRooms(t *testing.T) {
	a, _ := newAllocator("x", "y")

	r1, err := a.CreateRoom("Room 1")
	require.NoError(t, err)
	r2, err := a.CreateRoom("Room 2")
	require.NoError(t, err)

	require.NoError(t, a.Assign("x", r1.ID))
	require.NoError(t, a.Assign("x", r2.ID))

	st := a.Snapshot()
	assert.False(t, roomOf(st, r1.ID).Has("x"))
	assert.True(t, roomOf(st, r2.ID).Has("x"))
	assert.Equal(t, []domain.ParticipantID{"y"}, st.Unassigned)
	assert.NoError(t, a.CheckDisjoint())
}

func TestAssign_Errors(t *testing.T) {
	a, _ := newAllocator("x")
	r, _ := a.CreateRoom("")

	assert.ErrorIs(t, a.Assign("ghost", r.ID), ErrUnknownParticipant)
	assert.ErrorIs(t, a.Assign("x", "nope"), ErrUnknownRoom)
	assert.ErrorIs(t, a.Unassign("ghost"), ErrUnknownParticipant)
}

func TestCreateRoom_DefaultNames(t *testing.T) {
	a, _ := newAllocator()

	first, err := a.CreateRoom("  ")
	require.NoError(t, err)
	second, err := a.CreateRoom("Design")
	require.NoError(t, err)
	third, err := a.CreateRoom("")
	require.NoError(t, err)

	assert.Equal(t, "Room 1", first.Name)
	assert.Equal(t, "Design", second.Name)
	assert.Equal(t, "Room 3", third.Name)

	_, err = a.CreateRoom(strings.Repeat("r", domain.MaxRoomNameLen+1))
	assert.ErrorIs(t, err, ErrRoomNameTooLong)
}

func TestRenameAndDeleteRoom(t *testing.T) {
	a, _ := newAllocator("x")
	r, _ := a.CreateRoom("")
	require.NoError(t, a.Assign("x", r.ID))

	require.NoError(t, a.RenameRoom(r.ID, "Standup"))
	assert.Equal(t, "Standup", a.Snapshot().Rooms[0].Name)
	assert.ErrorIs(t, a.RenameRoom(r.ID, " "), ErrEmptyRoomName)
	assert.ErrorIs(t, a.RenameRoom("nope", "x"), ErrUnknownRoom)

	require.NoError(t, a.DeleteRoom(r.ID))
	st := a.Snapshot()
	assert.Empty(t, st.Rooms)
	assert.Equal(t, []domain.ParticipantID{"x"}, st.Unassigned)
	assert.ErrorIs(t, a.DeleteRoom(r.ID), ErrUnknownRoom)
}

func TestAutoAssign_RoundRobin(t *testing.T) {
	a, _ := newAllocator("a", "b", "c", "d", "e")
	r, _ := a.CreateRoom("Existing")
	require.NoError(t, a.Assign("a", r.ID))

	require.NoError(t, a.AutoAssign(2))
	st := a.Snapshot()
	require.Len(t, st.Rooms, 2)
	assert.Equal(t, []domain.ParticipantID{"a", "b", "d"}, st.Rooms[0].ParticipantIDs)
	assert.Equal(t, []domain.ParticipantID{"c", "e"}, st.Rooms[1].ParticipantIDs)
	assert.Empty(t, st.Unassigned)
	assert.NoError(t, a.CheckDisjoint())

	assert.ErrorIs(t, a.AutoAssign(0), ErrInvalidRoomCount)
}

func TestSetRoster_DropsDepartedParticipants(t *testing.T) {
	a, _ := newAllocator("a", "b")
	r, _ := a.CreateRoom("")
	require.NoError(t, a.Assign("a", r.ID))
	require.NoError(t, a.Assign("b", r.ID))

	a.SetRoster([]domain.ParticipantID{"b", "c"})
	st := a.Snapshot()
	assert.Equal(t, []domain.ParticipantID{"b"}, st.Rooms[0].ParticipantIDs)
	assert.Equal(t, []domain.ParticipantID{"c"}, st.Unassigned)
	assert.NoError(t, a.CheckDisjoint())
}

func TestCountdown_ClosesRoomsAtZero(t *testing.T) {
	a, sched := newAllocator("x")
	require.NoError(t, a.SetTimer(1))
	assert.ErrorIs(t, a.SetTimer(-1), ErrInvalidTimer)

	a.Open()
	st := a.Snapshot()
	assert.True(t, st.IsActive)
	assert.Equal(t, 60, st.RemainingSeconds)

	sched.Advance(59)
	assert.Equal(t, 1, a.Snapshot().RemainingSeconds)

	sched.Advance(1)
	st = a.Snapshot()
	assert.False(t, st.IsActive)
	assert.Zero(t, st.RemainingSeconds)
	assert.Zero(t, sched.Active())
}

func TestClose_CancelsCountdown(t *testing.T) {
	a, sched := newAllocator("x")
	require.NoError(t, a.SetTimer(5))
	a.Open()
	sched.Advance(10)

	a.Close()
	assert.Zero(t, sched.Active())
	sched.Advance(10)

	st := a.Snapshot()
	assert.False(t, st.IsActive)
	assert.Zero(t, st.RemainingSeconds)
}

func TestOpen_WithoutTimerHasNoCountdown(t *testing.T) {
	a, sched := newAllocator("x")
	a.Open()
	assert.True(t, a.Snapshot().IsActive)
	assert.Zero(t, sched.Active())
}

func TestOnChange_ReceivesSnapshots(t *testing.T) {
	var got []domain.BreakoutState
	a := NewAllocator(Options{OnChange: func(st domain.BreakoutState) { got = append(got, st) }})
	a.SetRoster([]domain.ParticipantID{"x"})
	r, _ := a.CreateRoom("")
	require.NoError(t, a.Assign("x", r.ID))

	require.Len(t, got, 3)
	assert.True(t, got[2].Rooms[0].Has("x"))
	assert.Empty(t, got[1].Rooms[0].ParticipantIDs)
}

func TestBroadcast_ReachesAssignedOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	notifier.EXPECT().Notify(gomock.Any(), domain.ParticipantID("a"), "five minutes left").Return(nil)
	notifier.EXPECT().Notify(gomock.Any(), domain.ParticipantID("b"), "five minutes left").Return(errors.New("offline"))

	a := NewAllocator(Options{Notifier: notifier})
	a.SetRoster([]domain.ParticipantID{"a", "b", "c"})
	r1, _ := a.CreateRoom("")
	r2, _ := a.CreateRoom("")
	require.NoError(t, a.Assign("a", r1.ID))
	require.NoError(t, a.Assign("b", r2.ID))
	before := a.Snapshot()

	n, err := a.Broadcast(context.Background(), "  five minutes left ")
	assert.Equal(t, 2, n)
	assert.ErrorContains(t, err, "offline")
	assert.Equal(t, before, a.Snapshot())

	_, err = a.Broadcast(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestRandomOperationsStayDisjoint(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 1))
	ids := make([]domain.ParticipantID, 12)
	for i := range ids {
		ids[i] = domain.ParticipantID(fmt.Sprintf("p%d", i))
	}
	a, _ := newAllocator(ids...)

	var rooms []domain.RoomID
	for range 2000 {
		pid := ids[rng.IntN(len(ids))]
		switch rng.IntN(6) {
		case 0:
			r, err := a.CreateRoom("")
			require.NoError(t, err)
			rooms = append(rooms, r.ID)
		case 1:
			if len(rooms) > 0 {
				i := rng.IntN(len(rooms))
				require.NoError(t, a.DeleteRoom(rooms[i]))
				rooms = append(rooms[:i], rooms[i+1:]...)
			}
		case 2:
			require.NoError(t, a.Unassign(pid))
		case 3:
			if len(rooms) > 0 {
				_ = a.AutoAssign(1 + rng.IntN(len(rooms)))
				rooms = rooms[:0]
				for _, r := range a.Snapshot().Rooms {
					rooms = append(rooms, r.ID)
				}
			}
		default:
			if len(rooms) > 0 {
				require.NoError(t, a.Assign(pid, rooms[rng.IntN(len(rooms))]))
			}
		}
		require.NoError(t, a.CheckDisjoint())

		st := a.Snapshot()
		total := len(st.Unassigned)
		for _, r := range st.Rooms {
			total += len(r.ParticipantIDs)
		}
		require.Equal(t, len(ids), total)
	}
}
