package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/callcore/internal/app"
	"github.com/dkeye/callcore/internal/app/call"
	"github.com/dkeye/callcore/internal/app/media"
	"github.com/dkeye/callcore/internal/app/orch"
	"github.com/dkeye/callcore/internal/app/poll"
	"github.com/dkeye/callcore/internal/app/timer"
	"github.com/dkeye/callcore/internal/config"
	"github.com/dkeye/callcore/internal/core"
	"github.com/dkeye/callcore/internal/core/mocks"
	"github.com/dkeye/callcore/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type env struct {
	router   *gin.Engine
	o        *orch.Orchestrator
	events   chan core.SignalEvent
	notifier *mocks.MockNotifier
	cookie   string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctrl := gomock.NewController(t)

	e := &env{events: make(chan core.SignalEvent, 16), notifier: mocks.NewMockNotifier(ctrl)}
	sig := mocks.NewMockSignalChannel(ctrl)
	sig.EXPECT().Events().Return(e.events).AnyTimes()
	sig.EXPECT().Initiate(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	sig.EXPECT().HangUp(gomock.Any()).Return(nil).AnyTimes()

	local := mocks.NewMockLocalStream(ctrl)
	local.EXPECT().ID().Return("local-1").AnyTimes()
	local.EXPECT().SetTrackEnabled(gomock.Any(), gomock.Any()).AnyTimes()
	local.EXPECT().SwitchFacing(gomock.Any()).Return(domain.FacingEnvironment, nil).AnyTimes()
	provider := mocks.NewMockCaptureProvider(ctrl)
	provider.EXPECT().Acquire(gomock.Any(), gomock.Any()).Return(local, nil).AnyTimes()
	provider.EXPECT().Release(local).Return(nil).AnyTimes()

	dir := mocks.NewMockDirectory(ctrl)
	dir.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return("Bob", "", nil).AnyTimes()

	e.o = orch.New(orch.Config{
		Local:     domain.Participant{ID: "me", DisplayName: "Me"},
		Directory: dir,
		Notifier:  e.notifier,
		Scheduler: timer.NewManual(),
		Hub:       orch.NewHub(64, app.SimplePolicy{MaxMissed: 1000}),
	}, call.Options{
		Media:  media.NewManager(provider, nil, domain.DefaultConstraints()),
		Signal: sig,
	})
	e.o.Start(context.Background())
	t.Cleanup(e.o.Stop)

	e.router = SetupRouter(&config.Config{
		Mode:           "test",
		Secret:         "test-secret",
		RateLimit:      2,
		RateInterval:   time.Minute,
		SignalTimeout:  time.Second,
		AcquireTimeout: time.Second,
	}, e.o)
	return e
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if e.cookie != "" {
		req.Header.Set("Cookie", e.cookie)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if c := w.Header().Get("Set-Cookie"); c != "" {
		e.cookie = strings.SplitN(c, ";", 2)[0]
	}
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *env) connect(t *testing.T) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/call/dial", DialRequest{PeerID: "bob"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.CallCalling, decode[domain.CallSession](t, w).State)

	e.events <- core.SignalEvent{Kind: core.SignalRemoteAccepted}
	require.Eventually(t, func() bool { return e.o.Snapshot().Breakout != nil }, 2*time.Second, 5*time.Millisecond)
}

func TestRouter_SessionCookieIsStable(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, e.cookie)
	assert.Equal(t, domain.CallIdle, decode[domain.CallSession](t, w).State)

	first := e.cookie
	w = e.do(t, http.MethodGet, "/api/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Set-Cookie"))
	assert.Equal(t, first, e.cookie)
}

func TestRouter_CallTransitions(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/call/dial", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/call/accept", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodPost, "/api/media/pip", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	e.connect(t)
	w = e.do(t, http.MethodPost, "/api/media/mic", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[ToggleResponse](t, w).On)

	w = e.do(t, http.MethodPost, "/api/media/flip", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.FacingEnvironment, decode[FacingResponse](t, w).Facing)

	w = e.do(t, http.MethodPost, "/api/call/hangup", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, domain.CallConnected, decode[domain.CallSession](t, w).State)
}

func TestRouter_MeetingRequiresConnectedCall(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/polls", PollRequest{Question: "q", Options: []string{"a", "b"}})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = e.do(t, http.MethodPost, "/api/breakout/open", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_PollsAndQuestions(t *testing.T) {
	e := newEnv(t)
	e.connect(t)

	w := e.do(t, http.MethodPost, "/api/polls", PollRequest{Question: "Lunch?", Options: []string{"pizza"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/polls", PollRequest{Question: "Lunch?", Options: []string{"pizza", "salad"}})
	require.Equal(t, http.StatusCreated, w.Code)
	p := decode[domain.Poll](t, w)

	w = e.do(t, http.MethodPost, "/api/polls/"+string(p.ID)+"/vote", VoteRequest{OptionID: string(p.Options[1].ID)})
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodPost, "/api/polls/"+string(p.ID)+"/vote", VoteRequest{OptionID: "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/api/polls/"+string(p.ID)+"/tally", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tally := decode[domain.Tally](t, w)
	assert.Equal(t, 1, tally.TotalVotes)

	w = e.do(t, http.MethodPost, "/api/polls/"+string(p.ID)+"/close", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	// the limiter allows two votes a minute; the third is refused before the engine
	w = e.do(t, http.MethodPost, "/api/polls/"+string(p.ID)+"/vote", VoteRequest{OptionID: string(p.Options[0].ID)})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = e.do(t, http.MethodPost, "/api/questions", QuestionRequest{Text: "Why?"})
	require.Equal(t, http.StatusCreated, w.Code)
	q := decode[domain.Question](t, w)
	assert.Equal(t, "Anonymous", q.Author)

	w = e.do(t, http.MethodPost, "/api/questions/"+string(q.ID)+"/answer", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(t, http.MethodPost, "/api/questions/"+string(q.ID)+"/upvote", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_ClosedPollIsConflict(t *testing.T) {
	e := newEnv(t)
	e.connect(t)

	p, err := e.o.CreatePoll("Ship?", []string{"yes", "no"})
	require.NoError(t, err)
	require.NoError(t, e.o.ClosePoll(p.ID))

	w := e.do(t, http.MethodPost, "/api/polls/"+string(p.ID)+"/vote", VoteRequest{OptionID: string(p.Options[0].ID)})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_Breakout(t *testing.T) {
	e := newEnv(t)
	e.connect(t)

	w := e.do(t, http.MethodPost, "/api/breakout/rooms", RoomRequest{})
	require.Equal(t, http.StatusCreated, w.Code)
	room := decode[domain.BreakoutRoom](t, w)
	assert.Equal(t, "Room 1", room.Name)

	w = e.do(t, http.MethodPatch, "/api/breakout/rooms/"+string(room.ID), RoomRequest{Name: "Design"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, http.MethodPost, "/api/breakout/assign", AssignRequest{ParticipantID: "carol", RoomID: string(room.ID)})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodPost, "/api/breakout/assign", AssignRequest{ParticipantID: "bob", RoomID: string(room.ID)})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, http.MethodPut, "/api/breakout/timer", TimerRequest{Minutes: 500})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(t, http.MethodPut, "/api/breakout/timer", TimerRequest{Minutes: 5})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(t, http.MethodPost, "/api/breakout/open", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	e.notifier.EXPECT().Notify(gomock.Any(), domain.ParticipantID("bob"), "wrap up").Return(nil)
	w = e.do(t, http.MethodPost, "/api/breakout/broadcast", BroadcastRequest{Message: "wrap up"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[BroadcastResponse](t, w).Delivered)

	w = e.do(t, http.MethodPost, "/api/breakout/broadcast", BroadcastRequest{Message: "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/breakout/close", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	b := e.o.Snapshot().Breakout
	require.NotNil(t, b)
	assert.False(t, b.IsActive)
	require.Len(t, b.Rooms, 1)
	assert.Equal(t, "Design", b.Rooms[0].Name)

	w = e.do(t, http.MethodPost, "/api/breakout/auto", AutoAssignRequest{Rooms: 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(t, http.MethodDelete, "/api/breakout/rooms/"+string(room.ID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(t, http.MethodDelete, "/api/breakout/rooms/"+string(room.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_SnapshotStream(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/snapshots"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first orch.Snapshot
	require.NoError(t, ws.ReadJSON(&first))
	assert.Equal(t, domain.CallIdle, first.Call.State)

	go func() {
		_ = e.o.Dial(context.Background(), "bob")
	}()
	for {
		var s orch.Snapshot
		require.NoError(t, ws.ReadJSON(&s))
		require.GreaterOrEqual(t, s.Version, first.Version)
		if s.Call.State == domain.CallCalling {
			return
		}
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrapped: %w", call.ErrInvalidTransition), http.StatusConflict},
		{&media.DeviceError{Op: "acquire", Err: errors.New("busy")}, http.StatusServiceUnavailable},
		{poll.ErrUnknownPoll, http.StatusNotFound},
		{poll.ErrTooManyOptions, http.StatusBadRequest},
		{orch.ErrNoMeeting, http.StatusConflict},
		{media.ErrNotSupported, http.StatusNotImplemented},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusOf(tc.err), tc.err.Error())
	}
}

func TestRateLimiter_Window(t *testing.T) {
	rl := NewRateLimiter(2, time.Second)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, rl.Allow("a"))
}
