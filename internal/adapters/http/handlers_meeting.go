package http

import (
	"net/http"

	"github.com/dkeye/callcore/internal/domain"
	"github.com/gin-gonic/gin"
)

type RoomRequest struct {
	Name string `json:"name"`
}

type AssignRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
	RoomID        string `json:"room_id"`
}

type AutoAssignRequest struct {
	Rooms int `json:"rooms"`
}

type TimerRequest struct {
	Minutes int `json:"minutes"`
}

type BroadcastRequest struct {
	Message string `json:"message"`
}

type BroadcastResponse struct {
	Delivered int    `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

type PollRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type VoteRequest struct {
	OptionID string `json:"option_id" binding:"required"`
}

type QuestionRequest struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

func (a *API) done(c *gin.Context, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) createRoom(c *gin.Context) {
	var req RoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	room, err := a.orch.CreateRoom(req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (a *API) renameRoom(c *gin.Context) {
	var req RoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a.done(c, a.orch.RenameRoom(domain.RoomID(c.Param("id")), req.Name))
}

func (a *API) deleteRoom(c *gin.Context) {
	a.done(c, a.orch.DeleteRoom(domain.RoomID(c.Param("id"))))
}

// assign with an empty room_id moves the participant back to unassigned.
func (a *API) assign(c *gin.Context) {
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	pid := domain.ParticipantID(req.ParticipantID)
	if req.RoomID == "" {
		a.done(c, a.orch.Unassign(pid))
		return
	}
	a.done(c, a.orch.Assign(pid, domain.RoomID(req.RoomID)))
}

func (a *API) unassign(c *gin.Context) {
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a.done(c, a.orch.Unassign(domain.ParticipantID(req.ParticipantID)))
}

func (a *API) autoAssign(c *gin.Context) {
	var req AutoAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a.done(c, a.orch.AutoAssign(req.Rooms))
}

func (a *API) setTimer(c *gin.Context) {
	var req TimerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a.done(c, a.orch.SetBreakoutTimer(req.Minutes))
}

func (a *API) openRooms(c *gin.Context)  { a.done(c, a.orch.OpenRooms()) }
func (a *API) closeRooms(c *gin.Context) { a.done(c, a.orch.CloseRooms()) }

// broadcast reports partial delivery with 207.
func (a *API) broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx, cancel := a.ctx(c)
	defer cancel()
	n, err := a.orch.Broadcast(ctx, req.Message)
	if err != nil && n == 0 {
		writeError(c, err)
		return
	}
	resp := BroadcastResponse{Delivered: n}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusMultiStatus
	}
	c.JSON(status, resp)
}

func (a *API) createPoll(c *gin.Context) {
	var req PollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := a.orch.CreatePoll(req.Question, req.Options)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (a *API) vote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := a.orch.Vote(domain.PollID(c.Param("id")), domain.OptionID(req.OptionID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *API) closePoll(c *gin.Context) {
	a.done(c, a.orch.ClosePoll(domain.PollID(c.Param("id"))))
}

func (a *API) tally(c *gin.Context) {
	t, err := a.orch.Tally(domain.PollID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (a *API) ask(c *gin.Context) {
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	q, err := a.orch.Ask(req.Text, req.Author)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

func (a *API) upvote(c *gin.Context) {
	q, err := a.orch.Upvote(domain.QuestionID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (a *API) markAnswered(c *gin.Context) {
	a.done(c, a.orch.MarkAnswered(domain.QuestionID(c.Param("id"))))
}
