package http

import (
	"context"
	"net/http"

	"github.com/dkeye/callcore/internal/domain"
	"github.com/gin-gonic/gin"
)

type DialRequest struct {
	PeerID string `json:"peer_id" binding:"required"`
}

type ToggleResponse struct {
	On bool `json:"on"`
}

type FacingResponse struct {
	Facing domain.FacingMode `json:"facing"`
}

func (a *API) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), a.requestTimeout)
}

func (a *API) session(c *gin.Context) {
	ctx, cancel := a.ctx(c)
	defer cancel()
	s, err := a.orch.Call().Snapshot(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (a *API) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, a.orch.Snapshot())
}

func (a *API) dial(c *gin.Context) {
	var req DialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx, cancel := a.ctx(c)
	defer cancel()
	a.callAction(c, a.orch.Dial(ctx, domain.ParticipantID(req.PeerID)))
}

func (a *API) accept(c *gin.Context) {
	ctx, cancel := a.ctx(c)
	defer cancel()
	a.callAction(c, a.orch.Accept(ctx))
}

func (a *API) reject(c *gin.Context) {
	ctx, cancel := a.ctx(c)
	defer cancel()
	a.callAction(c, a.orch.Reject(ctx))
}

func (a *API) hangUp(c *gin.Context) {
	ctx, cancel := a.ctx(c)
	defer cancel()
	a.callAction(c, a.orch.HangUp(ctx))
}

// callAction answers with the session as it stands after the action.
func (a *API) callAction(c *gin.Context, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	a.session(c)
}

func (a *API) toggleMic(c *gin.Context) {
	ctx, cancel := a.ctx(c)
	defer cancel()
	on, err := a.orch.ToggleMic(ctx)
	a.toggled(c, on, err)
}

func (a *API) toggleCamera(c *gin.Context) {
	ctx, cancel := a.ctx(c)
	defer cancel()
	on, err := a.orch.ToggleCamera(ctx)
	a.toggled(c, on, err)
}

func (a *API) togglePiP(c *gin.Context) {
	ctx, cancel := a.ctx(c)
	defer cancel()
	on, err := a.orch.TogglePictureInPicture(ctx)
	a.toggled(c, on, err)
}

func (a *API) toggled(c *gin.Context, on bool, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ToggleResponse{On: on})
}

func (a *API) switchCamera(c *gin.Context) {
	ctx, cancel := a.ctx(c)
	defer cancel()
	facing, err := a.orch.SwitchCamera(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, FacingResponse{Facing: facing})
}
