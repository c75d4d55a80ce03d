package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/callcore/internal/app"
	"github.com/dkeye/callcore/internal/app/breakout"
	"github.com/dkeye/callcore/internal/app/call"
	"github.com/dkeye/callcore/internal/app/media"
	"github.com/dkeye/callcore/internal/app/orch"
	"github.com/dkeye/callcore/internal/app/poll"
	"github.com/dkeye/callcore/internal/app/qa"
	"github.com/dkeye/callcore/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var statusTable = []struct {
	status int
	errs   []error
}{
	{http.StatusNotImplemented, []error{media.ErrNotSupported}},
	{http.StatusServiceUnavailable, []error{media.ErrDevice, call.ErrStopped}},
	{http.StatusNotFound, []error{
		breakout.ErrUnknownRoom, breakout.ErrUnknownParticipant,
		poll.ErrUnknownPoll, poll.ErrUnknownOption,
		qa.ErrUnknownQuestion, app.ErrUnknownParticipant,
	}},
	{http.StatusConflict, []error{
		call.ErrInvalidTransition, call.ErrConflict, call.ErrAcquisitionPending,
		orch.ErrNoMeeting, poll.ErrPollClosed, qa.ErrAnswered, breakout.ErrOverlap,
	}},
	{http.StatusBadRequest, []error{
		call.ErrMissingPeer, domain.ErrParticipantIDEmpty,
		domain.ErrDisplayNameEmpty, domain.ErrDisplayNameTooLong,
		breakout.ErrRoomNameTooLong, breakout.ErrInvalidTimer, breakout.ErrInvalidRoomCount,
		breakout.ErrEmptyMessage, breakout.ErrEmptyRoomName,
		poll.ErrEmptyQuestion, poll.ErrTooLong, poll.ErrTooFewOptions, poll.ErrTooManyOptions,
		qa.ErrEmptyQuestion, qa.ErrTooLong,
	}},
}

func statusOf(err error) int {
	for _, row := range statusTable {
		for _, target := range row.errs {
			if errors.Is(err, target) {
				return row.status
			}
		}
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
