package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamSnapshots pushes every published snapshot as a JSON text frame. The
// stream ends when the client goes away or the hub kicks it as too slow.
func (a *API) streamSnapshots(c *gin.Context) {
	token := c.GetString(clientTokenKey)
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
		return
	}
	sub := a.orch.Subscribe()
	logger := log.With().Str("module", "adapters.http").Str("client", token).Str("sub", sub.ID).Logger()
	logger.Info().Msg("snapshot stream opened")

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		sub.Close()
		_ = ws.Close()
		logger.Info().Msg("snapshot stream closed")
	}()
	for {
		select {
		case <-gone:
			return
		case snap, ok := <-sub.C:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too slow"),
					time.Now().Add(a.writeWait))
				return
			}
			if err := ws.SetWriteDeadline(time.Now().Add(a.writeWait)); err != nil {
				return
			}
			if err := ws.WriteJSON(snap); err != nil {
				logger.Warn().Err(err).Msg("snapshot write")
				return
			}
		}
	}
}
