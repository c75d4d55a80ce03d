// Package http is the presentation bridge: a gin API over the orchestrator
// and a websocket stream of its snapshots.
package http

import (
	"time"

	"github.com/dkeye/callcore/internal/app/orch"
	"github.com/dkeye/callcore/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	clientTokenKey = "client_token"
	sessionName    = "CallSessions"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware keeps a per-browser token in the session cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

type API struct {
	orch    *orch.Orchestrator
	limiter *RateLimiter
	// requestTimeout bounds the wait on the call controller.
	requestTimeout time.Duration
	writeWait      time.Duration
}

func SetupRouter(cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	a := &API{
		orch:           o,
		limiter:        NewRateLimiter(cfg.RateLimit, cfg.RateInterval),
		requestTimeout: cfg.SignalTimeout + cfg.AcquireTimeout,
		writeWait:      5 * time.Second,
	}
	if a.requestTimeout <= 0 {
		a.requestTimeout = 20 * time.Second
	}
	a.register(r.Group("/api"))

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}

func (a *API) register(api *gin.RouterGroup) {
	api.GET("/session", a.session)
	api.GET("/snapshot", a.snapshot)
	api.GET("/ws/snapshots", a.streamSnapshots)

	callGroup := api.Group("/call")
	callGroup.POST("/dial", a.dial)
	callGroup.POST("/accept", a.accept)
	callGroup.POST("/reject", a.reject)
	callGroup.POST("/hangup", a.hangUp)

	mediaGroup := api.Group("/media")
	mediaGroup.POST("/mic", a.toggleMic)
	mediaGroup.POST("/camera", a.toggleCamera)
	mediaGroup.POST("/flip", a.switchCamera)
	mediaGroup.POST("/pip", a.togglePiP)

	br := api.Group("/breakout")
	br.POST("/rooms", a.createRoom)
	br.PATCH("/rooms/:id", a.renameRoom)
	br.DELETE("/rooms/:id", a.deleteRoom)
	br.POST("/assign", a.assign)
	br.POST("/unassign", a.unassign)
	br.POST("/auto", a.autoAssign)
	br.PUT("/timer", a.setTimer)
	br.POST("/open", a.openRooms)
	br.POST("/close", a.closeRooms)
	br.POST("/broadcast", a.broadcast)

	polls := api.Group("/polls")
	polls.POST("", a.createPoll)
	polls.POST("/:id/vote", a.limiter.Middleware("vote"), a.vote)
	polls.POST("/:id/close", a.closePoll)
	polls.GET("/:id/tally", a.tally)

	questions := api.Group("/questions")
	questions.POST("", a.limiter.Middleware("ask"), a.ask)
	questions.POST("/:id/upvote", a.limiter.Middleware("upvote"), a.upvote)
	questions.POST("/:id/answer", a.markAnswered)
}
