package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/callcore/internal/adapters/directory"
	router "github.com/dkeye/callcore/internal/adapters/http"
	"github.com/dkeye/callcore/internal/adapters/pip"
	"github.com/dkeye/callcore/internal/adapters/rtc"
	sig "github.com/dkeye/callcore/internal/adapters/signal"
	"github.com/dkeye/callcore/internal/app"
	"github.com/dkeye/callcore/internal/app/call"
	"github.com/dkeye/callcore/internal/app/media"
	"github.com/dkeye/callcore/internal/app/orch"
	"github.com/dkeye/callcore/internal/app/timer"
	"github.com/dkeye/callcore/internal/config"
	"github.com/dkeye/callcore/internal/core"
	"github.com/dkeye/callcore/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	local := domain.Participant{
		ID:          domain.ParticipantID(cfg.Local.ID),
		DisplayName: cfg.Local.DisplayName,
		AvatarRef:   cfg.Local.AvatarRef,
	}
	if local.ID == "" {
		local.ID = domain.NewParticipantID()
	}

	// the provider attaches tracks through the signal client, which is dialed
	// before any acquisition can happen
	var signalClient *sig.Client
	provider := rtc.NewProvider(rtc.ProviderOptions{
		Source:    rtc.SilenceSource,
		OnAcquire: func(s *rtc.LocalStream) { signalClient.AttachLocal(s) },
		OnRelease: func(*rtc.LocalStream) { signalClient.AttachLocal(nil) },
	})

	var onRemote func(core.RemoteStream)
	if cfg.RecordDir != "" {
		recorder, err := rtc.NewRecorder(cfg.RecordDir)
		if err != nil {
			log.Fatal().Err(err).Msg("recorder setup failed")
		}
		defer recorder.Close()
		onRemote = func(s core.RemoteStream) {
			if err := recorder.Attach(s); err != nil {
				log.Error().Err(err).Str("stream", s.ID()).Msg("record remote stream")
			}
		}
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	signalClient, err = sig.Dial(dialCtx, sig.Options{
		URL:            cfg.SignalURL,
		Self:           local,
		NewLink:        sig.PionLinks(rtc.DefaultWebRTCConfig(cfg.ICEServers...)),
		OnRemoteStream: onRemote,
		PingPeriod:     cfg.PingPeriod,
		ReadLimit:      cfg.ReadLimit,
	})
	dialCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("signal connect failed")
	}

	hub := orch.NewHub(cfg.SubscriberBuffer, app.SimplePolicy{MaxMissed: cfg.MaxMissed})
	o := orch.New(orch.Config{
		Local:           local,
		Registry:        app.NewRegistry(),
		Directory:       directory.NewStatic(contacts(cfg.Directory)),
		Notifier:        signalClient,
		Scheduler:       timer.Real{},
		Hub:             hub,
		BreakoutTick:    cfg.TickPeriod,
		BreakoutMinutes: cfg.BreakoutDefaultMinutes,
	}, call.Options{
		Media:          media.NewManager(provider, pip.NewHeadless(nil), domain.DefaultConstraints()),
		Signal:         signalClient,
		TickPeriod:     cfg.TickPeriod,
		AcquireTimeout: cfg.AcquireTimeout,
		SignalTimeout:  cfg.SignalTimeout,
	})
	o.Start(ctx)

	r := router.SetupRouter(cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		log.Info().Str("addr", addr).Str("local", string(local.ID)).Msg("call engine started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	})

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	o.Stop()
	signalClient.Close()
	wg.Wait()
	log.Info().Msg("Server exited gracefully")
}

func contacts(in map[string]config.Contact) map[string]directory.Entry {
	out := make(map[string]directory.Entry, len(in))
	for id, c := range in {
		out[id] = directory.Entry{DisplayName: c.DisplayName, AvatarRef: c.AvatarRef}
	}
	return out
}
