package orch

import (
	"context"

	"github.com/dkeye/callcore/internal/domain"
	"github.com/rs/zerolog/log"
)

// Dial looks the peer up in the directory and starts an outbound call. A
// failed lookup still dials, under a name derived from the id.
func (o *Orchestrator) Dial(ctx context.Context, id domain.ParticipantID) error {
	if id == "" {
		return domain.ErrParticipantIDEmpty
	}
	var name, avatar string
	if o.cfg.Directory != nil {
		n, a, err := o.cfg.Directory.Lookup(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("module", "app.orch").Str("peer", string(id)).Msg("directory lookup failed")
		} else {
			name, avatar = n, a
		}
	}
	peer, err := domain.NewPeer(id, name, avatar)
	if err != nil {
		return err
	}
	return o.call.Dial(ctx, peer)
}

func (o *Orchestrator) Accept(ctx context.Context) error { return o.call.Accept(ctx) }

func (o *Orchestrator) Reject(ctx context.Context) error { return o.call.Reject(ctx) }

func (o *Orchestrator) HangUp(ctx context.Context) error { return o.call.HangUp(ctx) }

func (o *Orchestrator) ToggleMic(ctx context.Context) (bool, error) { return o.call.ToggleMic(ctx) }

func (o *Orchestrator) ToggleCamera(ctx context.Context) (bool, error) {
	return o.call.ToggleCamera(ctx)
}

func (o *Orchestrator) SwitchCamera(ctx context.Context) (domain.FacingMode, error) {
	return o.call.SwitchCamera(ctx)
}

func (o *Orchestrator) TogglePictureInPicture(ctx context.Context) (bool, error) {
	return o.call.TogglePictureInPicture(ctx)
}
