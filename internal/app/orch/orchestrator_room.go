package orch

import (
	"context"

	"github.com/dkeye/callcore/internal/core"
	"github.com/dkeye/callcore/internal/domain"
	"github.com/rs/zerolog/log"
)

// onRoster runs on the call controller goroutine while connected.
func (o *Orchestrator) onRoster(ev core.SignalEvent) {
	m, err := o.current()
	if err != nil || ev.Participant == nil {
		return
	}
	p := *ev.Participant
	switch ev.Kind {
	case core.SignalParticipantJoin:
		o.cfg.Registry.Add(p)
	case core.SignalParticipantLeave:
		if err := o.cfg.Registry.Remove(p.ID); err != nil {
			log.Warn().Err(err).Str("module", "app.orch").Str("participant", string(p.ID)).Msg("leave")
			return
		}
	case core.SignalParticipantMedia:
		if err := o.cfg.Registry.SetMedia(p.ID, p.MicOn, p.CameraOn); err != nil {
			log.Warn().Err(err).Str("module", "app.orch").Str("participant", string(p.ID)).Msg("media update")
			return
		}
		o.publish()
		return
	default:
		return
	}
	// SetRoster publishes through the allocator's change hook
	m.breakout.SetRoster(o.cfg.Registry.IDs())
}

func (o *Orchestrator) CreateRoom(name string) (domain.BreakoutRoom, error) {
	m, err := o.current()
	if err != nil {
		return domain.BreakoutRoom{}, err
	}
	return m.breakout.CreateRoom(name)
}

func (o *Orchestrator) RenameRoom(id domain.RoomID, name string) error {
	m, err := o.current()
	if err != nil {
		return err
	}
	return m.breakout.RenameRoom(id, name)
}

func (o *Orchestrator) DeleteRoom(id domain.RoomID) error {
	m, err := o.current()
	if err != nil {
		return err
	}
	return m.breakout.DeleteRoom(id)
}

func (o *Orchestrator) Assign(pid domain.ParticipantID, room domain.RoomID) error {
	m, err := o.current()
	if err != nil {
		return err
	}
	return m.breakout.Assign(pid, room)
}

func (o *Orchestrator) Unassign(pid domain.ParticipantID) error {
	m, err := o.current()
	if err != nil {
		return err
	}
	return m.breakout.Unassign(pid)
}

func (o *Orchestrator) AutoAssign(rooms int) error {
	m, err := o.current()
	if err != nil {
		return err
	}
	return m.breakout.AutoAssign(rooms)
}

func (o *Orchestrator) SetBreakoutTimer(minutes int) error {
	m, err := o.current()
	if err != nil {
		return err
	}
	return m.breakout.SetTimer(minutes)
}

func (o *Orchestrator) OpenRooms() error {
	m, err := o.current()
	if err != nil {
		return err
	}
	m.breakout.Open()
	return nil
}

func (o *Orchestrator) CloseRooms() error {
	m, err := o.current()
	if err != nil {
		return err
	}
	m.breakout.Close()
	return nil
}

func (o *Orchestrator) Broadcast(ctx context.Context, message string) (int, error) {
	m, err := o.current()
	if err != nil {
		return 0, err
	}
	return m.breakout.Broadcast(ctx, message)
}

func (o *Orchestrator) CreatePoll(question string, options []string) (domain.Poll, error) {
	m, err := o.current()
	if err != nil {
		return domain.Poll{}, err
	}
	return m.polls.CreatePoll(question, options)
}

func (o *Orchestrator) Vote(pollID domain.PollID, optionID domain.OptionID) (domain.Poll, error) {
	m, err := o.current()
	if err != nil {
		return domain.Poll{}, err
	}
	return m.polls.Vote(pollID, optionID)
}

func (o *Orchestrator) ClosePoll(pollID domain.PollID) error {
	m, err := o.current()
	if err != nil {
		return err
	}
	return m.polls.ClosePoll(pollID)
}

func (o *Orchestrator) Tally(pollID domain.PollID) (domain.Tally, error) {
	m, err := o.current()
	if err != nil {
		return domain.Tally{}, err
	}
	return m.polls.Tally(pollID)
}

func (o *Orchestrator) Ask(text, author string) (domain.Question, error) {
	m, err := o.current()
	if err != nil {
		return domain.Question{}, err
	}
	return m.qa.Ask(text, author)
}

func (o *Orchestrator) Upvote(id domain.QuestionID) (domain.Question, error) {
	m, err := o.current()
	if err != nil {
		return domain.Question{}, err
	}
	return m.qa.Upvote(id)
}

func (o *Orchestrator) MarkAnswered(id domain.QuestionID) error {
	m, err := o.current()
	if err != nil {
		return err
	}
	return m.qa.MarkAnswered(id)
}
