// Package poll runs the live polls of a meeting session.
package poll

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dkeye/callcore/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyQuestion  = errors.New("poll question is required")
	ErrTooLong        = errors.New("poll text too long")
	ErrTooFewOptions  = errors.New("poll needs at least 2 options")
	ErrTooManyOptions = errors.New("poll allows at most 4 options")
	ErrUnknownPoll    = errors.New("unknown poll")
	ErrUnknownOption  = errors.New("unknown poll option")
	ErrPollClosed     = errors.New("poll is closed")
)

const (
	MinOptions     = 2
	MaxOptions     = 4
	MaxQuestionLen = 200
	MaxOptionLen   = 80
)

type Options struct {
	Now func() time.Time
	// OnChange receives every poll after each change, outside the lock.
	OnChange func([]domain.Poll)
}

type Engine struct {
	opts Options

	mu    sync.RWMutex
	polls []*domain.Poll
}

func NewEngine(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{opts: opts}
}

// CreatePoll opens a poll. Blank options are dropped before counting.
func (e *Engine) CreatePoll(question string, options []string) (domain.Poll, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Poll{}, ErrEmptyQuestion
	}
	if utf8.RuneCountInString(question) > MaxQuestionLen {
		return domain.Poll{}, fmt.Errorf("question: %w", ErrTooLong)
	}
	opts := make([]domain.PollOption, 0, len(options))
	for _, text := range options {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if utf8.RuneCountInString(text) > MaxOptionLen {
			return domain.Poll{}, fmt.Errorf("option %q: %w", text, ErrTooLong)
		}
		opts = append(opts, domain.PollOption{ID: domain.NewOptionID(), Text: text})
	}
	switch {
	case len(opts) < MinOptions:
		return domain.Poll{}, ErrTooFewOptions
	case len(opts) > MaxOptions:
		return domain.Poll{}, ErrTooManyOptions
	}

	p := &domain.Poll{
		ID:        domain.NewPollID(),
		Question:  question,
		Options:   opts,
		IsActive:  true,
		CreatedAt: e.opts.Now(),
	}
	e.mu.Lock()
	e.polls = append(e.polls, p)
	out := clonePoll(p)
	e.mu.Unlock()

	log.Info().Str("module", "app.poll").Str("poll", string(p.ID)).Int("options", len(opts)).Msg("poll created")
	e.changed()
	return out, nil
}

// Vote adds one vote to one option. Repeat votes from the same participant
// are counted.
func (e *Engine) Vote(pollID domain.PollID, optionID domain.OptionID) (domain.Poll, error) {
	e.mu.Lock()
	p := e.find(pollID)
	if p == nil {
		e.mu.Unlock()
		return domain.Poll{}, fmt.Errorf("vote %s: %w", pollID, ErrUnknownPoll)
	}
	if !p.IsActive {
		e.mu.Unlock()
		return domain.Poll{}, fmt.Errorf("vote %s: %w", pollID, ErrPollClosed)
	}
	idx := -1
	for i := range p.Options {
		if p.Options[i].ID == optionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return domain.Poll{}, fmt.Errorf("vote %s/%s: %w", pollID, optionID, ErrUnknownOption)
	}
	p.Options[idx].Votes++
	out := clonePoll(p)
	e.mu.Unlock()

	e.changed()
	return out, nil
}

// ClosePoll stops voting. Closing a closed poll is a no-op.
func (e *Engine) ClosePoll(pollID domain.PollID) error {
	e.mu.Lock()
	p := e.find(pollID)
	if p == nil {
		e.mu.Unlock()
		return fmt.Errorf("close %s: %w", pollID, ErrUnknownPoll)
	}
	wasActive := p.IsActive
	p.IsActive = false
	e.mu.Unlock()

	if wasActive {
		log.Info().Str("module", "app.poll").Str("poll", string(pollID)).Msg("poll closed")
		e.changed()
	}
	return nil
}

func (e *Engine) Tally(pollID domain.PollID) (domain.Tally, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p := e.find(pollID)
	if p == nil {
		return domain.Tally{}, fmt.Errorf("tally %s: %w", pollID, ErrUnknownPoll)
	}
	return TallyOf(*p), nil
}

// Polls lists copies in creation order.
func (e *Engine) Polls() []domain.Poll {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Poll, 0, len(e.polls))
	for _, p := range e.polls {
		out = append(out, clonePoll(p))
	}
	return out
}

// TallyOf computes the display percentages of p, rounded to one decimal.
// A poll without votes shows 0% everywhere.
func TallyOf(p domain.Poll) domain.Tally {
	total := p.TotalVotes()
	t := domain.Tally{
		PollID:     p.ID,
		TotalVotes: total,
		Options:    make([]domain.OptionTally, 0, len(p.Options)),
	}
	denom := float64(max(1, total))
	for _, o := range p.Options {
		pct := float64(o.Votes) * 100 / denom
		t.Options = append(t.Options, domain.OptionTally{
			OptionID: o.ID,
			Text:     o.Text,
			Votes:    o.Votes,
			Percent:  math.Round(pct*10) / 10,
		})
	}
	return t
}

func (e *Engine) find(id domain.PollID) *domain.Poll {
	for _, p := range e.polls {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (e *Engine) changed() {
	if e.opts.OnChange == nil {
		return
	}
	e.opts.OnChange(e.Polls())
}

func clonePoll(p *domain.Poll) domain.Poll {
	out := *p
	out.Options = append([]domain.PollOption(nil), p.Options...)
	return out
}
