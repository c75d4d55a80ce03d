// Package qa keeps the question board of a meeting session.
package qa

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dkeye/callcore/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyQuestion   = errors.New("question text is required")
	ErrTooLong         = errors.New("question too long")
	ErrUnknownQuestion = errors.New("unknown question")
	ErrAnswered        = errors.New("question already answered")
)

const (
	MaxQuestionLen  = 500
	AnonymousAuthor = "Anonymous"
)

type Options struct {
	Now func() time.Time
	// OnChange receives the ordered board after each change, outside the lock.
	OnChange func([]domain.Question)
}

type Engine struct {
	opts Options

	mu        sync.RWMutex
	questions []*domain.Question
}

func NewEngine(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{opts: opts}
}

func (e *Engine) Ask(text, author string) (domain.Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Question{}, ErrEmptyQuestion
	}
	if utf8.RuneCountInString(text) > MaxQuestionLen {
		return domain.Question{}, ErrTooLong
	}
	author = strings.TrimSpace(author)
	if author == "" {
		author = AnonymousAuthor
	}
	q := &domain.Question{
		ID:      domain.NewQuestionID(),
		Text:    text,
		Author:  author,
		AskedAt: e.opts.Now(),
	}
	e.mu.Lock()
	e.questions = append(e.questions, q)
	e.mu.Unlock()

	log.Info().Str("module", "app.qa").Str("question", string(q.ID)).Str("author", author).Msg("question asked")
	e.changed()
	return *q, nil
}

// Upvote adds one upvote. Answered questions are frozen.
func (e *Engine) Upvote(id domain.QuestionID) (domain.Question, error) {
	e.mu.Lock()
	q := e.find(id)
	if q == nil {
		e.mu.Unlock()
		return domain.Question{}, fmt.Errorf("upvote %s: %w", id, ErrUnknownQuestion)
	}
	if q.Answered {
		e.mu.Unlock()
		return domain.Question{}, fmt.Errorf("upvote %s: %w", id, ErrAnswered)
	}
	q.Upvotes++
	out := *q
	e.mu.Unlock()

	e.changed()
	return out, nil
}

// MarkAnswered is idempotent.
func (e *Engine) MarkAnswered(id domain.QuestionID) error {
	e.mu.Lock()
	q := e.find(id)
	if q == nil {
		e.mu.Unlock()
		return fmt.Errorf("answer %s: %w", id, ErrUnknownQuestion)
	}
	was := q.Answered
	q.Answered = true
	e.mu.Unlock()

	if !was {
		e.changed()
	}
	return nil
}

// Questions returns the board ordered by upvotes, most first. Ties keep the
// order in which the questions were asked.
func (e *Engine) Questions() []domain.Question {
	e.mu.RLock()
	out := make([]domain.Question, 0, len(e.questions))
	for _, q := range e.questions {
		out = append(out, *q)
	}
	e.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b domain.Question) int {
		return cmp.Compare(b.Upvotes, a.Upvotes)
	})
	return out
}

func (e *Engine) find(id domain.QuestionID) *domain.Question {
	for _, q := range e.questions {
		if q.ID == id {
			return q
		}
	}
	return nil
}

func (e *Engine) changed() {
	if e.opts.OnChange == nil {
		return
	}
	e.opts.OnChange(e.Questions())
}
