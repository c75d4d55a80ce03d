package poll

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/dkeye/callcore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePoll_Validation(t *testing.T) {
	e := NewEngine(Options{})

	tests := []struct {
		name     string
		question string
		options  []string
		err      error
	}{
		{"empty question", "  ", []string{"a", "b"}, ErrEmptyQuestion},
		{"one option", "Lunch?", []string{"pizza"}, ErrTooFewOptions},
		{"blank options do not count", "Lunch?", []string{"pizza", " ", ""}, ErrTooFewOptions},
		{"five options", "Lunch?", []string{"a", "b", "c", "d", "e"}, ErrTooManyOptions},
		{"two options", "Lunch?", []string{"pizza", "sushi"}, nil},
		{"four options with blanks", "Lunch?", []string{"a", "", "b", "c", "d"}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := e.CreatePoll(tc.question, tc.options)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.True(t, p.IsActive)
			for _, o := range p.Options {
				assert.NotEmpty(t, o.Text)
				assert.Zero(t, o.Votes)
			}
		})
	}
}

func TestVoteAndTally(t *testing.T) {
	e := NewEngine(Options{})
	p, err := e.CreatePoll("A or B?", []string{"A", "B"})
	require.NoError(t, err)
	a, b := p.Options[0].ID, p.Options[1].ID

	for _, opt := range []domain.OptionID{a, a, b} {
		_, err := e.Vote(p.ID, opt)
		require.NoError(t, err)
	}

	tally, err := e.Tally(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, tally.TotalVotes)
	assert.Equal(t, 2, tally.Options[0].Votes)
	assert.Equal(t, 1, tally.Options[1].Votes)
	assert.InDelta(t, 66.7, tally.Options[0].Percent, 1e-9)
	assert.InDelta(t, 33.3, tally.Options[1].Percent, 1e-9)
}

func TestTally_NoVotes(t *testing.T) {
	e := NewEngine(Options{})
	p, err := e.CreatePoll("Anyone?", []string{"yes", "no"})
	require.NoError(t, err)

	tally, err := e.Tally(p.ID)
	require.NoError(t, err)
	assert.Zero(t, tally.TotalVotes)
	for _, o := range tally.Options {
		assert.Zero(t, o.Percent)
	}

	_, err = e.Tally("missing")
	assert.ErrorIs(t, err, ErrUnknownPoll)
}

func TestVote_Errors(t *testing.T) {
	e := NewEngine(Options{})
	p, err := e.CreatePoll("Q", []string{"x", "y"})
	require.NoError(t, err)

	_, err = e.Vote("missing", p.Options[0].ID)
	assert.ErrorIs(t, err, ErrUnknownPoll)
	_, err = e.Vote(p.ID, "missing")
	assert.ErrorIs(t, err, ErrUnknownOption)

	require.NoError(t, e.ClosePoll(p.ID))
	require.NoError(t, e.ClosePoll(p.ID))
	_, err = e.Vote(p.ID, p.Options[0].ID)
	assert.ErrorIs(t, err, ErrPollClosed)
	assert.ErrorIs(t, e.ClosePoll("missing"), ErrUnknownPoll)

	assert.False(t, e.Polls()[0].IsActive)
}

func TestPolls_CreationOrderAndCopies(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var published [][]domain.Poll
	e := NewEngine(Options{
		Now:      func() time.Time { return now },
		OnChange: func(ps []domain.Poll) { published = append(published, ps) },
	})
	first, _ := e.CreatePoll("first", []string{"a", "b"})
	second, _ := e.CreatePoll("second", []string{"a", "b"})

	list := e.Polls()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Equal(t, now, list[0].CreatedAt)

	list[0].Options[0].Votes = 99
	assert.Zero(t, e.Polls()[0].Options[0].Votes)
	assert.Len(t, published, 2)
}

func TestVote_IncrementsExactlyOneOption(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 9))
	e := NewEngine(Options{})
	p, err := e.CreatePoll("pick", []string{"a", "b", "c", "d"})
	require.NoError(t, err)

	prev := p
	for range 500 {
		opt := p.Options[rng.IntN(len(p.Options))].ID
		next, err := e.Vote(p.ID, opt)
		require.NoError(t, err)

		changed := 0
		for i := range next.Options {
			d := next.Options[i].Votes - prev.Options[i].Votes
			require.GreaterOrEqual(t, d, 0)
			if d > 0 {
				require.Equal(t, 1, d)
				require.Equal(t, opt, next.Options[i].ID)
				changed++
			}
		}
		require.Equal(t, 1, changed)
		prev = next

		sum := 0.0
		for _, o := range TallyOf(next).Options {
			sum += o.Percent
		}
		require.InDelta(t, 100, sum, 0.25)
	}
}
