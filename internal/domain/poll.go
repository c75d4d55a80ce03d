package domain

import (
	"time"

	"github.com/google/uuid"
)

type (
	PollID     string
	OptionID   string
	QuestionID string
)

func NewPollID() PollID         { return PollID(uuid.NewString()) }
func NewOptionID() OptionID     { return OptionID(uuid.NewString()) }
func NewQuestionID() QuestionID { return QuestionID(uuid.NewString()) }

// PollOption - one answer and the number of votes it received.
type PollOption struct {
	ID    OptionID `json:"id"`
	Text  string   `json:"text"`
	Votes int      `json:"votes"`
}

type Poll struct {
	ID        PollID       `json:"id"`
	Question  string       `json:"question"`
	Options   []PollOption `json:"options"`
	IsActive  bool         `json:"is_active"`
	CreatedAt time.Time    `json:"created_at"`
}

func (p Poll) TotalVotes() int {
	total := 0
	for _, o := range p.Options {
		total += o.Votes
	}
	return total
}

// OptionTally is the display row of a poll result.
type OptionTally struct {
	OptionID OptionID `json:"option_id"`
	Text     string   `json:"text"`
	Votes    int      `json:"votes"`
	Percent  float64  `json:"percent"`
}

type Tally struct {
	PollID     PollID        `json:"poll_id"`
	TotalVotes int           `json:"total_votes"`
	Options    []OptionTally `json:"options"`
}

type Question struct {
	ID       QuestionID `json:"id"`
	Text     string     `json:"text"`
	Author   string     `json:"author"`
	Upvotes  int        `json:"upvotes"`
	Answered bool       `json:"answered"`
	AskedAt  time.Time  `json:"asked_at"`
}
