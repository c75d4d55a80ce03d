// Package directory resolves display identity for participant ids.
package directory

import (
	"context"
	"errors"

	"github.com/dkeye/callcore/internal/domain"
)

var ErrNotFound = errors.New("participant not in directory")

type Entry struct {
	DisplayName string
	AvatarRef   string
}

// Static is a fixed directory, usually loaded from config. It is never
// written after construction.
type Static struct {
	entries map[domain.ParticipantID]Entry
}

func NewStatic(entries map[string]Entry) *Static {
	s := &Static{entries: make(map[domain.ParticipantID]Entry, len(entries))}
	for id, e := range entries {
		s.entries[domain.ParticipantID(id)] = e
	}
	return s
}

func (s *Static) Lookup(ctx context.Context, id domain.ParticipantID) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	e, ok := s.entries[id]
	if !ok {
		return "", "", ErrNotFound
	}
	return e.DisplayName, e.AvatarRef, nil
}
