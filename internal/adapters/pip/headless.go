// Package pip provides picture-in-picture hosts.
package pip

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyRef  = errors.New("empty stream ref")
	ErrNotActive = errors.New("picture-in-picture not active")
)

// Headless tracks the floating surface without drawing anything. It stands
// in where no window system exists and reports the shown ref to listeners.
type Headless struct {
	mu       sync.Mutex
	ref      string
	onChange func(ref string)
}

func NewHeadless(onChange func(ref string)) *Headless {
	return &Headless{onChange: onChange}
}

func (h *Headless) Enter(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ref == "" {
		return ErrEmptyRef
	}
	h.mu.Lock()
	h.ref = ref
	fn := h.onChange
	h.mu.Unlock()

	log.Info().Str("module", "adapters.pip").Str("ref", ref).Msg("pip enter")
	if fn != nil {
		fn(ref)
	}
	return nil
}

func (h *Headless) Exit() error {
	h.mu.Lock()
	if h.ref == "" {
		h.mu.Unlock()
		return ErrNotActive
	}
	h.ref = ""
	fn := h.onChange
	h.mu.Unlock()

	log.Info().Str("module", "adapters.pip").Msg("pip exit")
	if fn != nil {
		fn("")
	}
	return nil
}

// Showing returns the ref on screen, or "".
func (h *Headless) Showing() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ref
}
