package core

import "time"

// Ticker is an owned periodic timer. Stop is idempotent; once it returns no
// new tick is started.
type Ticker interface {
	Stop()
}

type Scheduler interface {
	Every(d time.Duration, fn func()) Ticker
}
