package app

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickSubscriber
)

// Policy decides what happens to a snapshot subscriber whose buffer is full.
// missed counts the consecutive frames it could not take.
type Policy interface {
	OnBackPressure(subscriber string, missed int) BackpressureAction
}

// SimplePolicy drops frames for a while and then disconnects the subscriber.
type SimplePolicy struct {
	MaxMissed int
}

func (p SimplePolicy) OnBackPressure(_ string, missed int) BackpressureAction {
	if missed > p.MaxMissed {
		return KickSubscriber
	}
	return DropFrame
}
