package core

//go:generate mockgen -source=signal_iface.go -destination=mocks/signal_mock.go -package=mocks

import (
	"context"

	"github.com/dkeye/callcore/internal/domain"
)

type SignalKind string

const (
	SignalInboundOffer     SignalKind = "inbound-offer"
	SignalRemoteHangUp     SignalKind = "remote-hang-up"
	SignalRemoteStream     SignalKind = "remote-stream-available"
	SignalRemoteAccepted   SignalKind = "remote-accepted"
	SignalParticipantJoin  SignalKind = "participant-joined"
	SignalParticipantLeave SignalKind = "participant-left"
	SignalParticipantMedia SignalKind = "participant-media"
)

// SignalEvent is one inbound event. Only the fields relevant to Kind are set.
type SignalEvent struct {
	Kind SignalKind
	Peer *domain.Peer
	// OfferID identifies an inbound offer for Decline.
	OfferID     string
	Stream      RemoteStream
	Participant *domain.Participant
}

// SignalChannel abstracts the signaling transport. Events for one peer are
// delivered in FIFO order.
type SignalChannel interface {
	Events() <-chan SignalEvent
	Initiate(ctx context.Context, peer domain.Peer) error
	Accept(ctx context.Context) error
	Reject(ctx context.Context) error
	HangUp(ctx context.Context) error
	// Decline refuses the offer offerID from peer that the session could not
	// take.
	Decline(ctx context.Context, peer domain.ParticipantID, offerID string) error
}

// Notifier delivers a text message to a single participant.
type Notifier interface {
	Notify(ctx context.Context, to domain.ParticipantID, message string) error
}
