package signal

import "github.com/dkeye/callcore/internal/domain"

// Envelope types exchanged with the signaling service.
const (
	typeHello     = "hello"
	typeOffer     = "offer"
	typeAnswer    = "answer"
	typeCandidate = "candidate"
	typeReject    = "reject"
	typeHangUp    = "hangup"
	typeNotice    = "notice"
	typePing      = "ping"
	typePong      = "pong"
	typeJoin      = "join"
	typeLeave     = "leave"
	typeMedia     = "media"
	typeError     = "error"
)

type envelope struct {
	Type string `json:"type"`
}

type helloMsg struct {
	Type        string               `json:"type"`
	ID          domain.ParticipantID `json:"id"`
	DisplayName string               `json:"display_name"`
	AvatarRef   string               `json:"avatar_ref,omitempty"`
}

// sdpMsg carries offers and answers. From is set by the service on inbound
// messages.
type sdpMsg struct {
	Type        string               `json:"type"`
	To          domain.ParticipantID `json:"to,omitempty"`
	From        domain.ParticipantID `json:"from,omitempty"`
	DisplayName string               `json:"display_name,omitempty"`
	AvatarRef   string               `json:"avatar_ref,omitempty"`
	SDP         string               `json:"sdp"`
}

type candidateMsg struct {
	Type          string               `json:"type"`
	To            domain.ParticipantID `json:"to,omitempty"`
	From          domain.ParticipantID `json:"from,omitempty"`
	Candidate     string               `json:"candidate"`
	SDPMid        string               `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16              `json:"sdpMLineIndex,omitempty"`
}

// peerMsg is reject and hangup.
type peerMsg struct {
	Type string               `json:"type"`
	To   domain.ParticipantID `json:"to,omitempty"`
	From domain.ParticipantID `json:"from,omitempty"`
}

type noticeMsg struct {
	Type string               `json:"type"`
	To   domain.ParticipantID `json:"to,omitempty"`
	From domain.ParticipantID `json:"from,omitempty"`
	Text string               `json:"text"`
}

type participantMsg struct {
	Type        string             `json:"type"`
	Participant domain.Participant `json:"participant"`
}

type errorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
