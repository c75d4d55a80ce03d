package signal

import (
	"encoding/json"
	"strconv"

	"github.com/dkeye/callcore/internal/core"
	"github.com/dkeye/callcore/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (c *Client) handleSignal(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("bad json")
		return
	}

	switch env.Type {
	case typeOffer:
		c.handleOffer(data)
	case typeAnswer:
		c.handleAnswer(data)
	case typeCandidate:
		c.handleCandidate(data)
	case typeReject, typeHangUp:
		c.handleHangUp(data)
	case typeJoin:
		c.handleParticipant(core.SignalParticipantJoin, data)
	case typeLeave:
		c.handleParticipant(core.SignalParticipantLeave, data)
	case typeMedia:
		c.handleParticipant(core.SignalParticipantMedia, data)
	case typeNotice:
		var p noticeMsg
		if err := json.Unmarshal(data, &p); err == nil {
			log.Info().Str("module", "adapters.signal").Str("from", string(p.From)).Str("text", p.Text).Msg("notice")
		}
	case typeError:
		var p errorMsg
		if err := json.Unmarshal(data, &p); err == nil {
			log.Warn().Str("module", "adapters.signal").Str("error", p.Error).Msg("signal error")
		}
	case typePong:
	default:
		log.Warn().Str("module", "adapters.signal").Str("type", env.Type).Msg("unknown signal")
	}
}

// handleOffer reports every offer. Only an offer arriving while free is kept
// for Accept; a conflicting one is rejected as busy and still reported.
func (c *Client) handleOffer(data []byte) {
	var p sdpMsg
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("bad offer payload")
		return
	}
	peer, err := domain.NewPeer(p.From, p.DisplayName, p.AvatarRef)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("offer without sender")
		return
	}

	c.mu.Lock()
	c.offers++
	id := strconv.FormatUint(c.offers, 10)
	busy := c.peer != nil
	if !busy {
		c.peer = &peer
		c.offer = p.SDP
		c.offerID = id
	}
	c.mu.Unlock()

	if busy {
		log.Warn().Str("module", "adapters.signal").Str("peer", string(peer.ID)).Msg("offer while busy")
		if err := c.send(c.ctx, peerMsg{Type: typeReject, To: peer.ID}); err != nil {
			log.Warn().Err(err).Str("module", "adapters.signal").Msg("busy reject")
		}
	}

	c.emit(core.SignalEvent{Kind: core.SignalInboundOffer, Peer: &peer, OfferID: id})
}

func (c *Client) handleAnswer(data []byte) {
	var p sdpMsg
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("bad answer payload")
		return
	}
	c.mu.Lock()
	link := c.link
	current := c.peer != nil && c.peer.ID == p.From && c.offer == ""
	c.mu.Unlock()
	if link == nil || !current {
		log.Warn().Str("module", "adapters.signal").Str("from", string(p.From)).Msg("answer: no call for")
		return
	}
	if err := link.ApplyAnswer(p.SDP); err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("apply answer")
		c.dropCall()
		return
	}
	c.flushCandidates(link)
	c.emit(core.SignalEvent{Kind: core.SignalRemoteAccepted})
}

func (c *Client) handleCandidate(data []byte) {
	var p candidateMsg
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("bad candidate payload")
		return
	}
	cand := webrtc.ICECandidateInit{Candidate: p.Candidate, SDPMLineIndex: p.SDPMLineIndex}
	if p.SDPMid != "" {
		cand.SDPMid = &p.SDPMid
	}

	c.mu.Lock()
	if c.peer == nil || c.peer.ID != p.From {
		c.mu.Unlock()
		log.Warn().Str("module", "adapters.signal").Str("from", string(p.From)).Msg("candidate: no call for")
		return
	}
	link, ready := c.link, c.ready
	if !ready {
		c.pending = append(c.pending, cand)
	}
	c.mu.Unlock()

	if ready {
		if err := link.AddICECandidate(cand); err != nil {
			log.Error().Err(err).Str("module", "adapters.signal").Msg("add ice candidate")
		}
	}
}

func (c *Client) handleHangUp(data []byte) {
	var p peerMsg
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("bad hangup payload")
		return
	}
	c.mu.Lock()
	current := c.peer != nil && c.peer.ID == p.From
	c.mu.Unlock()
	if !current {
		log.Warn().Str("module", "adapters.signal").Str("from", string(p.From)).Str("type", p.Type).Msg("hangup: no call for")
		return
	}
	c.dropCall()
}

func (c *Client) handleParticipant(kind core.SignalKind, data []byte) {
	var p participantMsg
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("bad participant payload")
		return
	}
	if p.Participant.ID == "" || p.Participant.ID == c.opts.Self.ID {
		return
	}
	p.Participant.IsLocal = false
	c.emit(core.SignalEvent{Kind: kind, Participant: &p.Participant})
}
