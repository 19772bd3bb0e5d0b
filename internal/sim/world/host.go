package world

import (
	"encoding/json"

	"go.uber.org/zap"

	"warfront.gg/internal/protocol"
	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

// The World is the warfare Host: it owns participant positions, marker blocks and
// the outbound event streams.

func (w *World) ParticipantsNear(pos modelpkg.BlockPos, radius int) []modelpkg.Participant {
	var out []modelpkg.Participant
	for _, s := range w.sortedSessions() {
		if modelpkg.WithinRadius(pos, s.Pos, radius) {
			out = append(out, s.Participant)
		}
	}
	return out
}

func (w *World) MaterializeMarker(pos modelpkg.BlockPos) {
	delete(w.altars, pos)
	w.blocks[pos] = SiegeMarker
	w.markers[pos] = true
}

func (w *World) RemoveMarker(pos modelpkg.BlockPos) {
	if w.markers[pos] {
		delete(w.markers, pos)
		delete(w.blocks, pos)
	}
}

func (w *World) ReturnMarker(participantID string) {
	for pos, who := range w.altars {
		if who == participantID {
			delete(w.altars, pos)
		}
	}
	if s := w.sessions[participantID]; s != nil {
		s.Markers++
	}
}

func (w *World) Notify(participantID, msg string) {
	s := w.sessions[participantID]
	if s == nil {
		return
	}
	w.sendEvent(s, protocol.EventNotice, msg)
}

func (w *World) Announce(msg string) {
	for _, s := range w.sortedSessions() {
		w.sendEvent(s, protocol.EventAnnounce, msg)
	}
}

func (w *World) sendEvent(s *Session, kind, text string) {
	if s.out == nil {
		return
	}
	b, err := json.Marshal(protocol.EventMsg{Type: protocol.TypeEvent, Kind: kind, Text: text})
	if err != nil {
		w.log.Error("encode event", zap.Error(err))
		return
	}
	sendLatest(s.out, b)
}
