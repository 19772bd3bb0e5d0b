package world

import (
	"sort"

	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

// SiegeMarker is the item whose placement in enemy territory begins a siege ritual.
const SiegeMarker = "SIEGE_MARKER"

type Session struct {
	ID          string
	Participant modelpkg.Participant
	Pos         modelpkg.BlockPos
	Markers     int

	out chan []byte
}

// ActionCode is the outcome of a session event.
type ActionCode string

const (
	ActionOK         ActionCode = "SUCCESS"
	ActionDenied     ActionCode = "NO_PERMISSION"
	ActionNoSession  ActionCode = "NO_SESSION"
	ActionOccupied   ActionCode = "OCCUPIED"
	ActionEmpty      ActionCode = "EMPTY"
	ActionNoMarker   ActionCode = "NO_MARKER"
	ActionChanneling ActionCode = "CHANNELING"
	ActionProtected  ActionCode = "PROTECTED"
)

func (c ActionCode) Reason() string {
	switch c {
	case ActionOK:
		return "ok"
	case ActionDenied:
		return "this land belongs to another clan"
	case ActionNoSession:
		return "not joined"
	case ActionOccupied:
		return "that block is occupied"
	case ActionEmpty:
		return "there is nothing there"
	case ActionNoMarker:
		return "you have no siege marker"
	case ActionChanneling:
		return "you are already channeling a siege marker"
	case ActionProtected:
		return "siege markers cannot be broken"
	default:
		return string(c)
	}
}

// Join registers a participant on the world goroutine. A rejoin replaces the old
// session and cancels any ritual it had running.
func (w *World) Join(sessionID string, p modelpkg.Participant, out chan []byte) *Session {
	if old := w.sessions[p.ID]; old != nil {
		w.war.OnQuit(p.ID)
	}
	s := &Session{
		ID:          sessionID,
		Participant: p,
		Pos:         modelpkg.BlockPos{World: w.cfg.ID, Vec3i: modelpkg.Vec3i{X: w.cfg.Spawn[0], Y: w.cfg.Spawn[1], Z: w.cfg.Spawn[2]}},
		Markers:     w.cfg.StarterMarkers,
		out:         out,
	}
	w.sessions[p.ID] = s
	return s
}

// Quit removes the participant. Only the current session may quit, so a stale
// connection closing after a rejoin is ignored.
func (w *World) Quit(participantID, sessionID string) {
	s := w.sessions[participantID]
	if s == nil || (sessionID != "" && s.ID != sessionID) {
		return
	}
	w.war.OnQuit(participantID)
	delete(w.sessions, participantID)
}

func (w *World) Session(participantID string) (*Session, bool) {
	s, ok := w.sessions[participantID]
	return s, ok
}

func (w *World) Move(participantID string, pos modelpkg.Vec3i) ActionCode {
	s := w.sessions[participantID]
	if s == nil {
		return ActionNoSession
	}
	s.Pos = w.blockPos(pos)
	w.war.OnMove(participantID, s.Pos)
	return ActionOK
}

// PlaceBlock puts item at pos. A siege marker starts the channeling ritual instead
// of becoming a block; it materializes only once the siege is under way.
func (w *World) PlaceBlock(participantID string, pos modelpkg.Vec3i, item string) ActionCode {
	s := w.sessions[participantID]
	if s == nil {
		return ActionNoSession
	}
	at := w.blockPos(pos)
	if _, taken := w.blocks[at]; taken {
		return ActionOccupied
	}
	if _, pending := w.altars[at]; pending {
		return ActionOccupied
	}
	if item == SiegeMarker {
		if s.Markers <= 0 {
			return ActionNoMarker
		}
		if !w.war.BeginChannel(s.Participant, at, s.Pos) {
			return ActionChanneling
		}
		s.Markers--
		w.altars[at] = participantID
		return ActionOK
	}
	if !w.terr.HasTerritoryPermission(s.Participant, modelpkg.ChunkOf(at)) {
		return ActionDenied
	}
	w.blocks[at] = item
	return ActionOK
}

func (w *World) BreakBlock(participantID string, pos modelpkg.Vec3i) ActionCode {
	s := w.sessions[participantID]
	if s == nil {
		return ActionNoSession
	}
	at := w.blockPos(pos)
	if _, ok := w.blocks[at]; !ok {
		return ActionEmpty
	}
	if w.markers[at] {
		return ActionProtected
	}
	if !w.terr.HasTerritoryPermission(s.Participant, modelpkg.ChunkOf(at)) {
		return ActionDenied
	}
	delete(w.blocks, at)
	return ActionOK
}

func (w *World) Interact(participantID string, pos modelpkg.Vec3i) ActionCode {
	s := w.sessions[participantID]
	if s == nil {
		return ActionNoSession
	}
	if !w.terr.HasTerritoryPermission(s.Participant, modelpkg.ChunkOf(w.blockPos(pos))) {
		return ActionDenied
	}
	return ActionOK
}

// BlockAt returns the item stored at pos, if any.
func (w *World) BlockAt(pos modelpkg.Vec3i) (string, bool) {
	item, ok := w.blocks[w.blockPos(pos)]
	return item, ok
}

func (w *World) blockPos(v modelpkg.Vec3i) modelpkg.BlockPos {
	return modelpkg.BlockPos{World: w.cfg.ID, Vec3i: v}
}

func (w *World) sortedSessions() []*Session {
	out := make([]*Session, 0, len(w.sessions))
	for _, s := range w.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Participant.ID < out[j].Participant.ID })
	return out
}

func (w *World) SessionCount() int { return len(w.sessions) }
