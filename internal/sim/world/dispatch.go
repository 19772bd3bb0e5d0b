package world

import (
	"github.com/shopspring/decimal"

	"warfront.gg/internal/protocol"
	"warfront.gg/internal/sim/world/feature/governance/territory"
	"warfront.gg/internal/sim/world/feature/warfare"
	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

// Handle executes one CMD for a joined participant. reply is called exactly once,
// on the world goroutine; for storage-backed commands that happens when the commit
// completes.
func (w *World) Handle(participantID string, cmd protocol.CmdMsg, reply func(protocol.ResultMsg)) {
	res := protocol.ResultMsg{Type: protocol.TypeResult, ID: cmd.ID, Cmd: cmd.Cmd}
	send := func(ok bool, code, reason string, data any) {
		res.OK, res.Code, res.Reason, res.Data = ok, code, reason, data
		reply(res)
	}
	terrDone := func(o territory.Outcome) { send(o.Result.OK(), string(o.Result), o.Reason(), nil) }
	warDone := func(o warfare.Outcome) { send(o.Result.OK(), string(o.Result), o.Reason(), nil) }

	s := w.sessions[participantID]
	if s == nil {
		send(false, string(ActionNoSession), ActionNoSession.Reason(), nil)
		return
	}
	p := s.Participant
	at := s.Pos
	if cmd.Pos != nil {
		at = w.blockPos(modelpkg.Vec3i{X: cmd.Pos[0], Y: cmd.Pos[1], Z: cmd.Pos[2]})
	}
	coord := modelpkg.ChunkOf(at)
	action := func(c ActionCode) { send(c == ActionOK, string(c), c.Reason(), nil) }

	switch cmd.Cmd {
	case protocol.CmdClaim:
		w.terr.ClaimTerritory(p, coord, terrDone)
	case protocol.CmdUnclaim:
		w.terr.UnclaimTerritory(p, coord, terrDone)
	case protocol.CmdInfo:
		send(true, string(territory.Success), "ok", w.terr.Info(coord))
	case protocol.CmdList:
		var ref *modelpkg.ClanRef
		if cmd.Clan != "" {
			ref = w.clans.ClanByName(cmd.Clan)
		} else {
			ref = w.clans.ClanOf(p.ID)
		}
		if ref == nil {
			code := territory.NoClan
			send(false, string(code), code.Reason(), nil)
			return
		}
		send(true, string(territory.Success), "ok", w.terr.List(ref.ID))
	case protocol.CmdBank:
		bal, o := w.terr.BankBalance(p)
		if !o.Result.OK() {
			terrDone(o)
			return
		}
		send(true, string(o.Result), "ok", map[string]string{"balance": bal.StringFixed(2)})
	case protocol.CmdDeposit, protocol.CmdWithdraw:
		amount, err := decimal.NewFromString(cmd.Amount)
		if err != nil {
			code := territory.InvalidAmount
			send(false, string(code), code.Reason(), nil)
			return
		}
		if cmd.Cmd == protocol.CmdDeposit {
			w.terr.Deposit(p, amount, terrDone)
		} else {
			w.terr.Withdraw(p, amount, terrDone)
		}
	case protocol.CmdDeclareWar:
		w.war.DeclareWar(p, cmd.Target, warDone)
	case protocol.CmdStartSiege:
		action(w.PlaceBlock(p.ID, at.Vec3i, SiegeMarker))
	case protocol.CmdMove:
		action(w.Move(p.ID, at.Vec3i))
	case protocol.CmdPlace:
		action(w.PlaceBlock(p.ID, at.Vec3i, cmd.Item))
	case protocol.CmdBreak:
		action(w.BreakBlock(p.ID, at.Vec3i))
	case protocol.CmdInteract:
		action(w.Interact(p.ID, at.Vec3i))
	default:
		send(false, protocol.ErrUnknownCommand, "unknown command "+cmd.Cmd, nil)
	}
}
