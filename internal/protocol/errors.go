package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrUnauthorized    = "E_UNAUTHORIZED"
	ErrUnknownCommand  = "E_UNKNOWN_COMMAND"

	// World routing/state.
	ErrWorldBusy = "E_WORLD_BUSY"

	ErrRateLimit = "E_RATE_LIMIT"
	ErrInternal  = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrUnauthorized:    {},
	ErrUnknownCommand:  {},
	ErrWorldBusy:       {},
	ErrRateLimit:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Commands lists every CMD the server accepts.
var Commands = []string{
	CmdClaim, CmdUnclaim, CmdInfo, CmdList, CmdBank, CmdDeposit, CmdWithdraw,
	CmdDeclareWar, CmdStartSiege, CmdMove, CmdPlace, CmdBreak, CmdInteract,
}

func IsCommand(cmd string) bool {
	for _, c := range Commands {
		if c == cmd {
			return true
		}
	}
	return false
}
