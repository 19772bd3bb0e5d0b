package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Name            string     `json:"name"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	ParticipantID   string      `json:"participant_id"`
	ClanID          string      `json:"clan_id,omitempty"`
	Params          WorldParams `json:"params"`
}

type WorldParams struct {
	World             string  `json:"world"`
	ChunkSize         int     `json:"chunk_size"`
	CommandsPerSecond float64 `json:"commands_per_second"`
	ChannelSeconds    float64 `json:"channel_seconds"`
	SiegeSeconds      float64 `json:"siege_seconds"`
}

// Commands carried by CMD.
const (
	CmdClaim      = "CLAIM"
	CmdUnclaim    = "UNCLAIM"
	CmdInfo       = "INFO"
	CmdList       = "LIST"
	CmdBank       = "BANK"
	CmdDeposit    = "DEPOSIT"
	CmdWithdraw   = "WITHDRAW"
	CmdDeclareWar = "DECLARE_WAR"
	CmdStartSiege = "START_SIEGE"
	CmdMove       = "MOVE"
	CmdPlace      = "PLACE"
	CmdBreak      = "BREAK"
	CmdInteract   = "INTERACT"
)

// CMD (client -> server). Pos is a block position in the participant's world; when
// omitted, positional commands use the participant's current position.
type CmdMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version,omitempty"`
	ID              string  `json:"id"`
	Cmd             string  `json:"cmd"`
	Pos             *[3]int `json:"pos,omitempty"`
	Item            string  `json:"item,omitempty"`
	Target          string  `json:"target,omitempty"`
	Clan            string  `json:"clan,omitempty"`
	Amount          string  `json:"amount,omitempty"`
}

// RESULT (server -> client), one per CMD. A command whose commit is asynchronous
// gets its RESULT when the commit finishes.
type ResultMsg struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Cmd    string `json:"cmd"`
	OK     bool   `json:"ok"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
	Data   any    `json:"data,omitempty"`
}

// EVENT (server -> client), unsolicited.
type EventMsg struct {
	Type string `json:"type"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}

const (
	EventNotice   = "NOTICE"
	EventAnnounce = "ANNOUNCE"
)

// ERROR (server -> client) for transport-level failures.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
