package model

type ClanRole string

const (
	ClanLeader  ClanRole = "LEADER"
	ClanOfficer ClanRole = "OFFICER"
	ClanMember  ClanRole = "MEMBER"
)

// ClanRef is the read view of a clan handed out by the directory.
type ClanRef struct {
	ID   string
	Name string
	Tag  string
}

func (c *ClanRef) Valid() bool { return c != nil && c.ID != "" }

// Participant is a connected player as seen by the engine.
type Participant struct {
	ID   string
	Name string
}
