package model

import "time"

// AuditEntry records one territorial state change or rejected attempt.
type AuditEntry struct {
	At      time.Time      `json:"at"`
	Actor   string         `json:"actor,omitempty"`
	Action  string         `json:"action"`
	ClanID  string         `json:"clan_id,omitempty"`
	Coord   *ChunkCoord    `json:"coord,omitempty"`
	Result  string         `json:"result"`
	Details map[string]any `json:"details,omitempty"`
}
