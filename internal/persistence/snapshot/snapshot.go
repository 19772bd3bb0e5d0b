// Package snapshot exports and imports the persisted territory state as a
// zstd-compressed file: one JSON header line followed by the JSON body.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/shopspring/decimal"

	"warfront.gg/internal/persistence/store"
	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

const Version = 1

type Header struct {
	Version int       `json:"version"`
	World   string    `json:"world"`
	TakenAt time.Time `json:"taken_at"`

	Territories int `json:"territories"`
	Wars        int `json:"wars"`
	Sieges      int `json:"sieges"`
	Banks       int `json:"banks"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Territories []TerritoryV1 `json:"territories"`
	Wars        []WarV1       `json:"wars"`
	Sieges      []SiegeV1     `json:"sieges"`
	Banks       []BankV1      `json:"banks"`
}

type TerritoryV1 struct {
	ID        int64     `json:"id"`
	World     string    `json:"world"`
	CX        int       `json:"cx"`
	CZ        int       `json:"cz"`
	ClanID    string    `json:"clan_id"`
	ClaimedAt time.Time `json:"claimed_at"`
}

type WarV1 struct {
	ID         int64     `json:"id"`
	Aggressor  string    `json:"aggressor"`
	Defender   string    `json:"defender"`
	StartedAt  time.Time `json:"started_at"`
	WindowEnds time.Time `json:"window_ends"`
	Status     string    `json:"status"`
}

type SiegeV1 struct {
	ID           int64     `json:"id"`
	WarID        int64     `json:"war_id"`
	TerritoryID  int64     `json:"territory_id"`
	World        string    `json:"world"`
	CX           int       `json:"cx"`
	CZ           int       `json:"cz"`
	Aggressor    string    `json:"aggressor"`
	Defender     string    `json:"defender"`
	Altar        [3]int    `json:"altar"`
	StartedAt    time.Time `json:"started_at"`
	EndsAt       time.Time `json:"ends_at"`
	Remaining    float64   `json:"remaining"`
	AttackerHeld float64   `json:"attacker_held"`
	DefenderHeld float64   `json:"defender_held"`
	PausedMS     int64     `json:"paused_ms,omitempty"`
	CheckpointAt time.Time `json:"checkpoint_at"`
}

type BankV1 struct {
	ClanID          string          `json:"clan_id"`
	Balance         decimal.Decimal `json:"balance"`
	LastMaintenance time.Time       `json:"last_maintenance,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// FromState captures a bulk store read.
func FromState(world string, st store.State, takenAt time.Time) SnapshotV1 {
	snap := SnapshotV1{
		Header: Header{
			Version:     Version,
			World:       world,
			TakenAt:     takenAt.UTC(),
			Territories: len(st.Territories),
			Wars:        len(st.Wars),
			Sieges:      len(st.Sieges),
			Banks:       len(st.Banks),
		},
	}
	for _, t := range st.Territories {
		snap.Territories = append(snap.Territories, TerritoryV1{
			ID: t.ID, World: t.Coord.World, CX: t.Coord.X, CZ: t.Coord.Z, ClanID: t.ClanID, ClaimedAt: t.ClaimedAt,
		})
	}
	for _, w := range st.Wars {
		snap.Wars = append(snap.Wars, WarV1{
			ID: w.ID, Aggressor: w.Aggressor, Defender: w.Defender, StartedAt: w.StartedAt, WindowEnds: w.WindowEnds, Status: string(w.Status),
		})
	}
	for _, sg := range st.Sieges {
		snap.Sieges = append(snap.Sieges, SiegeV1{
			ID: sg.ID, WarID: sg.WarID, TerritoryID: sg.TerritoryID,
			World: sg.Coord.World, CX: sg.Coord.X, CZ: sg.Coord.Z,
			Aggressor: sg.Aggressor, Defender: sg.Defender,
			Altar:     [3]int{sg.Altar.X, sg.Altar.Y, sg.Altar.Z},
			StartedAt: sg.StartedAt, EndsAt: sg.EndsAt,
			Remaining: sg.Remaining, AttackerHeld: sg.AttackerHeld, DefenderHeld: sg.DefenderHeld,
			PausedMS: sg.Paused.Milliseconds(), CheckpointAt: sg.CheckpointAt,
		})
	}
	for _, b := range st.Banks {
		snap.Banks = append(snap.Banks, BankV1{
			ClanID: b.ClanID, Balance: b.Balance, LastMaintenance: b.LastMaintenance, UpdatedAt: b.UpdatedAt,
		})
	}
	return snap
}

// State converts the snapshot back into a bulk store payload.
func (s SnapshotV1) State() store.State {
	var st store.State
	for _, t := range s.Territories {
		st.Territories = append(st.Territories, modelpkg.TerritoryChunk{
			ID: t.ID, Coord: modelpkg.ChunkCoord{World: t.World, X: t.CX, Z: t.CZ}, ClanID: t.ClanID, ClaimedAt: t.ClaimedAt,
		})
	}
	for _, w := range s.Wars {
		st.Wars = append(st.Wars, modelpkg.War{
			ID: w.ID, Aggressor: w.Aggressor, Defender: w.Defender, StartedAt: w.StartedAt, WindowEnds: w.WindowEnds, Status: modelpkg.WarStatus(w.Status),
		})
	}
	for _, sg := range s.Sieges {
		st.Sieges = append(st.Sieges, modelpkg.Siege{
			ID: sg.ID, WarID: sg.WarID, TerritoryID: sg.TerritoryID,
			Coord:     modelpkg.ChunkCoord{World: sg.World, X: sg.CX, Z: sg.CZ},
			Aggressor: sg.Aggressor, Defender: sg.Defender,
			Altar:     modelpkg.BlockPos{World: sg.World, Vec3i: modelpkg.Vec3i{X: sg.Altar[0], Y: sg.Altar[1], Z: sg.Altar[2]}},
			StartedAt: sg.StartedAt, EndsAt: sg.EndsAt,
			Remaining: sg.Remaining, AttackerHeld: sg.AttackerHeld, DefenderHeld: sg.DefenderHeld,
			Paused: time.Duration(sg.PausedMS) * time.Millisecond, CheckpointAt: sg.CheckpointAt,
			Status: modelpkg.SiegeActive,
		})
	}
	for _, b := range s.Banks {
		st.Banks = append(st.Banks, modelpkg.ClanBank{
			ClanID: b.ClanID, Balance: b.Balance, LastMaintenance: b.LastMaintenance, UpdatedAt: b.UpdatedAt,
		})
	}
	return st
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := json.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("json decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the first line, for cheap inspection.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
