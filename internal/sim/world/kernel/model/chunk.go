package model

import "fmt"

// ChunkSize is the edge length of a chunk in blocks.
const ChunkSize = 16

type Vec3i struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// BlockPos is a block position qualified by world.
type BlockPos struct {
	World string `json:"world"`
	Vec3i
}

func (p BlockPos) String() string {
	return fmt.Sprintf("%s(%d,%d,%d)", p.World, p.X, p.Y, p.Z)
}

// ChunkCoord identifies a chunk: the unit of territory ownership.
type ChunkCoord struct {
	World string `json:"world"`
	X     int    `json:"cx"`
	Z     int    `json:"cz"`
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("%s[%d,%d]", c.World, c.X, c.Z)
}

func (c ChunkCoord) IsZero() bool { return c.World == "" && c.X == 0 && c.Z == 0 }

// ChunkOf returns the chunk containing pos. Negative coordinates floor toward -inf.
func ChunkOf(pos BlockPos) ChunkCoord {
	return ChunkCoord{World: pos.World, X: floorDiv(pos.X, ChunkSize), Z: floorDiv(pos.Z, ChunkSize)}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// WithinRadius reports whether b lies within a horizontal square radius of a in the same world.
func WithinRadius(a, b BlockPos, radius int) bool {
	if a.World != b.World {
		return false
	}
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dz := a.Z - b.Z
	if dz < 0 {
		dz = -dz
	}
	return dx <= radius && dz <= radius
}
