package model

import "fmt"

// Vec3i identifies a routing node. There are no separate node ids; the
// coordinate is the graph's vertex key everywhere.
type Vec3i struct {
	X int
	Y int
	Z int
}

// IsZero reports whether v is the (0,0,0) sentinel used for "no master".
func (v Vec3i) IsZero() bool { return v.X == 0 && v.Y == 0 && v.Z == 0 }

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func (v Vec3i) ToArray() [3]int { return [3]int{v.X, v.Y, v.Z} }

func (v Vec3i) String() string { return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z) }

func FromArray(a [3]int) Vec3i { return Vec3i{X: a[0], Y: a[1], Z: a[2]} }

// Less orders positions by X, then Y, then Z.
func (v Vec3i) Less(o Vec3i) bool {
	if v.X != o.X {
		return v.X < o.X
	}
	if v.Y != o.Y {
		return v.Y < o.Y
	}
	return v.Z < o.Z
}

// Chebyshev returns the largest per-axis distance between a and b.
func Chebyshev(a, b Vec3i) int {
	d := abs(a.X - b.X)
	if dy := abs(a.Y - b.Y); dy > d {
		d = dy
	}
	if dz := abs(a.Z - b.Z); dz > d {
		d = dz
	}
	return d
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Direction is one of the six block faces.
type Direction int

const (
	Down Direction = iota
	Up
	North
	South
	West
	East
)

// NumDirections is the number of faces on a node.
const NumDirections = 6

var directionOffsets = [NumDirections]Vec3i{
	Down:  {X: 0, Y: -1, Z: 0},
	Up:    {X: 0, Y: 1, Z: 0},
	North: {X: 0, Y: 0, Z: -1},
	South: {X: 0, Y: 0, Z: 1},
	West:  {X: -1, Y: 0, Z: 0},
	East:  {X: 1, Y: 0, Z: 0},
}

var directionNames = [NumDirections]string{"DOWN", "UP", "NORTH", "SOUTH", "WEST", "EAST"}

// Directions lists all faces in index order.
func Directions() []Direction {
	return []Direction{Down, Up, North, South, West, East}
}

func (d Direction) Valid() bool { return d >= 0 && d < NumDirections }

func (d Direction) Offset() Vec3i {
	if !d.Valid() {
		return Vec3i{}
	}
	return directionOffsets[d]
}

func (d Direction) Opposite() Direction {
	switch d {
	case Down:
		return Up
	case Up:
		return Down
	case North:
		return South
	case South:
		return North
	case West:
		return East
	case East:
		return West
	}
	return d
}

func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return directionNames[d]
}

// ParseDirection accepts the upper-case face name.
func ParseDirection(s string) (Direction, bool) {
	for i, n := range directionNames {
		if n == s {
			return Direction(i), true
		}
	}
	return 0, false
}
