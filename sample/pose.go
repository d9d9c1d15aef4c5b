package sample

import "math"

// Point2D is a position or vector in image coordinates.
type Point2D struct {
	X, Y float64
}

// Sub returns p - q.
func (p Point2D) Sub(q Point2D) Point2D {
	return Point2D{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale returns p scaled by k.
func (p Point2D) Scale(k float64) Point2D {
	return Point2D{X: p.X * k, Y: p.Y * k}
}

// Norm is the Euclidean length of p.
func (p Point2D) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// Angle is the direction of p in radians.
func (p Point2D) Angle() float64 {
	return math.Atan2(p.Y, p.X)
}

// PoseFlags marks which parts of a Pose were observed.
type PoseFlags uint32

const (
	PositionValid PoseFlags = 1 << iota
	HeadingValid
	VelocityValid
)

// Pose is the tracked position of an animal in one frame.
type Pose struct {
	SampleNumber uint64 // frame the pose was estimated from
	Timestamp    int64

	Position      Point2D
	Velocity      Point2D // pixels per second
	HeadDirection float64 // radians
	Flags         PoseFlags
	_             uint32
}

// Has reports whether every flag in f is set.
func (p Pose) Has(f PoseFlags) bool {
	return p.Flags&f == f
}

// Advance returns the pose at sample number n, timestamp ts and position
// pos, deriving the velocity from prev when both positions are valid.
func (p Pose) Advance(n uint64, ts int64, pos Point2D) Pose {
	next := Pose{
		SampleNumber: n,
		Timestamp:    ts,
		Position:     pos,
		Flags:        PositionValid,
	}

	if p.Has(PositionValid) && ts > p.Timestamp {
		dt := float64(ts-p.Timestamp) / 1e9
		next.Velocity = pos.Sub(p.Position).Scale(1 / dt)
		next.Flags |= VelocityValid
		if next.Velocity.Norm() > 0 {
			next.HeadDirection = next.Velocity.Angle()
			next.Flags |= HeadingValid
		}
	}
	return next
}
