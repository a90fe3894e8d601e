package geometry

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Identity is the zero rotation.
var Identity = quat.Number{Real: 1}

// Pose is a stamped position + orientation in a named frame.
// Pose is a value type: every derivation returns a new Pose, so offsets
// applied to one pose can never leak into another.
type Pose struct {
	Position    r3.Vector   `json:"position"`
	Orientation quat.Number `json:"orientation"`
	Frame       string      `json:"frame"`
	Stamp       time.Time   `json:"stamp"`
}

// NewPose builds a pose and normalizes the orientation.
func NewPose(frame string, position r3.Vector, orientation quat.Number, stamp time.Time) Pose {
	return Pose{
		Position:    position,
		Orientation: Normalize(orientation),
		Frame:       frame,
		Stamp:       stamp,
	}
}

// Translate returns a copy of p moved by (dx, dy, dz) in its own frame.
func (p Pose) Translate(dx, dy, dz float64) Pose {
	p.Position = p.Position.Add(r3.Vector{X: dx, Y: dy, Z: dz})
	return p
}

// Offset is Translate with a vector argument.
func (p Pose) Offset(d r3.Vector) Pose {
	p.Position = p.Position.Add(d)
	return p
}

func (p Pose) WithOrientation(q quat.Number) Pose {
	p.Orientation = Normalize(q)
	return p
}

func (p Pose) WithStamp(stamp time.Time) Pose {
	p.Stamp = stamp
	return p
}

// InFrame relabels the pose. It does not transform coordinates.
func (p Pose) InFrame(frame string) Pose {
	p.Frame = frame
	return p
}

// Yaw returns the rotation about z of the pose orientation.
func (p Pose) Yaw() float64 {
	q := p.Orientation
	return math.Atan2(2*(q.Real*q.Kmag+q.Imag*q.Jmag), 1-2*(q.Jmag*q.Jmag+q.Kmag*q.Kmag))
}

// Normalize scales q to unit length. A zero quaternion becomes Identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) {
		return Identity
	}
	return quat.Scale(1/n, q)
}

// FromEuler converts static-axis roll/pitch/yaw (radians) to a unit quaternion.
func FromEuler(roll, pitch, yaw float64) quat.Number {
	sr, cr := math.Sincos(roll / 2)
	sp, cp := math.Sincos(pitch / 2)
	sy, cy := math.Sincos(yaw / 2)

	return Normalize(quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	})
}

// FromYaw is FromEuler(0, 0, yaw).
func FromYaw(yaw float64) quat.Number {
	return FromEuler(0, 0, yaw)
}

// AngleDiff returns the signed smallest difference a-b wrapped to [-pi, pi].
func AngleDiff(a, b float64) float64 {
	d := math.Mod(a-b+math.Pi, 2*math.Pi)
	if d < 0 {
		d += 2 * math.Pi
	}
	return d - math.Pi
}

// PlanarDistance is the xy distance between two positions.
func PlanarDistance(a, b r3.Vector) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
