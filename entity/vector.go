package entity

import "math"

// Vector3 is a plain 3-component vector used for position, velocity,
// acceleration, and angular velocity (axis form).
type Vector3 struct {
	X, Y, Z float64
}

// Add returns v+o.
func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v-o.
func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v scaled by s.
func (v Vector3) Scale(s float64) Vector3 {
	return Vector3{v.X * s, v.Y * s, v.Z * s}
}

// LengthSquared returns the squared Euclidean length of v.
func (v Vector3) LengthSquared() float64 {
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z
}

// Length returns the Euclidean length of v.
func (v Vector3) Length() float64 {
	return math.Sqrt(v.LengthSquared())
}

// IsZero reports whether v is the zero vector.
func (v Vector3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Normalized returns v scaled to unit length, or the zero vector if v
// itself is zero (there is no meaningful axis to extract).
func (v Vector3) Normalized() Vector3 {
	length := v.Length()
	if length == 0 {
		return Vector3{}
	}
	return v.Scale(1 / length)
}

// BBox is an axis-aligned bounding box in the entity's local frame.
type BBox struct {
	Min, Max Vector3
}

// Scaled returns the box with each axis multiplied by the corresponding
// component of scale. The entity's native "bbox" and "scale" handlers
// store the two values separately and do not call it.
func (b BBox) Scaled(scale Vector3) BBox {
	return BBox{
		Min: Vector3{b.Min.X * scale.X, b.Min.Y * scale.Y, b.Min.Z * scale.Z},
		Max: Vector3{b.Max.X * scale.X, b.Max.Y * scale.Y, b.Max.Z * scale.Z},
	}
}

// Quaternion is a unit (or near-unit) rotation in w,x,y,z order.
type Quaternion struct {
	W, X, Y, Z float64
}

// IdentityQuaternion is the no-rotation orientation.
var IdentityQuaternion = Quaternion{W: 1}

// FromAxisAngle builds the rotation of angle radians about axis (which
// must already be normalized).
func FromAxisAngle(axis Vector3, angle float64) Quaternion {
	half := angle / 2
	s := math.Sin(half)
	return Quaternion{
		W: math.Cos(half),
		X: axis.X * s,
		Y: axis.Y * s,
		Z: axis.Z * s,
	}
}

// Multiply returns q⊗o, applying o's rotation after q's — orientation
// integration composes the stored orientation with the predicted delta
// this way (o_pred = o ⊗ delta).
func (q Quaternion) Multiply(o Quaternion) Quaternion {
	return Quaternion{
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
	}
}
