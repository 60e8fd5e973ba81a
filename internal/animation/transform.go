package animation

import "math"

// Vec3 is a position or an Euler rotation in degrees.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vec3) Mul(f float64) Vec3 {
	return Vec3{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func (v Vec3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Transform is the animated quantity of a scene object.
type Transform struct {
	Position Vec3    `json:"position" yaml:"position"`
	Rotation Vec3    `json:"rotation" yaml:"rotation"`
	Scale    float64 `json:"scale" yaml:"scale"`
}

// Identity is the rest transform used when none is configured.
var Identity = Transform{Scale: 1}

// Offset applies d on top of t. Positions and rotations add, scales multiply.
// A zero scale in d leaves the scale unchanged.
func (t Transform) Offset(d Transform) Transform {
	out := Transform{
		Position: t.Position.Add(d.Position),
		Rotation: t.Rotation.Add(d.Rotation),
		Scale:    t.Scale,
	}
	if d.Scale != 0 {
		out.Scale = t.Scale * d.Scale
	}
	return out
}

// Scaled returns t with its scale multiplied by f.
func (t Transform) Scaled(f float64) Transform {
	t.Scale *= f
	return t
}

// Lerp interpolates linearly. t is clamped to [0, 1] and t == 1 yields b exactly.
func Lerp(a, b, t float64) float64 {
	t = clamp01(t)
	if t == 1 {
		return b
	}
	return a + (b-a)*t
}

func LerpVec3(a, b Vec3, t float64) Vec3 {
	return Vec3{
		X: Lerp(a.X, b.X, t),
		Y: Lerp(a.Y, b.Y, t),
		Z: Lerp(a.Z, b.Z, t),
	}
}

func LerpTransform(a, b Transform, t float64) Transform {
	return Transform{
		Position: LerpVec3(a.Position, b.Position, t),
		Rotation: LerpVec3(a.Rotation, b.Rotation, t),
		Scale:    Lerp(a.Scale, b.Scale, t),
	}
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
