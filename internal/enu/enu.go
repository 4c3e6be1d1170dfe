// Package enu maps device NED quantities into the ENU convention.
package enu

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// nedToENU is the fixed reference-frame rotation RPY(pi, 0, pi/2): a half
// turn about (1,1,0)/sqrt(2). Its matrix swaps x and y and negates z.
var nedToENU = quat.Number{Real: 0, Imag: math.Sqrt2 / 2, Jmag: math.Sqrt2 / 2, Kmag: 0}

// Transformer applies the configured conversion. The zero value passes
// everything through unchanged. It holds no state between calls.
type Transformer struct {
	Enabled bool
	// FrameBased rotates orientations by the fixed NED->ENU frame rotation
	// instead of permuting their components.
	FrameBased bool
}

// Vector converts a 3-vector.
func (t Transformer) Vector(v r3.Vector) r3.Vector {
	if !t.Enabled {
		return v
	}
	return SwapAxes(v)
}

// Quaternion converts an orientation.
func (t Transformer) Quaternion(q quat.Number) quat.Number {
	if !t.Enabled {
		return q
	}
	if t.FrameBased {
		return RotateFrame(q)
	}
	return SwapQuaternion(q)
}

// SwapAxes maps (x, y, z) to (y, x, -z).
func SwapAxes(v r3.Vector) r3.Vector {
	return r3.Vector{X: v.Y, Y: v.X, Z: -v.Z}
}

// SwapQuaternion applies the same axis permutation to the vector part of q.
func SwapQuaternion(q quat.Number) quat.Number {
	return quat.Number{Real: q.Real, Imag: q.Jmag, Jmag: q.Imag, Kmag: -q.Kmag}
}

// RotateFrame left-multiplies q by the NED->ENU frame rotation.
func RotateFrame(q quat.Number) quat.Number {
	return quat.Mul(nedToENU, q)
}

// SameRotation reports whether a and b describe the same rotation within
// tol, treating q and -q as equal.
func SameRotation(a, b quat.Number, tol float64) bool {
	na, nb := quat.Abs(a), quat.Abs(b)
	if na == 0 || nb == 0 {
		return na == nb
	}
	dot := (a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag) / (na * nb)
	return math.Abs(math.Abs(dot)-1) <= tol
}
