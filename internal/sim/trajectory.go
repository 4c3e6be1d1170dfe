package sim

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

const (
	wgs84A  = 6378137.0
	wgs84E2 = 6.69437999014e-3
	gravity = 9.80665
)

// Trajectory is a deterministic figure-eight around a fixed center at
// constant altitude. The vehicle always points along its velocity.
type Trajectory struct {
	CenterLatDeg float64
	CenterLonDeg float64
	AltMeters    float64
	RadiusMeters float64
	Period       time.Duration
}

// Sample is the vehicle state at one instant. Vectors are NED unless the
// field name says otherwise.
type Sample struct {
	LLA        r3.Vector // lat deg, lon deg, alt m
	ECEF       r3.Vector
	VelNED     r3.Vector
	AccelNED   r3.Vector
	HeadingRad float64
	YawRate    float64 // rad/s
	Speed      float64 // m/s
}

func (t Trajectory) withDefaults() Trajectory {
	if t.Period <= 0 {
		t.Period = 120 * time.Second
	}
	if t.RadiusMeters <= 0 {
		t.RadiusMeters = 50
	}
	return t
}

// At returns the state at now.
func (t Trajectory) At(now time.Time) Sample {
	t = t.withDefaults()
	period := t.Period.Nanoseconds()
	phase := float64(now.UnixNano()%period) / float64(period)
	if phase < 0 {
		phase++
	}

	// east = R cos(w), north = R/2 sin(2w)
	w := 2 * math.Pi * phase
	dw := 2 * math.Pi / t.Period.Seconds()
	r := t.RadiusMeters

	east := r * math.Cos(w)
	north := 0.5 * r * math.Sin(2*w)
	ve := -r * dw * math.Sin(w)
	vn := r * dw * math.Cos(2*w)
	ae := -r * dw * dw * math.Cos(w)
	an := -2 * r * dw * dw * math.Sin(2*w)

	lat0 := t.CenterLatDeg * math.Pi / 180
	latDeg := t.CenterLatDeg + (north/wgs84A)*180/math.Pi
	lonDeg := t.CenterLonDeg + (east/(wgs84A*math.Cos(lat0)))*180/math.Pi

	speed2 := ve*ve + vn*vn
	var yawRate float64
	if speed2 > 0 {
		yawRate = (vn*ae - ve*an) / speed2
	}
	s := Sample{
		LLA:        r3.Vector{X: latDeg, Y: lonDeg, Z: t.AltMeters},
		VelNED:     r3.Vector{X: vn, Y: ve},
		AccelNED:   r3.Vector{X: an, Y: ae},
		HeadingRad: math.Atan2(ve, vn),
		YawRate:    yawRate,
		Speed:      math.Sqrt(speed2),
	}
	s.ECEF = LLAToECEF(s.LLA)
	return s
}

// Attitude is the body-to-NED rotation for a level vehicle at the sample's
// heading.
func (s Sample) Attitude() quat.Number {
	h := s.HeadingRad / 2
	return quat.Number{Real: math.Cos(h), Kmag: math.Sin(h)}
}

// ToBody rotates an NED vector into the level body frame.
func (s Sample) ToBody(v r3.Vector) r3.Vector {
	c, sn := math.Cos(s.HeadingRad), math.Sin(s.HeadingRad)
	return r3.Vector{X: c*v.X + sn*v.Y, Y: -sn*v.X + c*v.Y, Z: v.Z}
}

// NEDToECEF rotates an NED vector at the sample's position into ECEF.
func (s Sample) NEDToECEF(v r3.Vector) r3.Vector {
	lat := s.LLA.X * math.Pi / 180
	lon := s.LLA.Y * math.Pi / 180
	sl, cl := math.Sin(lat), math.Cos(lat)
	so, co := math.Sin(lon), math.Cos(lon)
	north := r3.Vector{X: -sl * co, Y: -sl * so, Z: cl}
	eastV := r3.Vector{X: -so, Y: co}
	down := r3.Vector{X: -cl * co, Y: -cl * so, Z: -sl}
	return north.Mul(v.X).Add(eastV.Mul(v.Y)).Add(down.Mul(v.Z))
}

// LLAToECEF converts WGS84 latitude/longitude in degrees and height in
// meters to earth-centered, earth-fixed meters.
func LLAToECEF(lla r3.Vector) r3.Vector {
	lat := lla.X * math.Pi / 180
	lon := lla.Y * math.Pi / 180
	h := lla.Z
	sl := math.Sin(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sl*sl)
	return r3.Vector{
		X: (n + h) * math.Cos(lat) * math.Cos(lon),
		Y: (n + h) * math.Cos(lat) * math.Sin(lon),
		Z: (n*(1-wgs84E2) + h) * sl,
	}
}
