package node

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"vectornav-ng/internal/enu"
	"vectornav-ng/internal/msgs"
	"vectornav-ng/internal/vn"
)

const (
	gaussToTesla = 1e-4
	kPaToPa      = 1000.0
)

// Covariances are the row-major 3x3 matrices attached to every IMU message.
type Covariances struct {
	LinearAccel [9]float64
	AngularVel  [9]float64
	Orientation [9]float64
}

type outgoing struct {
	topic string
	msg   any
}

// relay turns one decoded frame into messages. It is driven from a single
// goroutine; only ins may change concurrently.
type relay struct {
	prefix  string
	frameID string
	tf      enu.Transformer
	cov     Covariances
	latch   *Latch

	// ins gates GPS and odometry on the detected device family.
	ins atomic.Bool
	seq uint32
}

func (r *relay) build(cd vn.CompositeData, stamp time.Time) []outgoing {
	r.seq++
	h := msgs.Header{Seq: r.seq, Stamp: stamp, FrameID: r.frameID}

	var out []outgoing
	if cd.HasIMU() {
		out = append(out, outgoing{r.topic(msgs.IMU), r.imu(h, cd)})
	}
	if cd.Magnetic != nil {
		m := r.tf.Vector(cd.Magnetic.Mul(gaussToTesla))
		out = append(out, outgoing{r.topic(msgs.Mag), msgs.MagneticField{
			Header:        h,
			MagneticField: vector3(m),
		}})
	}
	if r.ins.Load() {
		if cd.PositionLLA != nil {
			out = append(out, outgoing{r.topic(msgs.GPS), r.gps(h, cd)})
		}
		if validPosition(cd) {
			out = append(out, outgoing{r.topic(msgs.Odom), r.odom(h, cd)})
		}
	}
	if cd.Temperature != nil {
		out = append(out, outgoing{r.topic(msgs.Temp), msgs.Temperature{
			Header:      h,
			Temperature: *cd.Temperature,
		}})
	}
	if cd.Pressure != nil {
		out = append(out, outgoing{r.topic(msgs.Pres), msgs.FluidPressure{
			Header:        h,
			FluidPressure: *cd.Pressure * kPaToPa,
		}})
	}
	return out
}

func (r *relay) topic(name string) string { return msgs.Topic(r.prefix, name) }

func (r *relay) imu(h msgs.Header, cd vn.CompositeData) msgs.Imu {
	m := msgs.Imu{
		Header:                       h,
		OrientationCovariance:        r.cov.Orientation,
		AngularVelocityCovariance:    r.cov.AngularVel,
		LinearAccelerationCovariance: r.cov.LinearAccel,
	}
	if cd.Quaternion != nil {
		m.Orientation = quaternion(r.tf.Quaternion(*cd.Quaternion))
	} else {
		m.OrientationCovariance[0] = msgs.CovarianceUnknown
	}
	if cd.AngularRate != nil {
		m.AngularVelocity = vector3(r.tf.Vector(*cd.AngularRate))
	} else {
		m.AngularVelocityCovariance[0] = msgs.CovarianceUnknown
	}
	if cd.Acceleration != nil {
		m.LinearAcceleration = vector3(r.tf.Vector(*cd.Acceleration))
	} else {
		m.LinearAccelerationCovariance[0] = msgs.CovarianceUnknown
	}
	return m
}

func (r *relay) gps(h msgs.Header, cd vn.CompositeData) msgs.NavSatFix {
	status := msgs.NavSatStatusFix
	if cd.InsStatus != nil && cd.InsStatus.Mode() == vn.InsModeNotTracking {
		status = msgs.NavSatStatusNoFix
	}
	return msgs.NavSatFix{
		Header:                 h,
		Status:                 msgs.NavSatStatus{Status: status, Service: msgs.NavSatServiceGPS},
		Latitude:               cd.PositionLLA.X,
		Longitude:              cd.PositionLLA.Y,
		Altitude:               cd.PositionLLA.Z,
		PositionCovarianceType: msgs.CovarianceTypeUnknown,
	}
}

// odom must only be called with a valid position.
func (r *relay) odom(h msgs.Header, cd vn.CompositeData) msgs.Odometry {
	m := msgs.Odometry{Header: h, ChildFrameID: r.frameID}
	m.Pose.Pose.Position = point(r.latch.Relative(*cd.PositionECEF))
	if cd.Quaternion != nil {
		m.Pose.Pose.Orientation = quaternion(r.tf.Quaternion(*cd.Quaternion))
	}
	if u := cd.YawPitchRollUncertainty; u != nil {
		// Pose covariance rows are x, y, z, roll, pitch, yaw.
		m.Pose.Covariance[21] = degSquaredToRad(u.Z)
		m.Pose.Covariance[28] = degSquaredToRad(u.Y)
		m.Pose.Covariance[35] = degSquaredToRad(u.X)
	}
	if cd.VelocityBody != nil {
		m.Twist.Twist.Linear = vector3(r.tf.Vector(*cd.VelocityBody))
	}
	if cd.AngularRate != nil {
		m.Twist.Twist.Angular = vector3(r.tf.Vector(*cd.AngularRate))
	}
	return m
}

// validPosition reports whether the frame carries an absolute position that
// may seed the odometry origin.
func validPosition(cd vn.CompositeData) bool {
	p := cd.PositionECEF
	if p == nil {
		return false
	}
	if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
		return false
	}
	if cd.InsStatus != nil && cd.InsStatus.Mode() == vn.InsModeNotTracking {
		return false
	}
	return true
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func degSquaredToRad(deg float64) float64 {
	r := deg * math.Pi / 180
	return r * r
}

func vector3(v r3.Vector) msgs.Vector3 { return msgs.Vector3{X: v.X, Y: v.Y, Z: v.Z} }

func point(v r3.Vector) msgs.Point { return msgs.Point{X: v.X, Y: v.Y, Z: v.Z} }

func quaternion(q quat.Number) msgs.Quaternion {
	return msgs.Quaternion{X: q.Imag, Y: q.Jmag, Z: q.Kmag, W: q.Real}
}
