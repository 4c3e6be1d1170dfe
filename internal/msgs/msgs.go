// Package msgs holds the messages the node publishes. Shapes follow the
// sensor_msgs / nav_msgs definitions so consumers can map them one to one.
package msgs

import "time"

// Topic names, relative to the node's topic prefix.
const (
	IMU  = "IMU"
	Mag  = "Mag"
	GPS  = "GPS"
	Odom = "Odom"
	Temp = "Temp"
	Pres = "Pres"
)

// Topic joins prefix and name ("vectornav", "IMU" -> "vectornav/IMU").
func Topic(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Header is the standard metadata for stamped data.
type Header struct {
	Seq     uint32    `json:"seq"`
	Stamp   time.Time `json:"stamp"`
	FrameID string    `json:"frame_id"`
}

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// CovarianceUnknown in element 0 of a covariance marks the field as absent.
const CovarianceUnknown = -1

// Imu carries orientation, angular velocity and linear acceleration.
type Imu struct {
	Header                       Header     `json:"header"`
	Orientation                  Quaternion `json:"orientation"`
	OrientationCovariance        [9]float64 `json:"orientation_covariance"`
	AngularVelocity              Vector3    `json:"angular_velocity"`
	AngularVelocityCovariance    [9]float64 `json:"angular_velocity_covariance"`
	LinearAcceleration           Vector3    `json:"linear_acceleration"`
	LinearAccelerationCovariance [9]float64 `json:"linear_acceleration_covariance"`
}

// MagneticField is in tesla.
type MagneticField struct {
	Header                  Header     `json:"header"`
	MagneticField           Vector3    `json:"magnetic_field"`
	MagneticFieldCovariance [9]float64 `json:"magnetic_field_covariance"`
}

const (
	NavSatStatusNoFix int8 = -1
	NavSatStatusFix   int8 = 0
	NavSatStatusSBAS  int8 = 1
	NavSatStatusGBAS  int8 = 2
)

const NavSatServiceGPS uint16 = 1

const (
	CovarianceTypeUnknown   uint8 = 0
	CovarianceTypeDiagKnown uint8 = 2
)

type NavSatStatus struct {
	Status  int8   `json:"status"`
	Service uint16 `json:"service"`
}

// NavSatFix is latitude/longitude in degrees and altitude in meters.
type NavSatFix struct {
	Header                 Header       `json:"header"`
	Status                 NavSatStatus `json:"status"`
	Latitude               float64      `json:"latitude"`
	Longitude              float64      `json:"longitude"`
	Altitude               float64      `json:"altitude"`
	PositionCovariance     [9]float64   `json:"position_covariance"`
	PositionCovarianceType uint8        `json:"position_covariance_type"`
}

type Pose struct {
	Position    Point      `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

type PoseWithCovariance struct {
	Pose       Pose        `json:"pose"`
	Covariance [36]float64 `json:"covariance"`
}

type Twist struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

type TwistWithCovariance struct {
	Twist      Twist       `json:"twist"`
	Covariance [36]float64 `json:"covariance"`
}

// Odometry position is relative to the odometry origin.
type Odometry struct {
	Header       Header              `json:"header"`
	ChildFrameID string              `json:"child_frame_id"`
	Pose         PoseWithCovariance  `json:"pose"`
	Twist        TwistWithCovariance `json:"twist"`
}

// Temperature is in degrees Celsius.
type Temperature struct {
	Header      Header  `json:"header"`
	Temperature float64 `json:"temperature"`
	Variance    float64 `json:"variance"`
}

// FluidPressure is in pascals.
type FluidPressure struct {
	Header        Header  `json:"header"`
	FluidPressure float64 `json:"fluid_pressure"`
	Variance      float64 `json:"variance"`
}
