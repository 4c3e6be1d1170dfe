package vn

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// InsMode is the filter mode carried in the low two bits of the INS status.
type InsMode uint8

const (
	InsModeNotTracking InsMode = 0
	InsModeAligning    InsMode = 1
	InsModeTracking    InsMode = 2
	InsModeLossOfGNSS  InsMode = 3
)

func (m InsMode) String() string {
	switch m {
	case InsModeNotTracking:
		return "not-tracking"
	case InsModeAligning:
		return "aligning"
	case InsModeTracking:
		return "tracking"
	case InsModeLossOfGNSS:
		return "loss-of-gnss"
	default:
		return "unknown"
	}
}

// InsStatus is the raw INS status word.
type InsStatus uint16

func (s InsStatus) Mode() InsMode { return InsMode(s & 0x0003) }

// GNSSFix reports whether the INS currently has a GNSS fix.
func (s InsStatus) GNSSFix() bool { return s&0x0004 != 0 }

// CompositeData is a decoded frame. A nil field means the group was not in
// the frame; it must never be read as zero.
//
// Units follow the device: rad/s, m/s^2, gauss, degrees C, kPa, degrees
// (attitude uncertainty), degrees/meters (LLA), meters (ECEF), m/s.
type CompositeData struct {
	Quaternion              *quat.Number `json:"quaternion,omitempty"`
	AngularRate             *r3.Vector   `json:"angular_rate,omitempty"`
	Acceleration            *r3.Vector   `json:"acceleration,omitempty"`
	Magnetic                *r3.Vector   `json:"magnetic,omitempty"`
	Temperature             *float64     `json:"temperature,omitempty"`
	Pressure                *float64     `json:"pressure,omitempty"`
	YawPitchRollUncertainty *r3.Vector   `json:"ypr_uncertainty,omitempty"`
	InsStatus               *InsStatus   `json:"ins_status,omitempty"`
	PositionLLA             *r3.Vector   `json:"position_lla,omitempty"`
	PositionECEF            *r3.Vector   `json:"position_ecef,omitempty"`
	VelocityBody            *r3.Vector   `json:"velocity_body,omitempty"`
	AccelerationECEF        *r3.Vector   `json:"acceleration_ecef,omitempty"`
}

// HasIMU reports whether any group of the IMU message is present.
func (cd CompositeData) HasIMU() bool {
	return cd.Quaternion != nil || cd.AngularRate != nil || cd.Acceleration != nil
}
