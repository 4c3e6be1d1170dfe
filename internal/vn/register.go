package vn

import (
	"fmt"
	"strings"
)

// AsyncMode selects the serial port(s) a binary output register streams on.
type AsyncMode uint16

const (
	AsyncModeNone  AsyncMode = 0
	AsyncModePort1 AsyncMode = 1
	AsyncModePort2 AsyncMode = 2
	AsyncModeBoth  AsyncMode = 3
)

// CommonGroup bits.
type CommonGroup uint16

const (
	CommonGroupNone         CommonGroup = 0x0000
	CommonGroupTimeStartup  CommonGroup = 0x0001
	CommonGroupTimeGPS      CommonGroup = 0x0002
	CommonGroupTimeSyncIn   CommonGroup = 0x0004
	CommonGroupYawPitchRoll CommonGroup = 0x0008
	CommonGroupQuaternion   CommonGroup = 0x0010
	CommonGroupAngularRate  CommonGroup = 0x0020
	CommonGroupPosition     CommonGroup = 0x0040
	CommonGroupVelocity     CommonGroup = 0x0080
	CommonGroupAccel        CommonGroup = 0x0100
	CommonGroupIMU          CommonGroup = 0x0200
	CommonGroupMagPres      CommonGroup = 0x0400
	CommonGroupDeltaTheta   CommonGroup = 0x0800
	CommonGroupInsStatus    CommonGroup = 0x1000
	CommonGroupSyncInCnt    CommonGroup = 0x2000
	CommonGroupTimeGPSPPS   CommonGroup = 0x4000
)

// TimeGroup bits. The node streams none of them.
type TimeGroup uint16

const TimeGroupNone TimeGroup = 0x0000

// IMUGroup bits. The node streams none of them.
type IMUGroup uint16

const IMUGroupNone IMUGroup = 0x0000

// GPSGroup bits, used for both GPS and GPS2. The node streams none of them.
type GPSGroup uint16

const GPSGroupNone GPSGroup = 0x0000

// AttitudeGroup bits.
type AttitudeGroup uint16

const (
	AttitudeGroupNone            AttitudeGroup = 0x0000
	AttitudeGroupVPEStatus       AttitudeGroup = 0x0001
	AttitudeGroupYawPitchRoll    AttitudeGroup = 0x0002
	AttitudeGroupQuaternion      AttitudeGroup = 0x0004
	AttitudeGroupDCM             AttitudeGroup = 0x0008
	AttitudeGroupMagNED          AttitudeGroup = 0x0010
	AttitudeGroupAccelNED        AttitudeGroup = 0x0020
	AttitudeGroupLinearAccelBody AttitudeGroup = 0x0040
	AttitudeGroupLinearAccelNED  AttitudeGroup = 0x0080
	AttitudeGroupYPRU            AttitudeGroup = 0x0100
)

// INSGroup bits.
type INSGroup uint16

const (
	INSGroupNone            INSGroup = 0x0000
	INSGroupInsStatus       INSGroup = 0x0001
	INSGroupPosLLA          INSGroup = 0x0002
	INSGroupPosECEF         INSGroup = 0x0004
	INSGroupVelBody         INSGroup = 0x0008
	INSGroupVelNED          INSGroup = 0x0010
	INSGroupVelECEF         INSGroup = 0x0020
	INSGroupMagECEF         INSGroup = 0x0040
	INSGroupAccelECEF       INSGroup = 0x0080
	INSGroupLinearAccelECEF INSGroup = 0x0100
	INSGroupPosU            INSGroup = 0x0200
	INSGroupVelU            INSGroup = 0x0400
)

// BinaryOutputRegister selects which groups the device streams on its own and
// at which divisor of the internal IMU rate.
type BinaryOutputRegister struct {
	AsyncMode   AsyncMode     `json:"async_mode"`
	RateDivisor uint16        `json:"rate_divisor"`
	Common      CommonGroup   `json:"common"`
	Time        TimeGroup     `json:"time"`
	IMU         IMUGroup      `json:"imu"`
	GPS         GPSGroup      `json:"gps"`
	Attitude    AttitudeGroup `json:"attitude"`
	INS         INSGroup      `json:"ins"`
	GPS2        GPSGroup      `json:"gps2"`
}

func (r BinaryOutputRegister) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mode=%d divisor=%d", r.AsyncMode, r.RateDivisor)
	fmt.Fprintf(&b, " common=0x%04X time=0x%04X imu=0x%04X gps=0x%04X", r.Common, r.Time, r.IMU, r.GPS)
	fmt.Fprintf(&b, " attitude=0x%04X ins=0x%04X gps2=0x%04X", r.Attitude, r.INS, r.GPS2)
	return b.String()
}

// RateDivisor returns how many internal IMU samples elapse between two
// asynchronous output packets.
func RateDivisor(fixedIMURate, outputRate int) (uint16, error) {
	if fixedIMURate <= 0 {
		return 0, fmt.Errorf("fixed imu rate must be > 0 (got %d)", fixedIMURate)
	}
	if outputRate <= 0 {
		return 0, fmt.Errorf("output rate must be > 0 (got %d)", outputRate)
	}
	if outputRate > fixedIMURate {
		return 0, fmt.Errorf("output rate %d Hz exceeds imu rate %d Hz", outputRate, fixedIMURate)
	}
	d := fixedIMURate / outputRate
	if d > 0xFFFF {
		return 0, fmt.Errorf("rate divisor %d out of range", d)
	}
	return uint16(d), nil
}

// NodeDescriptor is the binary output configuration the node streams with.
// Groups not listed here never show up in a CompositeData.
func NodeDescriptor(divisor uint16) BinaryOutputRegister {
	return BinaryOutputRegister{
		AsyncMode:   AsyncModePort1,
		RateDivisor: divisor,
		Common: CommonGroupQuaternion |
			CommonGroupAngularRate |
			CommonGroupPosition |
			CommonGroupAccel |
			CommonGroupMagPres,
		Time:     TimeGroupNone,
		IMU:      IMUGroupNone,
		GPS:      GPSGroupNone,
		Attitude: AttitudeGroupYPRU,
		INS: INSGroupInsStatus |
			INSGroupPosLLA |
			INSGroupPosECEF |
			INSGroupVelBody |
			INSGroupAccelECEF,
		GPS2: GPSGroupNone,
	}
}
