// Package vn describes the VectorNav sensor collaborator the node drives.
//
// The node never talks to the serial port or decodes binary frames itself.
// Everything device-side goes through Sensor, which a vendor binding (or the
// simulator in internal/sim) implements.
package vn

import (
	"context"
	"time"
)

// Packet is one asynchronous binary frame as delivered by the sensor.
type Packet struct {
	Data       []byte
	ReceivedAt time.Time
}

// PacketHandler is invoked by the sensor once per asynchronous frame.
//
// Calls are serialized and run on the sensor's reception goroutine, so a
// handler must return quickly.
type PacketHandler func(p Packet)

// Sensor is the device collaborator.
type Sensor interface {
	// Connect opens the port at the given baud rate.
	Connect(ctx context.Context, port string, baud int) error
	// ChangeBaudRate commands the device to switch to baud and reopens the
	// port at the new rate.
	ChangeBaudRate(ctx context.Context, baud int) error
	Disconnect() error
	// Baudrate returns the rate the port is currently open at, 0 when closed.
	Baudrate() int

	SetResponseTimeout(d time.Duration)
	SetRetransmitDelay(d time.Duration)

	VerifySensorConnectivity(ctx context.Context) bool

	ReadModelNumber(ctx context.Context) (string, error)
	ReadFirmwareVersion(ctx context.Context) (string, error)
	ReadHardwareRevision(ctx context.Context) (uint32, error)
	ReadSerialNumber(ctx context.Context) (uint32, error)

	WriteAsyncDataOutputFrequency(ctx context.Context, hz int) error
	WriteBinaryOutput1(ctx context.Context, reg BinaryOutputRegister) error

	RegisterAsyncPacketHandler(h PacketHandler) error
	UnregisterAsyncPacketHandler() error

	// Parse decodes one frame into its measurement groups.
	Parse(p Packet) (CompositeData, error)
}
