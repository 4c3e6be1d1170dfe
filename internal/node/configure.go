package node

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"vectornav-ng/internal/vn"
)

type ConfigureOptions struct {
	OutputRate   int
	FixedIMURate int
	// Handler is registered last, once the output registers are written.
	Handler vn.PacketHandler
	Logger  *zap.SugaredLogger
}

// DeviceInfo is what Configure learned about and wrote to the device.
type DeviceInfo struct {
	Model            string                  `json:"model"`
	Firmware         string                  `json:"firmware"`
	HardwareRevision uint32                  `json:"hardware_revision"`
	SerialNumber     uint32                  `json:"serial_number"`
	Family           vn.Family               `json:"family"`
	Divisor          uint16                  `json:"rate_divisor"`
	Descriptor       vn.BinaryOutputRegister `json:"descriptor"`
}

// Configure reads the device identity, programs the asynchronous binary
// output and registers the packet handler.
//
// The output frequency is written both before and after the binary output
// register; some firmware resets it when the register changes.
func Configure(ctx context.Context, s vn.Sensor, opts ConfigureOptions) (DeviceInfo, error) {
	var info DeviceInfo
	if s == nil {
		return info, errors.New("node: sensor is nil")
	}
	if opts.Handler == nil {
		return info, errors.New("node: packet handler is nil")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	divisor, err := vn.RateDivisor(opts.FixedIMURate, opts.OutputRate)
	if err != nil {
		return info, errors.Wrap(err, "rate divisor")
	}

	if info.Model, err = s.ReadModelNumber(ctx); err != nil {
		return info, errors.Wrap(err, "read model number")
	}
	if info.Firmware, err = s.ReadFirmwareVersion(ctx); err != nil {
		return info, errors.Wrap(err, "read firmware version")
	}
	if info.HardwareRevision, err = s.ReadHardwareRevision(ctx); err != nil {
		return info, errors.Wrap(err, "read hardware revision")
	}
	if info.SerialNumber, err = s.ReadSerialNumber(ctx); err != nil {
		return info, errors.Wrap(err, "read serial number")
	}
	log.Infof("Model Number: %s, Firmware Version: %s", info.Model, info.Firmware)
	log.Infof("Hardware Revision : %d, Serial Number : %d", info.HardwareRevision, info.SerialNumber)

	info.Family = vn.FamilyFromModel(info.Model)
	if info.Family == vn.FamilyUnknown {
		log.Warnw("unrecognized model, GPS and odometry disabled", "model", info.Model)
	}

	if err := s.WriteAsyncDataOutputFrequency(ctx, opts.OutputRate); err != nil {
		return info, errors.Wrap(err, "write async output frequency")
	}
	info.Divisor = divisor
	info.Descriptor = vn.NodeDescriptor(divisor)
	if err := s.WriteBinaryOutput1(ctx, info.Descriptor); err != nil {
		return info, errors.Wrap(err, "write binary output 1")
	}
	if err := s.WriteAsyncDataOutputFrequency(ctx, opts.OutputRate); err != nil {
		return info, errors.Wrap(err, "rewrite async output frequency")
	}
	log.Debugw("binary output configured", "register", info.Descriptor.String())

	if err := s.RegisterAsyncPacketHandler(opts.Handler); err != nil {
		return info, errors.Wrap(err, "register packet handler")
	}
	return info, nil
}
