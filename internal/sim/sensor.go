// Package sim provides a simulated VectorNav that implements vn.Sensor.
//
// The device listens at a configured baud rate and only answers when the
// port is opened at that rate. Once a binary output register and a packet
// handler are set it streams frames along a figure-eight trajectory.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"vectornav-ng/internal/vn"
)

type Config struct {
	Model        string
	Firmware     string
	HardwareRev  uint32
	SerialNumber uint32
	// Baud is the rate the device is listening at before negotiation.
	Baud int
	// Unreachable makes every Connect fail, as if the port did not exist.
	Unreachable bool
	// FixedIMURate is the internal sample rate the rate divisor applies to.
	FixedIMURate int
	Trajectory   Trajectory
	// CorruptEvery replaces every Nth frame with garbage. Zero disables it.
	CorruptEvery int
	TemperatureC float64
	PressureKPa  float64
}

type Option func(*Sensor)

func WithClock(c clock.Clock) Option { return func(s *Sensor) { s.clk = c } }

func WithLogger(l *zap.SugaredLogger) Option { return func(s *Sensor) { s.log = l } }

type Sensor struct {
	cfg    Config
	family vn.Family
	clk    clock.Clock
	log    *zap.SugaredLogger

	mu              sync.Mutex
	port            string
	portBaud        int
	deviceBaud      int
	responseTimeout time.Duration
	retransmitDelay time.Duration
	outputHz        int
	reg             *vn.BinaryOutputRegister
	handler         vn.PacketHandler
	seq             uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ vn.Sensor = (*Sensor)(nil)

func New(cfg Config, opts ...Option) *Sensor {
	if cfg.Model == "" {
		cfg.Model = "VN-200T"
	}
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
	if cfg.FixedIMURate <= 0 {
		cfg.FixedIMURate = 800
	}
	s := &Sensor{cfg: cfg, family: vn.FamilyFromModel(cfg.Model), deviceBaud: cfg.Baud}
	for _, o := range opts {
		o(s)
	}
	if s.clk == nil {
		s.clk = clock.New()
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	return s
}

func (s *Sensor) Connect(_ context.Context, port string, baud int) error {
	if !vn.IsSupportedBaudRate(baud) {
		return errors.Wrapf(vn.ErrInvalidBaudRate, "%d", baud)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Unreachable {
		return &vn.CommError{Op: "open", Port: port, Baud: baud, Err: errors.New("no such device")}
	}
	s.port = port
	s.portBaud = baud
	s.log.Debugw("port opened", "port", port, "baud", baud)
	return nil
}

// linkOKLocked reports whether the device understands the open port.
func (s *Sensor) linkOKLocked() bool {
	return s.portBaud != 0 && s.portBaud == s.deviceBaud
}

func (s *Sensor) commErrLocked(op string) error {
	if s.portBaud == 0 {
		return errors.Wrap(vn.ErrNotConnected, op)
	}
	return &vn.CommError{Op: op, Port: s.port, Baud: s.portBaud, Err: vn.ErrTimeout}
}

func (s *Sensor) ChangeBaudRate(_ context.Context, baud int) error {
	if !vn.IsSupportedBaudRate(baud) {
		return errors.Wrapf(vn.ErrInvalidBaudRate, "%d", baud)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.linkOKLocked() {
		return s.commErrLocked("change baud rate")
	}
	s.deviceBaud = baud
	s.portBaud = baud
	return nil
}

func (s *Sensor) Disconnect() error {
	s.stopStream()
	s.mu.Lock()
	s.portBaud = 0
	s.mu.Unlock()
	return nil
}

func (s *Sensor) Baudrate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.portBaud
}

func (s *Sensor) SetResponseTimeout(d time.Duration) {
	s.mu.Lock()
	s.responseTimeout = d
	s.mu.Unlock()
}

func (s *Sensor) SetRetransmitDelay(d time.Duration) {
	s.mu.Lock()
	s.retransmitDelay = d
	s.mu.Unlock()
}

func (s *Sensor) VerifySensorConnectivity(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linkOKLocked()
}

func (s *Sensor) ReadModelNumber(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.linkOKLocked() {
		return "", s.commErrLocked("read model number")
	}
	return s.cfg.Model, nil
}

func (s *Sensor) ReadFirmwareVersion(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.linkOKLocked() {
		return "", s.commErrLocked("read firmware version")
	}
	return s.cfg.Firmware, nil
}

func (s *Sensor) ReadHardwareRevision(context.Context) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.linkOKLocked() {
		return 0, s.commErrLocked("read hardware revision")
	}
	return s.cfg.HardwareRev, nil
}

func (s *Sensor) ReadSerialNumber(context.Context) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.linkOKLocked() {
		return 0, s.commErrLocked("read serial number")
	}
	return s.cfg.SerialNumber, nil
}

func (s *Sensor) WriteAsyncDataOutputFrequency(_ context.Context, hz int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.linkOKLocked() {
		return s.commErrLocked("write async output frequency")
	}
	if hz <= 0 {
		return errors.Errorf("invalid async output frequency %d", hz)
	}
	s.outputHz = hz
	return nil
}

func (s *Sensor) WriteBinaryOutput1(_ context.Context, reg vn.BinaryOutputRegister) error {
	s.mu.Lock()
	if !s.linkOKLocked() {
		err := s.commErrLocked("write binary output 1")
		s.mu.Unlock()
		return err
	}
	r := reg
	s.reg = &r
	restart := s.handler != nil
	s.mu.Unlock()

	if restart {
		s.stopStream()
		s.startStream()
	}
	return nil
}

func (s *Sensor) RegisterAsyncPacketHandler(h vn.PacketHandler) error {
	if h == nil {
		return errors.New("packet handler is nil")
	}
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
	s.stopStream()
	s.startStream()
	return nil
}

func (s *Sensor) UnregisterAsyncPacketHandler() error {
	s.stopStream()
	s.mu.Lock()
	s.handler = nil
	s.mu.Unlock()
	return nil
}

func (s *Sensor) Parse(p vn.Packet) (vn.CompositeData, error) {
	_, cd, err := decodeFrame(p.Data)
	return cd, err
}

// streamPeriodLocked returns the frame interval, or 0 when nothing should
// stream.
func (s *Sensor) streamPeriodLocked() time.Duration {
	if s.reg == nil || s.handler == nil || !s.linkOKLocked() {
		return 0
	}
	if s.reg.AsyncMode == vn.AsyncModeNone {
		return 0
	}
	hz := s.outputHz
	if s.reg.RateDivisor > 0 {
		hz = s.cfg.FixedIMURate / int(s.reg.RateDivisor)
	}
	if hz <= 0 {
		return 0
	}
	return time.Second / time.Duration(hz)
}

func (s *Sensor) startStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	period := s.streamPeriodLocked()
	if period == 0 || s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	ticker := s.clk.Ticker(period)
	s.log.Infow("streaming", "period", period, "register", s.reg.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.emit(ctx)
			}
		}
	}()
}

func (s *Sensor) stopStream() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
}

func (s *Sensor) emit(ctx context.Context) {
	now := s.clk.Now()
	s.mu.Lock()
	h := s.handler
	reg := s.reg
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	if h == nil || reg == nil || ctx.Err() != nil {
		return
	}

	var payload []byte
	if n := s.cfg.CorruptEvery; n > 0 && seq%uint64(n) == 0 {
		payload = []byte{0xFA, 0x01, 0xDE, 0xAD}
	} else {
		b, err := encodeFrame(seq, s.composite(now, *reg))
		if err != nil {
			s.log.Warnw("encode frame", "error", err)
			return
		}
		payload = b
	}
	h(vn.Packet{Data: payload, ReceivedAt: now})
}

// composite fills the groups selected by reg from the trajectory at now.
func (s *Sensor) composite(now time.Time, reg vn.BinaryOutputRegister) vn.CompositeData {
	st := s.cfg.Trajectory.At(now)
	var cd vn.CompositeData

	if reg.Common&vn.CommonGroupQuaternion != 0 {
		q := st.Attitude()
		cd.Quaternion = &q
	}
	if reg.Common&vn.CommonGroupAngularRate != 0 {
		cd.AngularRate = &r3.Vector{Z: st.YawRate}
	}
	if reg.Common&vn.CommonGroupAccel != 0 {
		// Level flight: centripetal load on y and gravity reaction on z.
		cd.Acceleration = &r3.Vector{Y: st.Speed * st.YawRate, Z: -gravity}
	}
	if reg.Common&vn.CommonGroupMagPres != 0 {
		m := st.ToBody(r3.Vector{X: 0.2, Y: 0.01, Z: 0.45})
		temp := s.cfg.TemperatureC + 0.5*math.Sin(st.HeadingRad)
		pres := s.cfg.PressureKPa
		cd.Magnetic = &m
		cd.Temperature = &temp
		cd.Pressure = &pres
	}
	if reg.Attitude&vn.AttitudeGroupYPRU != 0 {
		cd.YawPitchRollUncertainty = &r3.Vector{X: 1.5, Y: 0.5, Z: 0.5}
	}

	if !s.family.HasINS() {
		return cd
	}
	if reg.INS&vn.INSGroupInsStatus != 0 {
		status := vn.InsStatus(vn.InsModeTracking) | 0x0004
		cd.InsStatus = &status
	}
	if reg.INS&vn.INSGroupPosLLA != 0 {
		p := st.LLA
		cd.PositionLLA = &p
	}
	if reg.INS&vn.INSGroupPosECEF != 0 {
		p := st.ECEF
		cd.PositionECEF = &p
	}
	if reg.INS&vn.INSGroupVelBody != 0 {
		v := st.ToBody(st.VelNED)
		cd.VelocityBody = &v
	}
	if reg.INS&vn.INSGroupAccelECEF != 0 {
		a := st.NEDToECEF(st.AccelNED.Add(r3.Vector{Z: -gravity}))
		cd.AccelerationECEF = &a
	}
	return cd
}

// Close stops streaming and releases the port.
func (s *Sensor) Close() error {
	return s.Disconnect()
}
