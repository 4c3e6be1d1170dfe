package main

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vectornav-ng/internal/bus"
	"vectornav-ng/internal/config"
	"vectornav-ng/internal/enu"
	"vectornav-ng/internal/node"
	"vectornav-ng/internal/resetline"
	"vectornav-ng/internal/serialport"
	"vectornav-ng/internal/sim"
	"vectornav-ng/internal/udp"
	"vectornav-ng/internal/vn"
	"vectornav-ng/internal/web"
)

// liveRuntime owns every long-lived component of the process.
type liveRuntime struct {
	cfg    config.Config
	log    *zap.SugaredLogger
	clk    clock.Clock
	status *web.Status
	logs   *web.LogBuffer
	broker *bus.Broker
	sender *udp.Broadcaster
	sensor *sim.Sensor

	session *node.Session

	// serve runs the HTTP API; replaced in tests.
	serve func(ctx context.Context, addr string, d web.Deps) error
}

type runtimeOption func(*liveRuntime)

func withServe(fn func(ctx context.Context, addr string, d web.Deps) error) runtimeOption {
	return func(r *liveRuntime) { r.serve = fn }
}

func newRuntime(cfg config.Config, log *zap.SugaredLogger, logs *web.LogBuffer, opts ...runtimeOption) (*liveRuntime, error) {
	c := cfg
	if err := config.DefaultAndValidate(&c); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := &liveRuntime{
		cfg:    c,
		log:    log,
		status: web.NewStatus(),
		logs:   logs,
		broker: bus.NewBroker(),
		serve:  web.Serve,
	}
	for _, o := range opts {
		o(r)
	}
	if r.clk == nil {
		r.clk = clock.New()
	}

	port, err := serialport.Resolve(c.Serial.Port)
	if err != nil {
		return nil, err
	}
	c.Serial.Port = port
	r.cfg.Serial.Port = port

	pub := bus.Multi{r.broker}
	if c.Bus.UDPDest != "" {
		b, err := udp.NewBroadcaster(c.Bus.UDPDest)
		if err != nil {
			return nil, fmt.Errorf("udp sink init failed: %w", err)
		}
		r.sender = b
		pub = append(pub, bus.NewUDPSink(b))
	}

	r.sensor = sim.New(simConfig(c), sim.WithClock(r.clk), sim.WithLogger(log.Named("sim")))
	r.session = node.NewSession(sessionConfig(c), r.sensor, pub,
		node.WithClock(r.clk), node.WithLogger(log.Named("node")))

	r.status.SetStatic(staticInfo(c))
	r.status.SetSession(r.session)
	r.status.SetBus(r.broker)
	return r, nil
}

func sessionConfig(c config.Config) node.Config {
	bp := node.DropOldest
	if c.Relay.Backpressure == config.BackpressureBlock {
		bp = node.Block
	}
	return node.Config{
		Port:                  c.Serial.Port,
		Baud:                  c.Serial.Baud,
		ResponseTimeout:       c.Serial.ResponseTimeout,
		RetransmitDelay:       c.Serial.RetransmitDelay,
		SettleDelay:           c.Serial.SettleDelay,
		AbortOnConnectFailure: c.Serial.OnConnectFail == config.PolicyAbort,
		FrameID:               c.Node.FrameID,
		TopicPrefix:           c.Node.TopicPrefix,
		ENU:                   enu.Transformer{Enabled: c.Node.TFNEDToENU, FrameBased: c.Node.FrameBasedENU},
		OutputRate:            c.Node.AsyncOutputRate,
		FixedIMURate:          c.Node.FixedIMURate,
		Covariances: node.Covariances{
			LinearAccel: config.Matrix(c.Covariance.LinearAccel),
			AngularVel:  config.Matrix(c.Covariance.AngularVel),
			Orientation: config.Matrix(c.Covariance.Orientation),
		},
		QueueSize:          c.Relay.QueueSize,
		Backpressure:       bp,
		BlockTimeout:       c.Relay.BlockTimeout,
		AbortOnDecodeError: c.Relay.OnDecodeError == config.DecodeAbort,
		ShutdownDrain:      c.Relay.ShutdownDrain,
	}
}

func simConfig(c config.Config) sim.Config {
	s := c.Device.Sim
	return sim.Config{
		Model:        s.Model,
		Firmware:     s.Firmware,
		HardwareRev:  s.HardwareRev,
		SerialNumber: s.SerialNumber,
		Baud:         s.Baud,
		Unreachable:  s.Unreachable,
		FixedIMURate: c.Node.FixedIMURate,
		Trajectory: sim.Trajectory{
			CenterLatDeg: s.CenterLatDeg,
			CenterLonDeg: s.CenterLonDeg,
			AltMeters:    s.AltMeters,
			RadiusMeters: s.RadiusMeters,
			Period:       s.Period,
		},
		CorruptEvery: s.CorruptEvery,
		TemperatureC: s.TemperatureC,
		PressureKPa:  s.PressureKPa,
	}
}

func staticInfo(c config.Config) map[string]any {
	return map[string]any{
		"port":              c.Serial.Port,
		"baud":              c.Serial.Baud,
		"driver":            c.Device.Driver,
		"frame_id":          c.Node.FrameID,
		"topic_prefix":      c.Node.TopicPrefix,
		"tf_ned_to_enu":     c.Node.TFNEDToENU,
		"frame_based_enu":   c.Node.FrameBasedENU,
		"async_output_rate": c.Node.AsyncOutputRate,
		"fixed_imu_rate":    c.Node.FixedIMURate,
		"on_connect_fail":   c.Serial.OnConnectFail,
		"backpressure":      c.Relay.Backpressure,
		"on_decode_error":   c.Relay.OnDecodeError,
		"udp_dest":          c.Bus.UDPDest,
		"supported_bauds":   vn.SupportedBaudRates,
	}
}

// preflight checks the port and pulses the reset line. Only the reset
// pulse can fail startup; a port that does not look like a TTY is logged.
func (r *liveRuntime) preflight(ctx context.Context) error {
	info, err := serialport.Probe(r.cfg.Serial.Port)
	switch {
	case err != nil:
		r.log.Warnw("serial preflight failed", "port", r.cfg.Serial.Port, "error", err)
	case !info.IsTTY:
		r.log.Warnw("serial port is not a tty", "port", info.Path)
	default:
		r.log.Debugw("serial preflight", "port", info.Path, "baud", info.Baud)
	}

	g := r.cfg.Serial.ResetGPIO
	if !g.Enable {
		return nil
	}
	r.log.Infow("pulsing sensor reset line", "chip", g.Chip, "line", g.Line, "pulse", g.Pulse)
	err = resetline.Pulse(ctx, resetline.Config{Chip: g.Chip, Line: g.Line, Pulse: g.Pulse, Settle: g.Settle}, r.clk)
	return errors.Wrap(err, "reset sensor")
}

// Run starts the session and then serves until ctx is done or a member of
// the task group fails.
func (r *liveRuntime) Run(ctx context.Context) error {
	if err := r.preflight(ctx); err != nil {
		return err
	}
	if err := r.session.Start(ctx); err != nil {
		return errors.Wrap(err, "start session")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.session.Run(gctx)
	})
	g.Go(func() error {
		r.log.Infow("web listening", "addr", r.cfg.Web.Listen)
		return r.serve(gctx, r.cfg.Web.Listen, web.Deps{
			Status: r.status,
			Reset:  r.session,
			Broker: r.broker,
			Logs:   r.logs,
			Logger: r.log.Named("web"),
		})
	})
	return g.Wait()
}

// Close shuts the session down, then the simulator and the UDP sink.
func (r *liveRuntime) Close() error {
	if r == nil {
		return nil
	}
	err := r.session.Close()
	err = multierr.Append(err, r.sensor.Close())
	if r.sender != nil {
		err = multierr.Append(err, r.sender.Close())
	}
	return err
}
