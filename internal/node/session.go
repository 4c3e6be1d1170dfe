// Package node drives one VectorNav sensor: it negotiates the link,
// configures binary output, relays decoded frames to the bus and serves the
// odometry reset.
package node

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"vectornav-ng/internal/bus"
	"vectornav-ng/internal/enu"
	"vectornav-ng/internal/vn"
)

// ErrNoBaudRate means every candidate baud rate failed.
var ErrNoBaudRate = stderrors.New("node: no candidate baud rate reached the device")

// Config is the session's view of the node configuration.
type Config struct {
	Port            string
	Baud            int
	ResponseTimeout time.Duration
	RetransmitDelay time.Duration
	SettleDelay     time.Duration
	// AbortOnConnectFailure makes Start fail when the link cannot be
	// established or configured. Otherwise the session keeps running
	// without a device.
	AbortOnConnectFailure bool

	FrameID      string
	TopicPrefix  string
	ENU          enu.Transformer
	OutputRate   int
	FixedIMURate int
	Covariances  Covariances

	QueueSize    int
	Backpressure Backpressure
	BlockTimeout time.Duration
	// AbortOnDecodeError stops the relay on the first undecodable frame
	// instead of dropping it.
	AbortOnDecodeError bool
	// ShutdownDrain is waited after unregistering the handler and again
	// after disconnecting.
	ShutdownDrain time.Duration
}

type State string

const (
	StateIdle        State = "idle"
	StateNegotiating State = "negotiating"
	StateConnected   State = "connected"
	StateDegraded    State = "degraded"
	StateFailed      State = "failed"
	StateClosed      State = "closed"
)

type Snapshot struct {
	SessionID string `json:"session_id"`
	State     State  `json:"state"`
	Port      string `json:"port"`
	Baud      int    `json:"baud"`

	Negotiation *NegotiationResult `json:"negotiation,omitempty"`
	Device      *DeviceInfo        `json:"device,omitempty"`

	FramesReceived uint64            `json:"frames_received"`
	FramesDropped  uint64            `json:"frames_dropped"`
	DecodeErrors   uint64            `json:"decode_errors"`
	PublishErrors  uint64            `json:"publish_errors"`
	Published      map[string]uint64 `json:"published"`

	OriginSet bool       `json:"origin_set"`
	Origin    [3]float64 `json:"origin_ecef"`

	LastFrameUTC string `json:"last_frame_utc,omitempty"`
	LastError    string `json:"last_error,omitempty"`
}

type Option func(*Session)

func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clk = c }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Session) { s.log = l }
}

// Session owns the sensor handle and everything derived from it.
type Session struct {
	cfg    Config
	id     string
	sensor vn.Sensor
	pub    bus.Publisher
	clk    clock.Clock
	log    *zap.SugaredLogger

	queue *FrameQueue
	latch Latch
	relay relay

	mu          sync.Mutex
	state       State
	linked      bool
	registered  bool
	negotiation *NegotiationResult
	device      *DeviceInfo
	decodeErrs  uint64
	publishErrs uint64
	published   map[string]uint64
	lastFrame   time.Time
	lastErr     string

	closeOnce sync.Once
	closeErr  error
}

func NewSession(cfg Config, sensor vn.Sensor, pub bus.Publisher, opts ...Option) *Session {
	s := &Session{
		cfg:       cfg,
		id:        uuid.NewString(),
		sensor:    sensor,
		pub:       pub,
		state:     StateIdle,
		published: make(map[string]uint64),
	}
	for _, o := range opts {
		o(s)
	}
	if s.clk == nil {
		s.clk = clock.New()
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	s.log = s.log.With("session", s.id)
	if s.pub == nil {
		s.pub = bus.Multi(nil)
	}
	s.queue = NewFrameQueue(cfg.QueueSize, cfg.Backpressure, cfg.BlockTimeout, s.clk)
	s.relay = relay{
		prefix:  cfg.TopicPrefix,
		frameID: cfg.FrameID,
		tf:      cfg.ENU,
		cov:     cfg.Covariances,
		latch:   &s.latch,
	}
	return s
}

func (s *Session) ID() string { return s.id }

// Start negotiates the link, verifies it and configures the device. With
// AbortOnConnectFailure unset, link problems leave the session degraded and
// Start returns nil; a fatal negotiation error is always returned.
func (s *Session) Start(ctx context.Context) error {
	if s == nil {
		return errors.New("node session is nil")
	}
	if s.sensor == nil {
		return errors.New("node: sensor is nil")
	}
	s.setState(StateNegotiating)
	s.log.Infof("Connecting to : %s @ %d Baud", s.cfg.Port, s.cfg.Baud)

	res, err := Negotiate(ctx, s.sensor, NegotiateOptions{
		Port:            s.cfg.Port,
		Target:          s.cfg.Baud,
		ResponseTimeout: s.cfg.ResponseTimeout,
		RetransmitDelay: s.cfg.RetransmitDelay,
		SettleDelay:     s.cfg.SettleDelay,
		Clock:           s.clk,
		Logger:          s.log,
	})
	s.mu.Lock()
	s.negotiation = &res
	s.linked = res.Outcome == OutcomeConnected
	s.mu.Unlock()
	if err != nil {
		s.setError(err)
		s.setState(StateFailed)
		return err
	}

	if res.Outcome != OutcomeConnected {
		s.warnBaudRates()
		cause := ErrNoBaudRate
		if res.LastErr != nil {
			return s.degrade(errors.Wrapf(cause, "%s after %d attempts: %v", s.cfg.Port, res.Attempts, res.LastErr))
		}
		return s.degrade(errors.Wrapf(cause, "%s after %d attempts", s.cfg.Port, res.Attempts))
	}

	if !s.sensor.VerifySensorConnectivity(ctx) {
		s.log.Error("No device communication")
		s.warnBaudRates()
		return s.degrade(errors.Wrap(ErrNoDeviceCommunication, s.cfg.Port))
	}
	s.log.Info("Device connection established")

	info, err := Configure(ctx, s.sensor, ConfigureOptions{
		OutputRate:   s.cfg.OutputRate,
		FixedIMURate: s.cfg.FixedIMURate,
		Handler:      s.onPacket,
		Logger:       s.log,
	})
	s.mu.Lock()
	s.device = &info
	s.mu.Unlock()
	if err != nil {
		return s.degrade(errors.Wrap(err, "configure device"))
	}
	s.relay.ins.Store(info.Family.HasINS())

	s.mu.Lock()
	s.registered = true
	s.mu.Unlock()
	s.setState(StateConnected)
	return nil
}

func (s *Session) warnBaudRates() {
	rates := make([]string, 0, len(vn.SupportedBaudRates))
	for _, b := range vn.SupportedBaudRates {
		rates = append(rates, strconv.Itoa(b))
	}
	s.log.Warn("Please input a valid baud rate. Valid are:")
	s.log.Warn(strings.Join(rates, ", "))
	s.log.Warnf("%d is never used for a connection; all other rates are tried in order.", vn.IncompatibleBaudRate)
}

func (s *Session) degrade(err error) error {
	s.setError(err)
	if s.cfg.AbortOnConnectFailure {
		s.setState(StateFailed)
		return err
	}
	s.log.Warnw("continuing without a device link", "error", err)
	s.setState(StateDegraded)
	return nil
}

// onPacket runs on the sensor's reception goroutine.
func (s *Session) onPacket(p vn.Packet) {
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = s.clk.Now()
	}
	s.queue.Push(p)
}

// Run relays queued frames until ctx is done. It returns an error only when
// AbortOnDecodeError is set and a frame fails to decode.
func (s *Session) Run(ctx context.Context) error {
	if s == nil {
		return errors.New("node session is nil")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-s.queue.C():
			if err := s.process(p); err != nil {
				return err
			}
		}
	}
}

func (s *Session) process(p vn.Packet) error {
	cd, err := s.sensor.Parse(p)
	if err != nil {
		s.mu.Lock()
		s.decodeErrs++
		s.mu.Unlock()
		if s.cfg.AbortOnDecodeError {
			err = errors.Wrap(err, "decode frame")
			s.setError(err)
			return err
		}
		s.log.Debugw("dropping undecodable frame", "bytes", len(p.Data), "error", err)
		return nil
	}

	for _, o := range s.relay.build(cd, p.ReceivedAt) {
		err := s.pub.Publish(o.topic, o.msg)
		s.mu.Lock()
		if err != nil {
			s.publishErrs++
		} else {
			s.published[o.topic]++
		}
		s.mu.Unlock()
		if err != nil {
			s.log.Debugw("publish failed", "topic", o.topic, "error", err)
		}
	}
	s.mu.Lock()
	s.lastFrame = p.ReceivedAt
	s.mu.Unlock()
	return nil
}

// ResetOdom clears the odometry origin. It never touches the device and
// always succeeds.
func (s *Session) ResetOdom() error {
	if s == nil {
		return nil
	}
	s.latch.Reset()
	s.log.Info("odometry origin reset")
	return nil
}

// Close unregisters the packet handler and disconnects, waiting
// ShutdownDrain after each step. It is idempotent.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.mu.Lock()
		registered, linked := s.registered, s.linked
		s.registered, s.linked = false, false
		model := ""
		if s.device != nil {
			model = s.device.Model
		}
		s.mu.Unlock()

		var err error
		if registered {
			err = multierr.Append(err, errors.Wrap(s.sensor.UnregisterAsyncPacketHandler(), "unregister packet handler"))
			s.drain()
			s.log.Info("Unregistered the packet received handler")
		}
		if linked {
			err = multierr.Append(err, errors.Wrap(s.sensor.Disconnect(), "disconnect"))
			s.drain()
			if model == "" {
				model = s.cfg.Port
			}
			s.log.Infof("%s is disconnected successfully", model)
		}
		s.closeErr = err
		s.setState(StateClosed)
	})
	return s.closeErr
}

func (s *Session) drain() {
	if s.cfg.ShutdownDrain > 0 {
		s.clk.Sleep(s.cfg.ShutdownDrain)
	}
}

func (s *Session) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.Lock()
	snap := Snapshot{
		SessionID:     s.id,
		State:         s.state,
		Port:          s.cfg.Port,
		DecodeErrors:  s.decodeErrs,
		PublishErrors: s.publishErrs,
		Published:     make(map[string]uint64, len(s.published)),
		LastError:     s.lastErr,
	}
	for k, v := range s.published {
		snap.Published[k] = v
	}
	if s.negotiation != nil {
		n := *s.negotiation
		snap.Negotiation = &n
	}
	if s.device != nil {
		d := *s.device
		snap.Device = &d
	}
	if !s.lastFrame.IsZero() {
		snap.LastFrameUTC = s.lastFrame.UTC().Format(time.RFC3339Nano)
	}
	linked := s.linked
	s.mu.Unlock()

	if linked {
		snap.Baud = s.sensor.Baudrate()
	}
	snap.FramesReceived = s.queue.Pushed()
	snap.FramesDropped = s.queue.Dropped()
	o, set := s.latch.Origin()
	snap.OriginSet = set
	snap.Origin = [3]float64{o.X, o.Y, o.Z}
	return snap
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}
