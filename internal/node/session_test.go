package node

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"

	"vectornav-ng/internal/bus"
	"vectornav-ng/internal/logging"
	"vectornav-ng/internal/msgs"
	"vectornav-ng/internal/vn"
)

type capturePublisher struct {
	mu   sync.Mutex
	msgs []bus.Message
}

func (c *capturePublisher) Publish(topic string, msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, bus.Message{Topic: topic, Msg: msg})
	return nil
}

func (c *capturePublisher) onTopic(topic string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []any
	for _, m := range c.msgs {
		if m.Topic == topic {
			out = append(out, m.Msg)
		}
	}
	return out
}

func testConfig() Config {
	return Config{
		Port:         "/dev/ttyUSB0",
		Baud:         115200,
		FrameID:      "vectornav",
		TopicPrefix:  "vectornav",
		OutputRate:   40,
		FixedIMURate: 800,
		QueueSize:    8,
	}
}

// waitFor polls cond for up to a second.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSession_StartConfiguresAndRelays(t *testing.T) {
	sensor := newFakeSensor(9600)
	sensor.frames["f1"] = fullFrame()
	pub := &capturePublisher{}
	s := NewSession(testConfig(), sensor, pub)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := s.Snapshot()
	if snap.State != StateConnected || snap.Baud != 115200 {
		t.Fatalf("snapshot state=%s baud=%d", snap.State, snap.Baud)
	}
	if snap.Device == nil || snap.Device.Divisor != 20 || snap.Device.Family != vn.FamilyVN200 {
		t.Fatalf("device=%+v", snap.Device)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	if !sensor.emit("f1") {
		t.Fatalf("handler not registered")
	}
	waitFor(t, "odometry", func() bool { return len(pub.onTopic("vectornav/Odom")) == 1 })
	if len(pub.onTopic("vectornav/IMU")) != 1 || len(pub.onTopic("vectornav/GPS")) != 1 {
		t.Fatalf("published=%v", s.Snapshot().Published)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSession_ResetOdomRelatches(t *testing.T) {
	sensor := newFakeSensor(115200)
	first := fullFrame()
	second := fullFrame()
	second.PositionECEF = &r3.Vector{X: first.PositionECEF.X + 10, Y: first.PositionECEF.Y, Z: first.PositionECEF.Z}
	sensor.frames["first"] = first
	sensor.frames["second"] = second
	pub := &capturePublisher{}
	s := NewSession(testConfig(), sensor, pub)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	sensor.emit("first")
	sensor.emit("second")
	waitFor(t, "two odometry messages", func() bool { return len(pub.onTopic("vectornav/Odom")) == 2 })
	if got := pub.onTopic("vectornav/Odom")[1].(msgs.Odometry).Pose.Pose.Position.X; got != 10 {
		t.Fatalf("relative x=%v want 10", got)
	}

	if err := s.ResetOdom(); err != nil {
		t.Fatalf("ResetOdom: %v", err)
	}
	if s.Snapshot().OriginSet {
		t.Fatalf("origin still set after reset")
	}
	sensor.emit("second")
	waitFor(t, "third odometry message", func() bool { return len(pub.onTopic("vectornav/Odom")) == 3 })
	if got := pub.onTopic("vectornav/Odom")[2].(msgs.Odometry).Pose.Pose.Position; got != (msgs.Point{}) {
		t.Fatalf("position after reset=%+v want zero", got)
	}
}

func TestSession_UnreachableDegrades(t *testing.T) {
	sensor := newFakeSensor(115200)
	sensor.unreachable = true
	log, logs := logging.NewObserved()
	s := NewSession(testConfig(), sensor, nil, WithLogger(log))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := s.Snapshot()
	if snap.State != StateDegraded {
		t.Fatalf("state=%s want degraded", snap.State)
	}
	if snap.Negotiation == nil || snap.Negotiation.Attempts != 9 || snap.Negotiation.Outcome != OutcomeExhausted {
		t.Fatalf("negotiation=%+v", snap.Negotiation)
	}
	if snap.LastError == "" {
		t.Fatalf("expected last error")
	}
	if logs.FilterMessage("Please input a valid baud rate. Valid are:").Len() != 1 {
		t.Fatalf("missing baud rate warning")
	}
	if err := s.ResetOdom(); err != nil {
		t.Fatalf("ResetOdom while degraded: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, c := range sensor.Calls() {
		if c == "unregister" {
			t.Fatalf("unregistered a handler that was never registered")
		}
	}
}

func TestSession_AbortOnConnectFailure(t *testing.T) {
	sensor := newFakeSensor(115200)
	sensor.unreachable = true
	cfg := testConfig()
	cfg.AbortOnConnectFailure = true
	s := NewSession(cfg, sensor, nil)
	err := s.Start(context.Background())
	if !errors.Is(err, ErrNoBaudRate) {
		t.Fatalf("err=%v want ErrNoBaudRate", err)
	}
	if s.Snapshot().State != StateFailed {
		t.Fatalf("state=%s want failed", s.Snapshot().State)
	}
}

func TestSession_VerifyFailure(t *testing.T) {
	sensor := newFakeSensor(115200)
	sensor.noVerify = true
	cfg := testConfig()
	cfg.AbortOnConnectFailure = true
	s := NewSession(cfg, sensor, nil)
	if err := s.Start(context.Background()); !errors.Is(err, ErrNoDeviceCommunication) {
		t.Fatalf("err=%v want ErrNoDeviceCommunication", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	calls := sensor.Calls()
	if calls[len(calls)-1] != "disconnect" {
		t.Fatalf("last call=%q want disconnect", calls[len(calls)-1])
	}
}

func TestSession_FatalNegotiationIgnoresPolicy(t *testing.T) {
	sensor := newFakeSensor(115200)
	sensor.fatal = errors.New("permission denied")
	s := NewSession(testConfig(), sensor, nil)
	if err := s.Start(context.Background()); !errors.Is(err, ErrFatalNegotiation) {
		t.Fatalf("err=%v want ErrFatalNegotiation", err)
	}
}

func TestSession_DecodeErrorPolicy(t *testing.T) {
	t.Run("drop", func(t *testing.T) {
		sensor := newFakeSensor(115200)
		sensor.frames["ok"] = vn.CompositeData{Temperature: ptr(20.0)}
		pub := &capturePublisher{}
		s := NewSession(testConfig(), sensor, pub)
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = s.Run(ctx) }()

		sensor.emit("garbage")
		sensor.emit("ok")
		waitFor(t, "temperature", func() bool { return len(pub.onTopic("vectornav/Temp")) == 1 })
		if got := s.Snapshot().DecodeErrors; got != 1 {
			t.Fatalf("decode errors=%d want 1", got)
		}
	})

	t.Run("abort", func(t *testing.T) {
		sensor := newFakeSensor(115200)
		cfg := testConfig()
		cfg.AbortOnDecodeError = true
		s := NewSession(cfg, sensor, nil)
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		done := make(chan error, 1)
		go func() { done <- s.Run(context.Background()) }()
		sensor.emit("garbage")
		select {
		case err := <-done:
			if !errors.Is(err, vn.ErrDecode) {
				t.Fatalf("Run err=%v want ErrDecode", err)
			}
		case <-time.After(time.Second):
			t.Fatalf("Run did not stop on decode error")
		}
	})
}

func TestSession_CloseUnregistersBeforeDisconnect(t *testing.T) {
	sensor := newFakeSensor(115200)
	cfg := testConfig()
	cfg.ShutdownDrain = time.Millisecond
	s := NewSession(cfg, sensor, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	calls := sensor.Calls()
	n := len(calls)
	if n < 2 || calls[n-2] != "unregister" || calls[n-1] != "disconnect" {
		t.Fatalf("calls=%v want unregister then disconnect", calls)
	}
	if s.Snapshot().State != StateClosed {
		t.Fatalf("state=%s want closed", s.Snapshot().State)
	}
}
