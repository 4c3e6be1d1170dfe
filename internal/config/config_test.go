package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "node: {}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Node.FrameID != "vectornav" {
		t.Fatalf("frame_id=%q", cfg.Node.FrameID)
	}
	if cfg.Node.AsyncOutputRate != 40 || cfg.Node.FixedIMURate != 800 {
		t.Fatalf("rates=%d/%d want 40/800", cfg.Node.AsyncOutputRate, cfg.Node.FixedIMURate)
	}
	if cfg.Serial.Port != "/dev/ttyUSB0" || cfg.Serial.Baud != 115200 {
		t.Fatalf("serial=%s@%d", cfg.Serial.Port, cfg.Serial.Baud)
	}
	if cfg.Serial.ResponseTimeout != time.Second || cfg.Serial.RetransmitDelay != 50*time.Millisecond {
		t.Fatalf("timeouts=%s/%s", cfg.Serial.ResponseTimeout, cfg.Serial.RetransmitDelay)
	}
	if cfg.Serial.OnConnectFail != PolicyDegrade {
		t.Fatalf("on_connect_failure=%q", cfg.Serial.OnConnectFail)
	}
	if cfg.Relay.QueueSize != 64 || cfg.Relay.Backpressure != BackpressureDropOldest || cfg.Relay.OnDecodeError != DecodeDrop {
		t.Fatalf("relay=%+v", cfg.Relay)
	}
	if cfg.Relay.ShutdownDrain != 500*time.Millisecond {
		t.Fatalf("shutdown_drain=%s", cfg.Relay.ShutdownDrain)
	}
	if cfg.Web.Listen != ":8080" || cfg.Log.Level != "info" || cfg.Device.Driver != "sim" {
		t.Fatalf("web=%q log=%q driver=%q", cfg.Web.Listen, cfg.Log.Level, cfg.Device.Driver)
	}
	// Simulator defaults should be populated even if device is absent.
	if cfg.Device.Sim.Model == "" || cfg.Device.Sim.Baud != 115200 || cfg.Device.Sim.Period <= 0 {
		t.Fatalf("expected sim defaults applied: %+v", cfg.Device.Sim)
	}
	if got := Matrix(cfg.Covariance.Orientation); got != [9]float64{} {
		t.Fatalf("orientation covariance=%v want zeros", got)
	}
}

func TestLoad_Covariance(t *testing.T) {
	path := writeTempConfig(t, `
covariance:
  linear_accel: [0.01, 0, 0, 0, 0.01, 0, 0, 0, 0.01]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	m := Matrix(cfg.Covariance.LinearAccel)
	if m[0] != 0.01 || m[4] != 0.01 || m[8] != 0.01 || m[1] != 0 {
		t.Fatalf("matrix=%v", m)
	}
}

func TestLoad_CovarianceWrongLength(t *testing.T) {
	path := writeTempConfig(t, "covariance:\n  orientation: [1, 2, 3]\n")
	_, err := Load(path)
	requireErrEq(t, err, "covariance.orientation must have exactly 9 elements (got 3)")
}

func TestLoad_CovarianceWrongType(t *testing.T) {
	path := writeTempConfig(t, "covariance:\n  angular_vel: [a, b, c, d, e, f, g, h, i]\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error for non-numeric covariance")
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unsupported baud",
			yaml: "serial:\n  baud: 12345\n",
			want: "serial.baud must be one of [9600 19200 38400 57600 115200 128000 230400 460800 921600]",
		},
		{
			name: "output above imu rate",
			yaml: "node:\n  async_output_rate: 1000\n",
			want: "node.async_output_rate: output rate 1000 Hz exceeds imu rate 800 Hz",
		},
		{
			name: "negative rate",
			yaml: "node:\n  async_output_rate: -1\n",
			want: "node.async_output_rate must be > 0",
		},
		{
			name: "connect policy",
			yaml: "serial:\n  on_connect_failure: retry\n",
			want: `serial.on_connect_failure must be "degrade" or "abort"`,
		},
		{
			name: "backpressure",
			yaml: "relay:\n  backpressure: lossless\n",
			want: `relay.backpressure must be "drop-oldest" or "block"`,
		},
		{
			name: "decode policy",
			yaml: "relay:\n  on_decode_error: ignore\n",
			want: `relay.on_decode_error must be "drop" or "abort"`,
		},
		{
			name: "reset line",
			yaml: "serial:\n  reset_gpio:\n    enable: true\n",
			want: "serial.reset_gpio.line is required when serial.reset_gpio.enable is true",
		},
		{
			name: "log level",
			yaml: "log:\n  level: chatty\n",
			want: "log.level must be one of debug, info, warn, error",
		},
		{
			name: "driver",
			yaml: "device:\n  driver: vnproglib\n",
			want: `device.driver "vnproglib" is not available in this build (supported: sim)`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.yaml))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_PoliciesNormalized(t *testing.T) {
	path := writeTempConfig(t, `
serial:
  on_connect_failure: " Abort "
relay:
  backpressure: BLOCK
  block_timeout: 20ms
  on_decode_error: Abort
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Serial.OnConnectFail != PolicyAbort {
		t.Fatalf("on_connect_failure=%q", cfg.Serial.OnConnectFail)
	}
	if cfg.Relay.Backpressure != BackpressureBlock || cfg.Relay.BlockTimeout != 20*time.Millisecond {
		t.Fatalf("relay=%+v", cfg.Relay)
	}
	if cfg.Relay.OnDecodeError != DecodeAbort {
		t.Fatalf("on_decode_error=%q", cfg.Relay.OnDecodeError)
	}
}

func TestDefaultAndValidate_Idempotent(t *testing.T) {
	var cfg Config
	if err := DefaultAndValidate(&cfg); err != nil {
		t.Fatalf("first: %v", err)
	}
	first := cfg
	if err := DefaultAndValidate(&cfg); err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Serial != cfg.Serial || first.Relay != cfg.Relay || first.Node != cfg.Node {
		t.Fatalf("defaults changed on second pass")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "vectornav.yaml"))
	if err != nil {
		t.Fatalf("Load(vectornav.yaml) error: %v", err)
	}
	if cfg.Serial.ResponseTimeout != time.Second || cfg.Relay.ShutdownDrain != 500*time.Millisecond {
		t.Fatalf("durations: response_timeout=%s shutdown_drain=%s", cfg.Serial.ResponseTimeout, cfg.Relay.ShutdownDrain)
	}
	if got := Matrix(cfg.Covariance.Orientation)[4]; got != 0.0001 {
		t.Fatalf("orientation[4]=%v", got)
	}
	if cfg.Device.Sim.AltMeters != 250 {
		t.Fatalf("sim alt=%v", cfg.Device.Sim.AltMeters)
	}
}
