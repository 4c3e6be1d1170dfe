package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"vectornav-ng/internal/vn"
)

type Config struct {
	Node       NodeConfig       `yaml:"node"`
	Serial     SerialConfig     `yaml:"serial"`
	Covariance CovarianceConfig `yaml:"covariance"`
	Relay      RelayConfig      `yaml:"relay"`
	Bus        BusConfig        `yaml:"bus"`
	Web        WebConfig        `yaml:"web"`
	Log        LogConfig        `yaml:"log"`
	Device     DeviceConfig     `yaml:"device"`
}

type NodeConfig struct {
	FrameID         string `yaml:"frame_id"`
	TFNEDToENU      bool   `yaml:"tf_ned_to_enu"`
	FrameBasedENU   bool   `yaml:"frame_based_enu"`
	AsyncOutputRate int    `yaml:"async_output_rate"`
	FixedIMURate    int    `yaml:"fixed_imu_rate"`
	TopicPrefix     string `yaml:"topic_prefix"`
}

// Failure policies for startup and per-frame errors.
const (
	PolicyDegrade = "degrade"
	PolicyAbort   = "abort"

	DecodeDrop  = "drop"
	DecodeAbort = "abort"

	BackpressureDropOldest = "drop-oldest"
	BackpressureBlock      = "block"
)

type SerialConfig struct {
	Port            string          `yaml:"port"`
	Baud            int             `yaml:"baud"`
	ResponseTimeout time.Duration   `yaml:"response_timeout"`
	RetransmitDelay time.Duration   `yaml:"retransmit_delay"`
	SettleDelay     time.Duration   `yaml:"settle_delay"`
	OnConnectFail   string          `yaml:"on_connect_failure"`
	ResetGPIO       ResetGPIOConfig `yaml:"reset_gpio"`
}

type ResetGPIOConfig struct {
	Enable bool          `yaml:"enable"`
	Chip   string        `yaml:"chip"`
	Line   string        `yaml:"line"`
	Pulse  time.Duration `yaml:"pulse"`
	Settle time.Duration `yaml:"settle"`
}

// CovarianceConfig holds row-major 3x3 matrices. An omitted matrix is all
// zeros; a present one must have exactly nine numbers.
type CovarianceConfig struct {
	LinearAccel []float64 `yaml:"linear_accel"`
	AngularVel  []float64 `yaml:"angular_vel"`
	Orientation []float64 `yaml:"orientation"`
}

type RelayConfig struct {
	QueueSize     int           `yaml:"queue_size"`
	Backpressure  string        `yaml:"backpressure"`
	BlockTimeout  time.Duration `yaml:"block_timeout"`
	OnDecodeError string        `yaml:"on_decode_error"`
	ShutdownDrain time.Duration `yaml:"shutdown_drain"`
}

type BusConfig struct {
	// UDPDest is host:port for JSON datagrams. Empty disables UDP output.
	UDPDest string `yaml:"udp_dest"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	BufferLines int    `yaml:"buffer_lines"`
}

type DeviceConfig struct {
	Driver string    `yaml:"driver"`
	Sim    SimConfig `yaml:"sim"`
}

type SimConfig struct {
	Model        string        `yaml:"model"`
	Firmware     string        `yaml:"firmware"`
	HardwareRev  uint32        `yaml:"hardware_rev"`
	SerialNumber uint32        `yaml:"serial_number"`
	Baud         int           `yaml:"baud"`
	Unreachable  bool          `yaml:"unreachable"`
	CenterLatDeg float64       `yaml:"center_lat_deg"`
	CenterLonDeg float64       `yaml:"center_lon_deg"`
	AltMeters    float64       `yaml:"alt_m"`
	RadiusMeters float64       `yaml:"radius_m"`
	Period       time.Duration `yaml:"period"`
	CorruptEvery int           `yaml:"corrupt_every"`
	TemperatureC float64       `yaml:"temperature_c"`
	PressureKPa  float64       `yaml:"pressure_kpa"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills in defaults and rejects inconsistent settings.
// It is safe to call more than once (e.g. after flag overrides).
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	n := &cfg.Node
	if strings.TrimSpace(n.FrameID) == "" {
		n.FrameID = "vectornav"
	}
	if n.AsyncOutputRate == 0 {
		n.AsyncOutputRate = 40
	}
	if n.FixedIMURate == 0 {
		n.FixedIMURate = 800
	}
	if n.TopicPrefix == "" {
		n.TopicPrefix = "vectornav"
	}
	if n.AsyncOutputRate < 0 {
		return fmt.Errorf("node.async_output_rate must be > 0")
	}
	if n.FixedIMURate < 0 {
		return fmt.Errorf("node.fixed_imu_rate must be > 0")
	}
	if _, err := vn.RateDivisor(n.FixedIMURate, n.AsyncOutputRate); err != nil {
		return fmt.Errorf("node.async_output_rate: %v", err)
	}

	s := &cfg.Serial
	if strings.TrimSpace(s.Port) == "" {
		s.Port = "/dev/ttyUSB0"
	}
	if s.Baud == 0 {
		s.Baud = 115200
	}
	if !vn.IsSupportedBaudRate(s.Baud) {
		return fmt.Errorf("serial.baud must be one of %v", vn.SupportedBaudRates)
	}
	if s.ResponseTimeout <= 0 {
		s.ResponseTimeout = 1000 * time.Millisecond
	}
	if s.RetransmitDelay <= 0 {
		s.RetransmitDelay = 50 * time.Millisecond
	}
	if s.SettleDelay < 0 {
		return fmt.Errorf("serial.settle_delay must be >= 0")
	}
	if s.SettleDelay == 0 {
		s.SettleDelay = 200 * time.Millisecond
	}
	s.OnConnectFail = strings.ToLower(strings.TrimSpace(s.OnConnectFail))
	if s.OnConnectFail == "" {
		s.OnConnectFail = PolicyDegrade
	}
	if s.OnConnectFail != PolicyDegrade && s.OnConnectFail != PolicyAbort {
		return fmt.Errorf("serial.on_connect_failure must be %q or %q", PolicyDegrade, PolicyAbort)
	}
	if s.ResetGPIO.Enable {
		if strings.TrimSpace(s.ResetGPIO.Line) == "" {
			return fmt.Errorf("serial.reset_gpio.line is required when serial.reset_gpio.enable is true")
		}
		if s.ResetGPIO.Pulse <= 0 {
			s.ResetGPIO.Pulse = 50 * time.Millisecond
		}
		if s.ResetGPIO.Settle <= 0 {
			s.ResetGPIO.Settle = 1 * time.Second
		}
	}

	if err := checkCovariance("covariance.linear_accel", cfg.Covariance.LinearAccel); err != nil {
		return err
	}
	if err := checkCovariance("covariance.angular_vel", cfg.Covariance.AngularVel); err != nil {
		return err
	}
	if err := checkCovariance("covariance.orientation", cfg.Covariance.Orientation); err != nil {
		return err
	}

	r := &cfg.Relay
	if r.QueueSize < 0 {
		return fmt.Errorf("relay.queue_size must be > 0")
	}
	if r.QueueSize == 0 {
		r.QueueSize = 64
	}
	r.Backpressure = strings.ToLower(strings.TrimSpace(r.Backpressure))
	if r.Backpressure == "" {
		r.Backpressure = BackpressureDropOldest
	}
	if r.Backpressure != BackpressureDropOldest && r.Backpressure != BackpressureBlock {
		return fmt.Errorf("relay.backpressure must be %q or %q", BackpressureDropOldest, BackpressureBlock)
	}
	if r.BlockTimeout <= 0 {
		r.BlockTimeout = 100 * time.Millisecond
	}
	r.OnDecodeError = strings.ToLower(strings.TrimSpace(r.OnDecodeError))
	if r.OnDecodeError == "" {
		r.OnDecodeError = DecodeDrop
	}
	if r.OnDecodeError != DecodeDrop && r.OnDecodeError != DecodeAbort {
		return fmt.Errorf("relay.on_decode_error must be %q or %q", DecodeDrop, DecodeAbort)
	}
	if r.ShutdownDrain < 0 {
		return fmt.Errorf("relay.shutdown_drain must be >= 0")
	}
	if r.ShutdownDrain == 0 {
		r.ShutdownDrain = 500 * time.Millisecond
	}

	if strings.TrimSpace(cfg.Web.Listen) == "" {
		cfg.Web.Listen = ":8080"
	}

	l := &cfg.Log
	l.Level = strings.ToLower(strings.TrimSpace(l.Level))
	if l.Level == "" {
		l.Level = "info"
	}
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	if l.MaxSizeMB <= 0 {
		l.MaxSizeMB = 10
	}
	if l.MaxBackups <= 0 {
		l.MaxBackups = 3
	}
	if l.BufferLines <= 0 {
		l.BufferLines = 2000
	}

	d := &cfg.Device
	d.Driver = strings.ToLower(strings.TrimSpace(d.Driver))
	if d.Driver == "" {
		d.Driver = "sim"
	}
	if d.Driver != "sim" {
		return fmt.Errorf("device.driver %q is not available in this build (supported: sim)", d.Driver)
	}

	// Simulator defaults (safe even if another driver is used later).
	sim := &d.Sim
	if sim.Model == "" {
		sim.Model = "VN-200T"
	}
	if sim.Firmware == "" {
		sim.Firmware = "2.1.0.0"
	}
	if sim.HardwareRev == 0 {
		sim.HardwareRev = 5
	}
	if sim.SerialNumber == 0 {
		sim.SerialNumber = 100000001
	}
	if sim.Baud == 0 {
		sim.Baud = 115200
	}
	if !vn.IsSupportedBaudRate(sim.Baud) {
		return fmt.Errorf("device.sim.baud must be one of %v", vn.SupportedBaudRates)
	}
	if sim.RadiusMeters <= 0 {
		sim.RadiusMeters = 50
	}
	if sim.Period <= 0 {
		sim.Period = 120 * time.Second
	}
	if sim.CorruptEvery < 0 {
		return fmt.Errorf("device.sim.corrupt_every must be >= 0")
	}
	if sim.TemperatureC == 0 {
		sim.TemperatureC = 25
	}
	if sim.PressureKPa == 0 {
		sim.PressureKPa = 101.325
	}

	return nil
}

func checkCovariance(name string, v []float64) error {
	if v == nil {
		return nil
	}
	if len(v) != 9 {
		return fmt.Errorf("%s must have exactly 9 elements (got %d)", name, len(v))
	}
	return nil
}

// Matrix returns the covariance as a fixed array, zeros when unset.
func Matrix(v []float64) [9]float64 {
	var out [9]float64
	copy(out[:], v)
	return out
}
