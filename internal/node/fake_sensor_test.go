package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"vectornav-ng/internal/vn"
)

// fakeSensor is a scripted vn.Sensor that records every call.
type fakeSensor struct {
	mu sync.Mutex

	deviceBaud  int
	unreachable bool
	// fatal is returned from Connect instead of a transient fault.
	fatal       error
	noVerify    bool
	model       string
	registerErr error

	// frames maps packet payloads to decoded data; unknown payloads fail to decode.
	frames map[string]vn.CompositeData

	calls    []string
	connects []int
	portBaud int
	handler  vn.PacketHandler
}

func newFakeSensor(deviceBaud int) *fakeSensor {
	return &fakeSensor{deviceBaud: deviceBaud, model: "VN-200T-CR", frames: map[string]vn.CompositeData{}}
}

func (f *fakeSensor) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeSensor) Connect(_ context.Context, port string, baud int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("connect %d", baud)
	f.connects = append(f.connects, baud)
	if f.fatal != nil {
		return f.fatal
	}
	if f.unreachable {
		return &vn.CommError{Op: "open", Port: port, Baud: baud, Err: errors.New("no such device")}
	}
	f.portBaud = baud
	return nil
}

func (f *fakeSensor) ChangeBaudRate(_ context.Context, baud int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("change %d", baud)
	if f.portBaud != f.deviceBaud {
		return &vn.CommError{Op: "change baud", Baud: f.portBaud, Err: vn.ErrTimeout}
	}
	f.deviceBaud = baud
	f.portBaud = baud
	return nil
}

func (f *fakeSensor) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("disconnect")
	f.portBaud = 0
	return nil
}

func (f *fakeSensor) Baudrate() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.portBaud
}

func (f *fakeSensor) SetResponseTimeout(time.Duration) {}
func (f *fakeSensor) SetRetransmitDelay(time.Duration) {}

func (f *fakeSensor) VerifySensorConnectivity(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("verify")
	return !f.noVerify && f.portBaud != 0
}

func (f *fakeSensor) ReadModelNumber(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("read model")
	return f.model, nil
}

func (f *fakeSensor) ReadFirmwareVersion(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("read firmware")
	return "2.1.0.0", nil
}

func (f *fakeSensor) ReadHardwareRevision(context.Context) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("read hardware")
	return 5, nil
}

func (f *fakeSensor) ReadSerialNumber(context.Context) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("read serial")
	return 100000001, nil
}

func (f *fakeSensor) WriteAsyncDataOutputFrequency(_ context.Context, hz int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("write freq %d", hz)
	return nil
}

func (f *fakeSensor) WriteBinaryOutput1(_ context.Context, reg vn.BinaryOutputRegister) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("write bor divisor=%d", reg.RateDivisor)
	return nil
}

func (f *fakeSensor) RegisterAsyncPacketHandler(h vn.PacketHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("register")
	if f.registerErr != nil {
		return f.registerErr
	}
	f.handler = h
	return nil
}

func (f *fakeSensor) UnregisterAsyncPacketHandler() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("unregister")
	f.handler = nil
	return nil
}

func (f *fakeSensor) Parse(p vn.Packet) (vn.CompositeData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cd, ok := f.frames[string(p.Data)]
	if !ok {
		return vn.CompositeData{}, vn.ErrDecode
	}
	return cd, nil
}

// emit delivers a packet through the registered handler.
func (f *fakeSensor) emit(payload string) bool {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(vn.Packet{Data: []byte(payload), ReceivedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)})
	return true
}

func (f *fakeSensor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSensor) Connects() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.connects...)
}
