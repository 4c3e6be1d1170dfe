// Package serialport finds and preflights the serial device the sensor is
// attached to. It never talks to the sensor itself.
package serialport

import (
	"fmt"
	"os"
	"strings"
)

// Auto is the port value that asks for auto-detection.
const Auto = "auto"

// Info describes a preflighted port.
type Info struct {
	Path  string `json:"path"`
	IsTTY bool   `json:"is_tty"`
	// Baud is the rate the port is currently configured at, 0 if unknown.
	Baud int `json:"baud,omitempty"`
}

var statFn = func(p string) error {
	_, err := os.Stat(p)
	return err
}

// AutoDetect returns the first existing USB serial device. FTDI adapters
// (ttyUSB*) are tried before CDC-ACM ones.
func AutoDetect() string {
	candidates := make([]string, 0, 20)
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for _, p := range candidates {
		if statFn(p) == nil {
			return p
		}
	}
	return ""
}

// Resolve maps the configured port to a device path.
func Resolve(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" || !strings.EqualFold(port, Auto) {
		return port, nil
	}
	p := AutoDetect()
	if p == "" {
		return "", fmt.Errorf("serial auto-detect failed: no /dev/ttyUSB* or /dev/ttyACM* found")
	}
	return p, nil
}
