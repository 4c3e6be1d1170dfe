//go:build linux

package serialport

import (
	"golang.org/x/sys/unix"
)

// Probe opens path without becoming its controlling terminal and reads its
// termios settings. A non-TTY path is reported, not rejected.
func Probe(path string) (Info, error) {
	info := Info{Path: path}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return info, err
	}
	defer unix.Close(fd)

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		if err == unix.ENOTTY {
			return info, nil
		}
		return info, err
	}
	info.IsTTY = true
	info.Baud = baudFromUnix(t.Cflag & unix.CBAUD)
	return info, nil
}

func baudFromUnix(spd uint32) int {
	switch spd {
	case unix.B9600:
		return 9600
	case unix.B19200:
		return 19200
	case unix.B38400:
		return 38400
	case unix.B57600:
		return 57600
	case unix.B115200:
		return 115200
	case unix.B230400:
		return 230400
	case unix.B460800:
		return 460800
	case unix.B921600:
		return 921600
	default:
		return 0
	}
}
