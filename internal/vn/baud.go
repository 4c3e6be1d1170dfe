package vn

// SupportedBaudRates are the rates a VectorNav may have been left at, in the
// order the negotiator tries them.
var SupportedBaudRates = []int{9600, 19200, 38400, 57600, 115200, 128000, 230400, 460800, 921600}

// IncompatibleBaudRate is listed in the data sheet but does not work with the
// VN-100, so it is never used for a connection attempt.
const IncompatibleBaudRate = 128000

// IsSupportedBaudRate reports whether baud is one of SupportedBaudRates.
func IsSupportedBaudRate(baud int) bool {
	for _, b := range SupportedBaudRates {
		if b == baud {
			return true
		}
	}
	return false
}
