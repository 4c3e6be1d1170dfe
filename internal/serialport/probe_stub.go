//go:build !linux

package serialport

import "fmt"

func Probe(path string) (Info, error) {
	return Info{Path: path}, fmt.Errorf("serial preflight not supported on this platform")
}
