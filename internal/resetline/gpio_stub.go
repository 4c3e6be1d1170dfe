//go:build !linux || (!arm && !arm64)

package resetline

import "fmt"

func openLine(chipPath, name string) (outputLine, error) {
	return nil, fmt.Errorf("resetline: gpio unsupported on this platform")
}

var openLineFn = openLine
