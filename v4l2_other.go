//go:build !linux

package camcap

import (
	"fmt"
	"runtime"
)

// OpenDevice is only implemented on Linux.
func OpenDevice(path string) (Driver, error) {
	return nil, fmt.Errorf("%s: V4L2 is not available on %s", path, runtime.GOOS)
}
