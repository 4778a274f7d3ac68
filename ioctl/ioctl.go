// Package ioctl encodes Linux ioctl request numbers and issues the raw call.
package ioctl

import "golang.org/x/sys/unix"

const (
	nrBits   = 8
	typeBits = 8
	sizeBits = 14

	nrShift   = 0
	typeShift = nrShift + nrBits
	sizeShift = typeShift + typeBits
	dirShift  = sizeShift + sizeBits
)

const (
	dirNone  = 0
	dirWrite = 1
	dirRead  = 2
)

func ioc(dir, t, nr, size uintptr) uintptr {
	return (dir << dirShift) | (t << typeShift) | (nr << nrShift) | (size << sizeShift)
}

// Io is the equivalent of the _IO macro.
func Io(t, nr uintptr) uintptr {
	return ioc(dirNone, t, nr, 0)
}

// IoR is the equivalent of the _IOR macro.
func IoR(t, nr, size uintptr) uintptr {
	return ioc(dirRead, t, nr, size)
}

// IoW is the equivalent of the _IOW macro.
func IoW(t, nr, size uintptr) uintptr {
	return ioc(dirWrite, t, nr, size)
}

// IoRW is the equivalent of the _IOWR macro.
func IoRW(t, nr, size uintptr) uintptr {
	return ioc(dirRead|dirWrite, t, nr, size)
}

// Ioctl issues the request on fd, restarting the call if it was
// interrupted by a signal.
func Ioctl(fd, op, arg uintptr) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, op, arg)
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}
