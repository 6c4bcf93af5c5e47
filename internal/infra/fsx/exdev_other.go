//go:build !unix

package fsx

import (
	"errors"
	"syscall"
)

// Windows 的 ERROR_NOT_SAME_DEVICE；其它非 unix 平台不会返回该值。
const errNotSameDevice = syscall.Errno(17)

func isEXDEV(err error) bool {
	return errors.Is(err, errNotSameDevice)
}
