//go:build unix

package fsx

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isEXDEV 识别跨设备 rename；*os.LinkError 会被 errors.Is 解包。
func isEXDEV(err error) bool {
	return errors.Is(err, unix.EXDEV)
}
