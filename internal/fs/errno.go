package fs

import (
	"errors"
	"os"
	"syscall"

	"github.com/ajaxzhan/gstfs/pkg/types"
	"github.com/hanwen/go-fuse/v2/fs"
)

// toErrno converts a Go error to a syscall.Errno.
func toErrno(err error) syscall.Errno {
	if err == nil {
		return fs.OK
	}

	// Buffer growth refused: checked first, it also surfaces wrapped in a
	// transcode failure.
	if errors.Is(err, types.ErrEntryTooLarge) {
		return syscall.ENOMEM
	}
	if errors.Is(err, types.ErrTranscodeFailed) {
		return syscall.EIO
	}
	if errors.Is(err, types.ErrNotCacheable) {
		return syscall.EINVAL
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	// Map common errors
	if os.IsNotExist(err) {
		return syscall.ENOENT
	}
	if os.IsPermission(err) {
		return syscall.EACCES
	}
	if os.IsExist(err) {
		return syscall.EEXIST
	}

	return syscall.EIO
}
