package fuse

import (
	"syscall"

	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
)

// errnoFor translates a kernel error into the POSIX errno FUSE expects,
// so every operation reports a syscall-appropriate failure instead of a
// blanket EIO.
func errnoFor(err error) syscall.Errno {
	kerr, ok := kernelerrors.As(err)
	if !ok {
		return syscall.EIO
	}
	switch kerr.Kind {
	case kernelerrors.KindNotFound:
		return syscall.ENOENT
	case kernelerrors.KindPermissionDenied:
		return syscall.EACCES
	case kernelerrors.KindConflict:
		return syscall.EEXIST
	case kernelerrors.KindInvalidArgument:
		return syscall.EINVAL
	case kernelerrors.KindTimeout:
		return syscall.ETIMEDOUT
	default:
		return syscall.EIO
	}
}
