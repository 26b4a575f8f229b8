//go:build linux

package uefivars

import (
	"errors"
	"os"
	"syscall"

	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// from include/uapi/linux/fs.h
const fsImmutableFl = 0x00000010

// clearImmutableFlag drops FS_IMMUTABLE_FL. efivarfs marks most variables
// immutable to protect against accidental deletion. File systems without
// inode flags are left alone.
func clearImmutableFlag(f *os.File) (err error) {
	rawConn, err := f.SyscallConn()
	if err != nil {
		return err
	}

	cerr := rawConn.Control(func(fd uintptr) {
		var flags int
		flags, err = unix.IoctlGetInt(int(fd), unix.FS_IOC_GETFLAGS)
		if err != nil {
			if unsupportedIoctl(err) {
				err = nil
			}
			return
		}
		if flags&fsImmutableFl == 0 {
			return
		}

		log.Debug().Str("file", f.Name()).Msg("clearing immutable flag")
		err = unix.IoctlSetPointerInt(int(fd), unix.FS_IOC_SETFLAGS, flags&^fsImmutableFl)
	})
	return multierr.Append(err, cerr)
}

func unsupportedIoctl(err error) bool {
	return errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EOPNOTSUPP) || errors.Is(err, syscall.EINVAL)
}
