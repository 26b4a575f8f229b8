package common

import (
	"errors"
	"io/fs"
	"syscall"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/api"
)

type noPermission struct{ error }
type noResponse struct{ error }

func (e noPermission) Unwrap() error { return e.error }
func (e noResponse) Unwrap() error   { return e.error }

func ErrorNoPermission(err error) error { return noPermission{err} }
func ErrorNoResponse(err error) error   { return noResponse{err} }

// MapFSErrors sorts file system errors into the no-perm and no-resp buckets
// that ServeApiError understands. Other errors are returned as is.
func MapFSErrors(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EPERM) {
		return ErrorNoPermission(err)
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENODEV) || errors.Is(err, syscall.ENXIO) {
		return ErrorNoResponse(err)
	}
	return err
}

// ServeApiError converts an error into the code stored in report structs.
func ServeApiError(err error) api.FirmwareError {
	if err == nil {
		return api.NoError
	}

	var perm noPermission
	if errors.As(err, &perm) {
		return api.NoPermission
	}
	var resp noResponse
	if errors.As(err, &resp) {
		return api.NoResponse
	}
	return api.UnknownError
}
