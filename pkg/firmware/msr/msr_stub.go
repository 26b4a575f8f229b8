//go:build !linux

package msr

import (
	"errors"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/common"
)

var errNotSupported = errors.New("msr access not supported on this platform")

func platformReadMSR(core uint32, msr uint32) (uint64, error) {
	return 0, common.ErrorNoResponse(errNotSupported)
}
