package mpuefi

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/api"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/uefivars"
)

// status record: version, size, status bits, error code
const (
	statusVersion    = Version1
	statusBodySize   = 2 + 1
	statusRecordSize = 2 + 2 + statusBodySize

	statusRegistrationComplete uint16 = 1 << 0
	statusPackageInfoComplete  uint16 = 1 << 1
	statusReservedMask                = ^(statusRegistrationComplete | statusPackageInfoComplete)
)

// Status is the decoded registration status variable.
type Status struct {
	Registered      bool
	PackageInfoDone bool
	ErrorCode       api.RegistrationErrorCode
}

// EncodeStatus serializes s. Reserved bits are always zero.
func EncodeStatus(s Status) []byte {
	var bits uint16
	if s.Registered {
		bits |= statusRegistrationComplete
	}
	if s.PackageInfoDone {
		bits |= statusPackageInfoComplete
	}

	buf := make([]byte, statusRecordSize)
	binary.LittleEndian.PutUint16(buf[0:], statusVersion)
	binary.LittleEndian.PutUint16(buf[2:], statusBodySize)
	binary.LittleEndian.PutUint16(buf[4:], bits)
	buf[6] = uint8(s.ErrorCode)
	return buf
}

// DecodeStatus parses a status record. Anything but an exact version 1
// record without reserved bits is rejected.
func DecodeStatus(buf []byte) (Status, error) {
	if len(buf) != statusRecordSize {
		return Status{}, fmt.Errorf("status record has %d bytes, want %d: %w", len(buf), statusRecordSize, ErrStructural)
	}

	version := binary.LittleEndian.Uint16(buf[0:])
	size := binary.LittleEndian.Uint16(buf[2:])
	bits := binary.LittleEndian.Uint16(buf[4:])

	if version != statusVersion {
		return Status{}, fmt.Errorf("unsupported status version %d: %w", version, ErrStructural)
	}
	if size != statusBodySize {
		return Status{}, fmt.Errorf("status record declares size %d, want %d: %w", size, statusBodySize, ErrStructural)
	}
	if bits&statusReservedMask != 0 {
		return Status{}, fmt.Errorf("reserved status bits set (%#04x): %w", bits, ErrStructural)
	}

	return Status{
		Registered:      bits&statusRegistrationComplete != 0,
		PackageInfoDone: bits&statusPackageInfoComplete != 0,
		ErrorCode:       api.RegistrationErrorCode(buf[6]),
	}, nil
}

// RegistrationStatus reads the status variable. It has to exist on a
// provisioned platform, so absence is a structural error as well.
func (c *Codec) RegistrationStatus() (Status, error) {
	log.Trace().Msg("mpuefi.RegistrationStatus()")

	buf, err := c.store.Read(StatusVariable)
	if errors.Is(err, uefivars.ErrNotFound) {
		return Status{}, fmt.Errorf("registration status: %w: %w", ErrStructural, err)
	} else if err != nil {
		return Status{}, err
	}

	st, err := DecodeStatus(buf)
	if err != nil {
		log.Debug().Err(err).Msg("mpuefi.DecodeStatus()")
		return Status{}, fmt.Errorf("registration status: %w", err)
	}
	return st, nil
}

// SetRegistrationStatus overwrites the status variable, which must exist.
// A refused write keeps ErrPermissionDenied, every other failure is
// reported as ErrStructural.
func (c *Codec) SetRegistrationStatus(s Status) error {
	log.Trace().
		Bool("registered", s.Registered).
		Bool("package_info", s.PackageInfoDone).
		Stringer("error_code", s.ErrorCode).
		Msg("mpuefi.SetRegistrationStatus()")

	buf := EncodeStatus(s)
	n, err := c.store.Write(StatusVariable, buf, false)
	if errors.Is(err, ErrPermissionDenied) {
		return err
	} else if err != nil {
		return fmt.Errorf("registration status: %w: %w", ErrStructural, err)
	}
	if n != len(buf) {
		return fmt.Errorf("registration status: wrote %d/%d bytes: %w", n, len(buf), ErrStructural)
	}
	return nil
}
