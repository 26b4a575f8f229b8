package mpuefi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/uefivars"
)

// RequestType classifies the pending BIOS request.
type RequestType int

const (
	RequestNone RequestType = iota
	RequestRegistration
	RequestAddPackage
)

func (t RequestType) String() string {
	switch t {
	case RequestNone:
		return "none"
	case RequestRegistration:
		return "platform-manifest"
	case RequestAddPackage:
		return "add-package"
	default:
		return fmt.Sprintf("request(%d)", int(t))
	}
}

// envelope header: GUID, version, size
const (
	guidSize          = 16
	envelopeHdrSize   = guidSize + 2 + 2
	envelopeVerOffset = guidSize
	envelopeLenOffset = guidSize + 2
)

// Envelope is the GUID tagged, versioned container used by the request and
// response variables.
type Envelope struct {
	GUID    uuid.UUID
	Version uint16
	Payload []byte
}

// Type maps the envelope GUID to a request type.
func (e *Envelope) Type() (RequestType, error) {
	switch e.GUID {
	case PlatformManifestGUID:
		return RequestRegistration, nil
	case AddPackageGUID:
		return RequestAddPackage, nil
	default:
		return RequestNone, fmt.Errorf("unknown request GUID %s: %w", e.GUID, ErrStructural)
	}
}

// efiGUID converts between RFC 4122 byte order and the EFI_GUID layout which
// stores the first three fields little-endian. The conversion is its own inverse.
func efiGUID(guid uuid.UUID) [16]byte {
	u := [16]byte(guid)
	u[0], u[1], u[2], u[3] = u[3], u[2], u[1], u[0]
	u[4], u[5] = u[5], u[4]
	u[6], u[7] = u[7], u[6]
	return u
}

func validVersion(v uint16) bool {
	return v == Version1 || v == Version2
}

// DecodeEnvelope checks the header of buf and returns the envelope. The
// payload aliases buf.
func DecodeEnvelope(buf []byte) (*Envelope, error) {
	if len(buf) < envelopeHdrSize {
		return nil, fmt.Errorf("envelope of %d bytes is shorter than its header: %w", len(buf), ErrStructural)
	}

	var raw uuid.UUID
	copy(raw[:], buf[:guidSize])

	var env Envelope
	env.GUID = uuid.UUID(efiGUID(raw))
	env.Version = binary.LittleEndian.Uint16(buf[envelopeVerOffset:])
	size := int(binary.LittleEndian.Uint16(buf[envelopeLenOffset:]))

	if !validVersion(env.Version) {
		return nil, fmt.Errorf("unsupported envelope version %d: %w", env.Version, ErrStructural)
	}
	if len(buf) != envelopeHdrSize+size {
		return nil, fmt.Errorf("envelope declares %d payload bytes but carries %d: %w", size, len(buf)-envelopeHdrSize, ErrStructural)
	}

	env.Payload = buf[envelopeHdrSize:]
	return &env, nil
}

// EncodeEnvelope serializes env. The payload must fit the 16 bit size field.
func EncodeEnvelope(env *Envelope) ([]byte, error) {
	if len(env.Payload) > math.MaxUint16 {
		return nil, fmt.Errorf("payload of %d bytes exceeds envelope limit", len(env.Payload))
	}
	if !validVersion(env.Version) {
		return nil, fmt.Errorf("unsupported envelope version %d", env.Version)
	}

	buf := make([]byte, envelopeHdrSize+len(env.Payload))
	g := efiGUID(env.GUID)
	copy(buf, g[:])
	binary.LittleEndian.PutUint16(buf[envelopeVerOffset:], env.Version)
	binary.LittleEndian.PutUint16(buf[envelopeLenOffset:], uint16(len(env.Payload)))
	copy(buf[envelopeHdrSize:], env.Payload)
	return buf, nil
}

// PendingRequest reads and validates the request variable once and returns
// the envelope together with its classification. A missing variable yields
// RequestNone and a nil envelope.
func (c *Codec) PendingRequest() (*Envelope, RequestType, error) {
	buf, err := c.store.Read(ServerRequestVariable)
	if errors.Is(err, uefivars.ErrNotFound) {
		log.Trace().Msg("no server request variable")
		return nil, RequestNone, nil
	} else if err != nil {
		return nil, RequestNone, err
	}

	env, err := DecodeEnvelope(buf)
	if err != nil {
		log.Debug().Err(err).Msg("mpuefi.DecodeEnvelope(request)")
		return nil, RequestNone, fmt.Errorf("server request: %w", err)
	}
	ty, err := env.Type()
	if err != nil {
		log.Debug().Err(err).Msg("mpuefi.Envelope.Type()")
		return nil, RequestNone, fmt.Errorf("server request: %w", err)
	}

	return env, ty, nil
}

// CopyPayload copies the payload into buf. If buf is too small nothing is
// copied and an *InsufficientBufferError with the required size is returned.
func (e *Envelope) CopyPayload(buf []byte) (int, error) {
	if len(buf) < len(e.Payload) {
		return 0, &InsufficientBufferError{Required: len(e.Payload)}
	}
	return copy(buf, e.Payload), nil
}

// RequestType reports which kind of request the BIOS has pending. RequestNone
// is returned without error if there is none.
func (c *Codec) RequestType() (RequestType, error) {
	log.Trace().Msg("mpuefi.RequestType()")

	_, ty, err := c.PendingRequest()
	return ty, err
}

// RequestSize returns the payload size of the pending request.
func (c *Codec) RequestSize() (int, error) {
	env, ty, err := c.PendingRequest()
	if err != nil {
		return 0, err
	}
	if ty == RequestNone {
		return 0, ErrNoPendingData
	}
	return len(env.Payload), nil
}

// Request copies the pending request payload into buf, see CopyPayload.
func (c *Codec) Request(buf []byte) (int, error) {
	log.Trace().Int("capacity", len(buf)).Msg("mpuefi.Request()")

	env, ty, err := c.PendingRequest()
	if err != nil {
		return 0, err
	}
	if ty == RequestNone {
		return 0, ErrNoPendingData
	}
	return env.CopyPayload(buf)
}

// SetMembershipCertificates answers an add-package request by writing the
// platform membership certificates into the response variable, creating it
// if necessary.
func (c *Codec) SetMembershipCertificates(payload []byte) error {
	log.Trace().Int("size", len(payload)).Msg("mpuefi.SetMembershipCertificates()")

	buf, err := EncodeEnvelope(&Envelope{
		GUID:    PlatformMembershipCertificateGUID,
		Version: Version1,
		Payload: payload,
	})
	if err != nil {
		return err
	}

	n, err := c.store.Write(ServerResponseVariable, buf, true)
	if errors.Is(err, ErrPermissionDenied) {
		return err
	} else if err != nil {
		return fmt.Errorf("server response: %w: %w", ErrStructural, err)
	}
	if n != len(buf) {
		return fmt.Errorf("server response: wrote %d/%d bytes: %w", n, len(buf), ErrStructural)
	}
	return nil
}
