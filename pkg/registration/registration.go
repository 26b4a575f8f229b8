// Package registration sequences the firmware variable protocol into the
// operations the registration workflow needs: fetching the pending platform
// manifest and reporting the outcome back to the BIOS.
//
// Nothing is cached. The BIOS owns the variables and may rewrite them
// between any two calls.
package registration

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/api"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/mpuefi"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/uefivars"
)

type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrClosed           = Error("registration handle closed")
	ErrInvalidParameter = Error("invalid parameter")
)

// Registration is a handle on the registration variables of one variable
// store. It is not safe for concurrent use.
type Registration struct {
	codec  *mpuefi.Codec
	closed bool
}

func Open(store mpuefi.VariableStore) *Registration {
	log.Trace().Msg("registration.Open()")
	return &Registration{codec: mpuefi.New(store)}
}

// Close invalidates the handle. Closing twice is a no-op.
func (r *Registration) Close() error {
	log.Trace().Msg("registration.Close()")
	r.closed = true
	return nil
}

func (r *Registration) check() error {
	if r == nil || r.closed {
		return ErrClosed
	}
	return nil
}

// pendingManifest returns the platform manifest envelope if the machine is
// not registered and the BIOS asks for a manifest. Any other combination is
// reported as ErrNoPendingData. The request variable is read exactly once so
// the classification and the payload always belong together.
func (r *Registration) pendingManifest() (*mpuefi.Envelope, error) {
	st, err := r.codec.RegistrationStatus()
	if err != nil {
		return nil, err
	}
	if st.Registered {
		log.Debug().Msg("machine already registered, ignoring request variable")
		return nil, mpuefi.ErrNoPendingData
	}

	env, ty, err := r.codec.PendingRequest()
	if err != nil {
		return nil, err
	}
	if ty != mpuefi.RequestRegistration {
		log.Debug().Stringer("request", ty).Msg("no platform manifest pending")
		return nil, mpuefi.ErrNoPendingData
	}
	return env, nil
}

// FetchPlatformManifest copies the pending platform manifest into buf. If
// buf is too small the returned error is an *mpuefi.InsufficientBufferError
// carrying the size to retry with.
func (r *Registration) FetchPlatformManifest(buf []byte) (int, error) {
	log.Trace().Msg("registration.FetchPlatformManifest()")
	if err := r.check(); err != nil {
		return 0, err
	}

	env, err := r.pendingManifest()
	if err != nil {
		return 0, err
	}
	return env.CopyPayload(buf)
}

// PlatformManifestSize returns the size of the pending platform manifest.
func (r *Registration) PlatformManifestSize() (int, error) {
	if err := r.check(); err != nil {
		return 0, err
	}

	env, err := r.pendingManifest()
	if err != nil {
		return 0, err
	}
	return len(env.Payload), nil
}

// PendingRequestType reports the raw request classification regardless of
// the registration status.
func (r *Registration) PendingRequestType() (mpuefi.RequestType, error) {
	if err := r.check(); err != nil {
		return mpuefi.RequestNone, err
	}
	return r.codec.RequestType()
}

func (r *Registration) RegistrationStatus() (api.MachineRegistrationStatus, error) {
	log.Trace().Msg("registration.RegistrationStatus()")
	if err := r.check(); err != nil {
		return api.NotRegistered, err
	}

	st, err := r.codec.RegistrationStatus()
	if err != nil {
		return api.NotRegistered, err
	}
	if st.Registered {
		return api.Registered, nil
	}
	return api.NotRegistered, nil
}

// RegistrationDetails returns the full status record including the package
// info bit and the last error code.
func (r *Registration) RegistrationDetails() (mpuefi.Status, error) {
	if err := r.check(); err != nil {
		return mpuefi.Status{}, err
	}
	return r.codec.RegistrationStatus()
}

// update is a read-modify-write of the status variable. The BIOS may change
// the variable between the read and the write; there is no way to lock it.
func (r *Registration) update(fn func(*mpuefi.Status)) error {
	st, err := r.codec.RegistrationStatus()
	if err != nil {
		return err
	}
	fn(&st)
	return r.codec.SetRegistrationStatus(st)
}

// MarkRegistrationComplete sets the registered bit. The package info bit
// and the error code are kept.
func (r *Registration) MarkRegistrationComplete() error {
	log.Trace().Msg("registration.MarkRegistrationComplete()")
	if err := r.check(); err != nil {
		return err
	}

	return r.update(func(st *mpuefi.Status) {
		st.Registered = true
	})
}

// SetRegistrationErrorCode stores code in the status variable and leaves
// both status bits alone.
func (r *Registration) SetRegistrationErrorCode(code api.RegistrationErrorCode) error {
	log.Trace().Stringer("code", code).Msg("registration.SetRegistrationErrorCode()")
	if err := r.check(); err != nil {
		return err
	}

	return r.update(func(st *mpuefi.Status) {
		st.ErrorCode = code
	})
}

// SubmitMembershipCertificates answers a pending add-package request.
func (r *Registration) SubmitMembershipCertificates(certs []byte) error {
	log.Trace().Int("size", len(certs)).Msg("registration.SubmitMembershipCertificates()")
	if err := r.check(); err != nil {
		return err
	}
	if len(certs) == 0 {
		return ErrInvalidParameter
	}

	ty, err := r.codec.RequestType()
	if err != nil {
		return err
	}
	if ty != mpuefi.RequestAddPackage {
		return mpuefi.ErrNoPendingData
	}
	return r.codec.SetMembershipCertificates(certs)
}

// ResultOf maps an error returned by this package to the public result
// vocabulary. Unknown errors are internal errors.
func ResultOf(err error) api.Result {
	switch {
	case err == nil:
		return api.Success
	case errors.Is(err, ErrClosed), errors.Is(err, ErrInvalidParameter):
		return api.InvalidParameter
	case errors.Is(err, mpuefi.ErrNoPendingData):
		return api.NoPendingData
	case errors.Is(err, mpuefi.ErrInsufficientBuffer):
		return api.InsufficientBuffer
	case errors.Is(err, uefivars.ErrPermissionDenied):
		return api.InsufficientPrivileges
	default:
		return api.UefiInternalError
	}
}

// RequiredSize extracts the buffer size from an insufficient buffer error.
func RequiredSize(err error) (int, bool) {
	var ib *mpuefi.InsufficientBufferError
	if errors.As(err, &ib) {
		return ib.Required, true
	}
	return 0, false
}

// Classify maps a status record and the pending request onto the service
// status. A pending add-package request means certificates are expected,
// even on a registered platform.
func Classify(st mpuefi.Status, ty mpuefi.RequestType) api.StatusCode {
	switch {
	case ty == mpuefi.RequestAddPackage:
		return api.Pending
	case st.Registered:
		return api.PlatformDirectlyRegistered
	case st.ErrorCode == api.ErrorCodeSuccess && ty == mpuefi.RequestRegistration:
		return api.Pending
	case st.ErrorCode == api.ErrorCodeSuccess:
		// neither registered nor asking for it, the BIOS has yet to act
		return api.RetryNeeded
	case st.ErrorCode.IsServerRejection(), st.ErrorCode == api.ErrorCodeAgentUnauthorized:
		return api.InvalidRegistrationRequest
	}

	switch st.ErrorCode {
	case api.ErrorCodeAgentNetworkError, api.ErrorCodeAgentServerTimeout:
		return api.IntelConnectFailed
	case api.ErrorCodeAgentInternalServerError:
		return api.IntelRegServiceRequestFailed
	case api.ErrorCodeAgentBiosProtocolError:
		return api.SgxResetNeeded
	default:
		return api.RetryNeeded
	}
}

// StatusCodeOf maps an error of a write operation onto the service status.
// A nil error is Pending.
func StatusCodeOf(err error) api.StatusCode {
	switch {
	case err == nil:
		return api.Pending
	case errors.Is(err, uefivars.ErrNotFound):
		return api.SgxUefiUnavailable
	case errors.Is(err, uefivars.ErrPermissionDenied):
		return api.UefiPersistFailed
	case errors.Is(err, mpuefi.ErrStructural):
		return api.SgxResetNeeded
	case errors.Is(err, uefivars.ErrIO), errors.Is(err, mpuefi.ErrInsufficientBuffer):
		return api.RetryNeeded
	default:
		return api.UnknownStatus
	}
}

// ReadStatusCode is StatusCodeOf for read-only operations. A refused read
// means the variables are unavailable, not that persisting failed.
func ReadStatusCode(err error) api.StatusCode {
	if errors.Is(err, uefivars.ErrPermissionDenied) {
		return api.SgxUefiUnavailable
	}
	return StatusCodeOf(err)
}

// Check reads the registration variables and classifies them.
func (r *Registration) Check() api.StatusCode {
	log.Trace().Msg("registration.Check()")
	if err := r.check(); err != nil {
		return api.UnknownStatus
	}

	st, err := r.codec.RegistrationStatus()
	if err != nil {
		log.Debug().Err(err).Msg("mpuefi.RegistrationStatus()")
		return ReadStatusCode(err)
	}
	ty, err := r.codec.RequestType()
	if err != nil {
		log.Debug().Err(err).Msg("mpuefi.RequestType()")
		return ReadStatusCode(err)
	}
	return Classify(st, ty)
}
