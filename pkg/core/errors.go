package core

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/api"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/registration"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/state"
)

type RegistrationAgentError string

func (e RegistrationAgentError) Error() string {
	return string(e)
}

var (
	ErrEncodeJson   = RegistrationAgentError("json encoding")
	ErrNoEfivars    = RegistrationAgentError("efivarfs not available")
	ErrReadInput    = RegistrationAgentError("read input file")
	ErrWriteOutput  = RegistrationAgentError("write output file")
	ErrCompress     = RegistrationAgentError("compress output")
	ErrStateDir     = RegistrationAgentError("create or write state dir")
	ErrStateLoad    = RegistrationAgentError("other state load error")
	ErrStateStore   = RegistrationAgentError("other state store error")
	ErrManifestSize = RegistrationAgentError("platform manifest changed size")
)

// logRegistrationResult translates errors from the registration package.
// It returns false if err is none of those.
func logRegistrationResult(l *zerolog.Logger, what string, err error) bool {
	switch registration.ResultOf(err) {
	case api.NoPendingData:
		l.Error().Msgf("%s failed. The BIOS has no matching request pending.", what)
	case api.InsufficientPrivileges:
		l.Error().Msgf("%s failed. The BIOS does not allow writing the registration status.", what)
	case api.InsufficientBuffer:
		l.Error().Msgf("%s failed. The request grew while reading it, please try again.", what)
	case api.InvalidParameter:
		l.Error().Msgf("%s failed. Invalid parameter.", what)
	case api.UefiInternalError:
		if errors.As(err, new(RegistrationAgentError)) {
			return false
		}
		l.Error().Msgf("%s failed. The registration variables are malformed or unreadable. A BIOS update may be needed.", what)
	default:
		return false
	}
	return true
}

// LogRegistrationErrors is a helper function to translate errors to text and log them directly
func LogRegistrationErrors(l *zerolog.Logger, what string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, ErrWriteOutput) {
		l.Error().Msg("Cannot write output file, check path and permissions.")
	} else if errors.Is(err, ErrReadInput) {
		l.Error().Msg("Cannot read input file.")
	} else if errors.Is(err, ErrCompress) {
		l.Error().Msg("Failed to compress output.")
	} else if errors.Is(err, ErrEncodeJson) {
		l.Error().Msg("Internal error while encoding the platform report.")
	} else if errors.Is(err, ErrManifestSize) {
		l.Error().Msg("The platform manifest changed while reading it, please try again.")
	} else if errors.Is(err, ErrStateStore) {
		l.Error().Msg("Failed to store state.")
	} else if !logRegistrationResult(l, what, err) {
		l.Error().Msgf("%s failed. An unknown error occured.", what)
	}
}

// LogInitErrors is a helper function to translate errors to text and log them directly
func LogInitErrors(l *zerolog.Logger, err error) {
	if errors.Is(err, ErrStateDir) {
		l.Error().Msg("Can't create or write state directory, check permissions")
	} else if errors.Is(err, state.ErrNoPerm) {
		l.Error().Msg("Cannot read state, no permissions.")
	} else if errors.Is(err, ErrStateLoad) {
		l.Error().Msg("Failed to load state.")
	} else if errors.Is(err, ErrStateStore) {
		l.Error().Msg("Failed to store state.")
	} else if errors.Is(err, ErrNoEfivars) {
		l.Error().Msg("UEFI variables are not available. Is efivarfs mounted?")
	} else {
		l.Error().Msg("Unknown error occured during initialization.")
	}
}
