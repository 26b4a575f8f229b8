package core

import (
	"github.com/rs/zerolog"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/uefivars"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/registration"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/state"
)

type Core struct {
	// program info
	ReleaseId *string

	// on-disk state
	State     *state.State
	StatePath string

	// firmware variables
	Store        *uefivars.Store
	Registration *registration.Registration

	// Logging
	Log *zerolog.Logger
}
