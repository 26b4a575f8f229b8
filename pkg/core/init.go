package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/uefivars"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/registration"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/state"
)

var (
	// this is set by the build environment
	releaseId string = "unknown"
)

// replaced in tests
var now = time.Now

func NewCore() *Core {
	return &Core{
		ReleaseId: &releaseId,
		Log:       &log.Logger,
	}
}

// load and migrate on-disk state
func (core *Core) initState(stateDir string) error {
	// stateDir is either the OS-specific default or what we get from the CLI
	if stateDir == "" {
		core.Log.Error().Msg("No state directory specified")
		return fmt.Errorf("state parameter empty: %w", ErrStateDir)
	}

	// test if the state directory is writable
	{
		err := os.MkdirAll(stateDir, os.ModeDir|0750)
		if err != nil {
			core.Log.Debug().Err(err).Msgf("os.MkdirAll(%s)", stateDir)
			return ErrStateDir
		}
		tmp := filepath.Join(stateDir, "testfile")
		fd, err := os.Create(tmp)
		if err != nil {
			core.Log.Debug().Err(err).Msgf("os.Create(%s)", tmp)
			return ErrStateDir
		}
		fd.Close()
		os.Remove(tmp)
	}

	core.StatePath = filepath.Join(stateDir, state.DefaultStateFile)

	// load and migrate state
	st, update, err := state.LoadState(core.StatePath)
	if errors.Is(err, state.ErrNotExist) {
		core.Log.Info().Msg("No previous state found")
		core.State = state.NewState()
	} else if errors.Is(err, state.ErrNoPerm) {
		return err
	} else if err != nil {
		core.Log.Debug().Err(err).Msgf("state.LoadState(%s)", core.StatePath)
		return ErrStateLoad
	} else {
		core.State = st
	}
	if update {
		core.Log.Debug().Msg("Migrating state file to newest version")
		if err := core.storeState(); err != nil {
			return err
		}
	}

	return nil
}

func (core *Core) storeState() error {
	if err := core.State.Store(core.StatePath); err != nil {
		core.Log.Debug().Err(err).Msgf("Store(%s)", core.StatePath)
		return ErrStateStore
	}
	return nil
}

// Init loads the on-disk state and opens the registration variables in
// store.
func (core *Core) Init(stateDir string, store *uefivars.Store) error {
	// load on-disk state
	if err := core.initState(stateDir); err != nil {
		core.Log.Error().Msg("Cannot restore state")
		return err
	}

	if !store.Exists() {
		core.Log.Debug().Str("root", store.Root()).Msg("efivarfs root missing")
		return ErrNoEfivars
	}
	core.Store = store
	core.Registration = registration.Open(store)

	return nil
}

func (core *Core) Close() {
	if core.Registration != nil {
		core.Registration.Close()
	}
}
