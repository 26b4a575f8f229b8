package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/api"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/util"
)

const (
	ClientStateTypeV1 = "sgxreg-state/1"
	ClientStateType   = ClientStateTypeV1

	// DefaultVendorSubdir is the name of the subdirectory we create in /var/lib
	DefaultVendorSubdir string = "sgx-registration"

	DefaultStateFile string = "state.json"
)

var (
	ErrNotExist = errors.New("non existent")
	ErrInvalid  = errors.New("invalid data")
	ErrNoPerm   = errors.New("no permissions")
)

// State is an audit trail of what the agent did. It is never consulted for
// the registration status, the firmware variables are the only source of
// truth for that.
type State StateV1

// LoadState returns a loaded state and a bool if it has been updated or error
func LoadState(statePath string) (*State, bool, error) {
	log.Trace().Msg("load on-disk state")
	if _, err := os.Stat(statePath); os.IsNotExist(err) {
		return nil, false, ErrNotExist
	} else if os.IsPermission(err) {
		return nil, false, ErrNoPerm
	} else if err != nil {
		return nil, false, err
	}

	file, err := os.ReadFile(statePath)
	if os.IsPermission(err) {
		return nil, false, ErrNoPerm
	} else if err != nil {
		return nil, false, err
	}

	return migrateState(file)
}

// the bool is true when the state has been updated
func migrateState(raw []byte) (*State, bool, error) {
	var dict map[string]interface{}

	if err := json.Unmarshal(raw, &dict); err != nil {
		log.Debug().Msgf("State file is not a JSON dict: %s", err)
		return nil, false, ErrInvalid
	}

	val, ok := dict["type"]
	if !ok {
		log.Debug().Msg("Migrating untyped state to v1")
		st1, err := migrateStateV0(raw)
		if err != nil {
			return nil, false, err
		}
		return (*State)(st1), true, nil
	}

	str, ok := val.(string)
	if !ok {
		log.Debug().Msg("State file type is not a string")
		return nil, false, ErrInvalid
	}

	switch str {
	case ClientStateTypeV1:
		var st State
		if err := json.Unmarshal(raw, &st); err != nil {
			log.Debug().Err(err).Msg("state v1")
			return nil, false, ErrInvalid
		}
		return &st, false, nil
	default:
		log.Debug().Msgf("Unknown state type '%s'", str)
		return nil, false, ErrInvalid
	}
}

func (st *State) Store(statePath string) error {
	str, err := json.Marshal(*st)
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(statePath), 0755)
	if err != nil {
		return err
	}

	return util.WriteFileAtomic(statePath, str, 0600)
}

func NewState() *State {
	return (*State)(newStateV1())
}

// RecordManifest remembers the digest of a manifest written to path.
func (st *State) RecordManifest(manifest []byte, path string, now time.Time) {
	st.LastManifest = &ManifestRecordV1{
		SHA256: util.SHA256(manifest),
		Size:   len(manifest),
		Time:   now.UTC(),
		Path:   path,
	}
}

// RecordOutcome remembers the last status written to the firmware.
func (st *State) RecordOutcome(registered bool, code api.RegistrationErrorCode, now time.Time) {
	st.LastOutcome = &OutcomeV1{
		Registered: registered,
		ErrorCode:  code,
		Time:       now.UTC(),
	}
}
