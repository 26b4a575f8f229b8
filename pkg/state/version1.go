package state

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/api"
)

// ManifestRecordV1 remembers the last platform manifest handed out.
type ManifestRecordV1 struct {
	SHA256 api.Buffer `json:"sha256"`
	Size   int        `json:"size"`
	Time   time.Time  `json:"time"`
	Path   string     `json:"path,omitempty"`
}

// OutcomeV1 is the last outcome the agent reported to the BIOS.
type OutcomeV1 struct {
	Registered bool                      `json:"registered"`
	ErrorCode  api.RegistrationErrorCode `json:"error_code"`
	Time       time.Time                 `json:"time"`
}

type StateV1 struct {
	Ty string `json:"type"`

	LastManifest *ManifestRecordV1 `json:"last_manifest,omitempty"`
	LastOutcome  *OutcomeV1        `json:"last_outcome,omitempty"`
}

func newStateV1() *StateV1 {
	return &StateV1{Ty: ClientStateTypeV1}
}

// untyped files were written before the type field existed and only
// carry the manifest record
func migrateStateV0(raw []byte) (*StateV1, error) {
	var legacy struct {
		LastManifest *ManifestRecordV1 `json:"last_manifest"`
	}
	if err := json.Unmarshal(raw, &legacy); err != nil {
		log.Debug().Err(err).Msg("legacy state")
		return nil, ErrInvalid
	}
	if legacy.LastManifest == nil {
		return nil, ErrInvalid
	}

	st := newStateV1()
	st.LastManifest = legacy.LastManifest
	return st, nil
}
