package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"

	"github.com/gowebpki/jcs"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/api"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/mpuefi"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/registration"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/tui"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/util"
)

// initial buffer for the manifest, grown once if the BIOS asks for more
const manifestBufferSize = 4096

// Status reads the registration variables.
func (core *Core) Status() (*api.Registration, error) {
	tui.SetUIState(tui.StReadStatus)

	var reg api.Registration
	if err := firmware.ReportRegistration(core.Registration, &reg); err != nil {
		return &reg, err
	}

	if reg.Status == api.Registered {
		tui.SetUIState(tui.StPlatformRegistered)
	} else {
		tui.SetUIState(tui.StPlatformNotRegistered)
	}
	return &reg, nil
}

// FetchManifest reads the pending platform manifest. The first attempt uses
// a fixed size buffer, the second one the size the codec asked for.
func (core *Core) FetchManifest() ([]byte, error) {
	tui.SetUIState(tui.StFetchManifest)

	buf := make([]byte, manifestBufferSize)
	n, err := core.Registration.FetchPlatformManifest(buf)
	if required, ok := registration.RequiredSize(err); ok {
		core.Log.Debug().Int("required", required).Msg("growing manifest buffer")
		buf = make([]byte, required)
		n, err = core.Registration.FetchPlatformManifest(buf)
		if errors.Is(err, mpuefi.ErrInsufficientBuffer) {
			return nil, ErrManifestSize
		}
	}
	if errors.Is(err, mpuefi.ErrNoPendingData) {
		tui.SetUIState(tui.StNoPendingRequest)
		return nil, err
	} else if err != nil {
		core.Log.Debug().Err(err).Msg("registration.FetchPlatformManifest()")
		tui.SetUIState(tui.StManifestFailed)
		return nil, err
	}

	return buf[:n], nil
}

// WriteManifest fetches the manifest and writes it to path, optionally zstd
// compressed. The digest of the uncompressed manifest is recorded in the
// state file.
func (core *Core) WriteManifest(path string, compress bool) ([]byte, error) {
	manifest, err := core.FetchManifest()
	if err != nil {
		return nil, err
	}

	out := manifest
	if compress {
		out, err = util.ZStd(manifest)
		if err != nil {
			core.Log.Debug().Err(err).Msg("util.ZStd()")
			tui.SetUIState(tui.StManifestFailed)
			return nil, ErrCompress
		}
	}

	if path != "" {
		if err := os.WriteFile(path, out, 0600); err != nil {
			core.Log.Debug().Err(err).Msgf("os.WriteFile(%s)", path)
			tui.SetUIState(tui.StManifestFailed)
			return nil, ErrWriteOutput
		}
		// read back, the manifest is useless to the registration service if damaged
		digest, err := util.SHA256File(path)
		if err != nil || !bytes.Equal(digest, util.SHA256(out)) {
			core.Log.Debug().Err(err).Msgf("util.SHA256File(%s)", path)
			tui.SetUIState(tui.StManifestFailed)
			return nil, ErrWriteOutput
		}
	}
	tui.SetUIState(tui.StManifestWritten)

	core.State.RecordManifest(manifest, path, now())
	if err := core.storeState(); err != nil {
		core.Log.Warn().Msg("Failed to record manifest in state file")
	}

	return out, nil
}

func (core *Core) recordOutcome() {
	st, err := core.Registration.RegistrationDetails()
	if err != nil {
		core.Log.Debug().Err(err).Msg("registration.RegistrationDetails()")
		return
	}
	core.State.RecordOutcome(st.Registered, st.ErrorCode, now())
	if err := core.storeState(); err != nil {
		core.Log.Warn().Msg("Failed to record outcome in state file")
	}
}

// MarkComplete tells the BIOS that the platform is registered.
func (core *Core) MarkComplete() error {
	tui.SetUIState(tui.StMarkComplete)

	if err := core.Registration.MarkRegistrationComplete(); err != nil {
		core.Log.Debug().Err(err).Msg("registration.MarkRegistrationComplete()")
		tui.SetUIState(tui.StCompleteFailed)
		return err
	}
	tui.SetUIState(tui.StCompleteSuccess)

	core.recordOutcome()
	return nil
}

// SetErrorCode stores the outcome of a failed registration attempt.
func (core *Core) SetErrorCode(code api.RegistrationErrorCode) error {
	tui.SetUIState(tui.StSetErrorCode)

	if err := core.Registration.SetRegistrationErrorCode(code); err != nil {
		core.Log.Debug().Err(err).Msg("registration.SetRegistrationErrorCode()")
		tui.SetUIState(tui.StSetErrorCodeFailed)
		return err
	}
	tui.SetUIState(tui.StSetErrorCodeSuccess)

	core.recordOutcome()
	return nil
}

// SubmitCertificates answers an add-package request with the certificates
// stored in file.
func (core *Core) SubmitCertificates(file string) error {
	tui.SetUIState(tui.StSubmitCertificates)

	certs, err := os.ReadFile(file)
	if err != nil {
		core.Log.Debug().Err(err).Msgf("os.ReadFile(%s)", file)
		tui.SetUIState(tui.StSubmitFailed)
		return ErrReadInput
	}
	if util.IsZStd(certs) {
		certs, err = util.UnZStd(certs)
		if err != nil {
			core.Log.Debug().Err(err).Msgf("util.UnZStd(%s)", file)
			tui.SetUIState(tui.StSubmitFailed)
			return ErrReadInput
		}
	}

	if err := core.Registration.SubmitMembershipCertificates(certs); err != nil {
		core.Log.Debug().Err(err).Msg("registration.SubmitMembershipCertificates()")
		tui.SetUIState(tui.StSubmitFailed)
		return err
	}
	tui.SetUIState(tui.StSubmitSuccess)
	return nil
}

// Report gathers the platform report and returns it as canonical JSON.
func (core *Core) Report() (*api.PlatformReport, []byte, error) {
	tui.SetUIState(tui.StCollectReport)

	report := firmware.GatherPlatformReport(core.Registration, *core.ReleaseId)
	report.Created = now().UTC()

	buf, err := json.Marshal(report)
	if err != nil {
		core.Log.Debug().Err(err).Msg("json.Marshal(PlatformReport)")
		tui.SetUIState(tui.StReportFailed)
		return nil, nil, ErrEncodeJson
	}
	buf, err = jcs.Transform(buf)
	if err != nil {
		core.Log.Debug().Err(err).Msg("jcs.Transform(PlatformReport)")
		tui.SetUIState(tui.StReportFailed)
		return nil, nil, ErrEncodeJson
	}

	tui.SetUIState(tui.StReportWritten)
	tui.SetUIState(Readiness(&report))
	return &report, buf, nil
}

// Readiness picks the first link of the registration chain that is broken.
func Readiness(report *api.PlatformReport) tui.UIState {
	switch {
	case !report.CPU.SGX:
		return tui.StChainFailCPU
	case report.FeatureCtl.Enabled == nil || !*report.FeatureCtl.Enabled:
		return tui.StChainFailBIOS
	case !report.CPU.LaunchControl:
		return tui.StChainFailLaunchControl
	case report.Registration.Error != api.NoError || report.Registration.Result != api.Success.String():
		return tui.StChainFailVariables
	case report.Registration.Status != api.Registered:
		return tui.StChainFailRegistration
	default:
		return tui.StChainAllGood
	}
}
