package firmware

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/api"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/common"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/cpuid"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/fwupd"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/mpuefi"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/msr"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/osinfo"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/smbios"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/uefivars"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/registration"
)

// GatherPlatformReport collects everything needed to judge why a platform
// does or does not register. Error handling and logging is mostly left to
// the leaf functions. If part of the report fails, it is simply omitted and
// the error member of the struct is set.
func GatherPlatformReport(reg *registration.Registration, release string) api.PlatformReport {
	log.Trace().Msg("start gathering platform report")

	report := api.PlatformReport{
		Type:    api.ReportType,
		Release: release,
		Created: time.Now().UTC(),
	}

	// CPUID leaf 0x12
	cpuid.ReportSGX(&report.CPU)

	// IA32_FEATURE_CONTROL
	if cpuid.Vendor() == cpuid.VendorIntel {
		msr.ReportFeatureControl(&report.FeatureCtl)
	} else {
		report.FeatureCtl.MSR = msr.IA32FeatureControl
		report.FeatureCtl.Error = api.NotImplemented
	}

	// System Management BIOS
	smbios.ReportBIOS(&report.BIOS)

	// Operating System information
	osinfo.ReportOSInfo(&report.OS)

	// FWUPD system firmware devices
	report.Firmware = new(api.FirmwareDevices)
	if err := fwupd.ReportFWUPD(report.Firmware); err != nil {
		report.Firmware = nil
	}

	// registration variables
	ReportRegistration(reg, &report.Registration)

	log.Trace().Msg("done gathering report data")
	return report
}

// ReportRegistration fills out with the state of the registration variables.
func ReportRegistration(reg *registration.Registration, out *api.Registration) error {
	log.Trace().Msg("ReportRegistration()")

	details, err := reg.RegistrationDetails()
	if err != nil {
		out.Result = registration.ResultOf(err).String()
		out.Error = registrationApiError(err)
		out.ServiceStatus = registration.ReadStatusCode(err)
		log.Debug().Err(err).Msg("registration.RegistrationDetails()")
		log.Warn().Msg("Failed to read SGX registration status")
		return err
	}
	out.Status = api.NotRegistered
	if details.Registered {
		out.Status = api.Registered
	}
	out.PackageInfoDone = details.PackageInfoDone
	out.ErrorCode = details.ErrorCode

	ty, err := reg.PendingRequestType()
	if err != nil {
		out.Result = registration.ResultOf(err).String()
		out.Error = registrationApiError(err)
		out.ServiceStatus = registration.ReadStatusCode(err)
		log.Debug().Err(err).Msg("registration.PendingRequestType()")
		log.Warn().Msg("Failed to read SGX registration request")
		return err
	}
	out.PendingRequest = ty.String()
	out.ServiceStatus = registration.Classify(details, ty)

	if ty == mpuefi.RequestRegistration {
		size, err := reg.PlatformManifestSize()
		if err != nil && !errors.Is(err, mpuefi.ErrNoPendingData) {
			log.Debug().Err(err).Msg("registration.PlatformManifestSize()")
		}
		out.ManifestSize = size
	}
	out.Result = api.Success.String()
	return nil
}

func registrationApiError(err error) api.FirmwareError {
	switch {
	case errors.Is(err, uefivars.ErrPermissionDenied):
		return api.NoPermission
	case errors.Is(err, uefivars.ErrNotFound):
		return api.NoResponse
	default:
		return common.ServeApiError(common.MapFSErrors(err))
	}
}
