package osinfo

import (
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/host"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/api"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/common"
)

// replaced in tests
var hostInfo = host.Info

func ReportOSInfo(osInfo *api.OS) error {
	log.Trace().Msg("ReportOSInfo()")

	info, err := hostInfo()
	if err != nil {
		osInfo.Error = common.ServeApiError(common.MapFSErrors(err))
		log.Debug().Msgf("osinfo.ReportOSInfo(): %s", err.Error())
		log.Warn().Msgf("Failed to gather host informations")
		return err
	}

	osInfo.Hostname = info.Hostname
	osInfo.Release = info.Platform
	if info.PlatformVersion != "" {
		osInfo.Release += " " + info.PlatformVersion
	}
	osInfo.Kernel = info.KernelVersion
	return nil
}
