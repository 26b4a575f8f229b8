package fwupd

import (
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/api"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/common"
)

// fwupd device flag marking the platform firmware
const deviceFlagInternal uint64 = 1 << 0

// plugins that manage the BIOS of a machine
var biosPlugins = map[string]bool{
	"uefi_capsule": true,
	"uefi":         true,
	"bios":         true,
}

// ReportFWUPD asks fwupd for the system firmware devices it manages. A
// pending BIOS update will make the firmware request a new registration
// after the next reboot.
func ReportFWUPD(devs *api.FirmwareDevices) error {
	log.Trace().Msg("ReportFWUPD()")

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		devs.Error = common.ServeApiError(common.ErrorNoResponse(err))
		log.Debug().Msgf("fwupd.ReportFWUPD(): %s", err.Error())
		log.Warn().Msgf("Failed to connect to FWUPD via DBUS")
		return err
	}
	defer conn.Close()

	obj := conn.Object("org.freedesktop.fwupd", "/")
	v, err := obj.GetProperty("org.freedesktop.fwupd.DaemonVersion")
	if err != nil {
		devs.Error = common.ServeApiError(common.ErrorNoResponse(err))
		log.Debug().Msgf("fwupd.ReportFWUPD(): %s", err.Error())
		log.Warn().Msgf("Failed to get FWUPD version info")
		return err
	}
	if str, ok := v.Value().(string); ok {
		devs.FWUPdVersion = str
	}

	var devices []map[string]dbus.Variant
	err = obj.Call("org.freedesktop.fwupd.GetDevices", 0).Store(&devices)
	if err != nil {
		devs.Error = api.UnknownError
		log.Debug().Msgf("fwupd.ReportFWUPD(): %s", err.Error())
		log.Warn().Msgf("Failed to get FWUPD devices")
		return err
	}

	devs.System = systemFirmware(devices)
	return nil
}

func variantString(dev map[string]dbus.Variant, key string) string {
	if v, ok := dev[key]; ok {
		if str, ok := v.Value().(string); ok {
			return str
		}
	}
	return ""
}

func variantUint64(dev map[string]dbus.Variant, key string) uint64 {
	if v, ok := dev[key]; ok {
		if n, ok := v.Value().(uint64); ok {
			return n
		}
	}
	return 0
}

func systemFirmware(devices []map[string]dbus.Variant) []api.FirmwareDevice {
	var ret []api.FirmwareDevice
	for _, dev := range devices {
		plugin := variantString(dev, "Plugin")
		flags := variantUint64(dev, "Flags")
		if !biosPlugins[plugin] || flags&deviceFlagInternal == 0 {
			continue
		}

		ret = append(ret, api.FirmwareDevice{
			Name:    variantString(dev, "Name"),
			Plugin:  plugin,
			Version: variantString(dev, "Version"),
			Flags:   flags,
		})
	}
	return ret
}
