package fwupd

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/api"
)

func TestSystemFirmware(t *testing.T) {
	devices := []map[string]dbus.Variant{
		{
			"Name":    dbus.MakeVariant("System Firmware"),
			"Plugin":  dbus.MakeVariant("uefi_capsule"),
			"Version": dbus.MakeVariant("1.5.2"),
			"Flags":   dbus.MakeVariant(uint64(0x1003)),
		},
		{
			"Name":    dbus.MakeVariant("Thunderbolt Controller"),
			"Plugin":  dbus.MakeVariant("thunderbolt"),
			"Version": dbus.MakeVariant("41.00"),
			"Flags":   dbus.MakeVariant(uint64(0x1)),
		},
		{
			"Name":   dbus.MakeVariant("UEFI dbx"),
			"Plugin": dbus.MakeVariant("uefi_capsule"),
			"Flags":  dbus.MakeVariant(uint64(0x2)),
		},
		{
			"Name": dbus.MakeVariant(42),
		},
	}

	assert.Equal(t, []api.FirmwareDevice{{
		Name:    "System Firmware",
		Plugin:  "uefi_capsule",
		Version: "1.5.2",
		Flags:   0x1003,
	}}, systemFirmware(devices))

	assert.Nil(t, systemFirmware(nil))
}
