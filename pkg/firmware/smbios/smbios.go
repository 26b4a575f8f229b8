package smbios

import (
	"fmt"

	"github.com/digitalocean/go-smbios/smbios"
	"github.com/rs/zerolog/log"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/api"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/common"
)

const biosInformationType = 0

// offsets of the string indices in the formatted part of the type 0 structure
const (
	biosVendorIdx      = 0
	biosVersionIdx     = 1
	biosReleaseDateIdx = 4
)

// replaced in tests
var readSMBIOS = func() ([]*smbios.Structure, smbios.EntryPoint, error) {
	rc, ep, err := smbios.Stream()
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	structs, err := smbios.NewDecoder(rc).Decode()
	if err != nil {
		return nil, nil, err
	}
	return structs, ep, nil
}

// ReportBIOS fills info from the SMBIOS BIOS Information structure. A BIOS
// update is what makes the firmware ask for a new registration, so the
// version is worth recording next to the registration status.
func ReportBIOS(info *api.BIOSInfo) error {
	log.Trace().Msg("ReportBIOS()")

	structs, ep, err := readSMBIOS()
	if err != nil {
		info.Error = common.ServeApiError(common.MapFSErrors(err))
		log.Debug().Msgf("smbios.ReportBIOS(): %s", err.Error())
		log.Warn().Msgf("Failed to get SMBIOS tables")
		return err
	}

	major, minor, rev := ep.Version()
	info.SMBIOS = fmt.Sprintf("%d.%d.%d", major, minor, rev)

	if err := parseBIOSInformation(structs, info); err != nil {
		info.Error = api.UnknownError
		log.Debug().Err(err).Msg("smbios.parseBIOSInformation()")
		return err
	}
	return nil
}

func parseBIOSInformation(structs []*smbios.Structure, info *api.BIOSInfo) error {
	for _, s := range structs {
		if s.Header.Type != biosInformationType {
			continue
		}
		if len(s.Formatted) <= biosReleaseDateIdx {
			return fmt.Errorf("bios information structure too short: %d bytes", len(s.Formatted))
		}

		info.Vendor = structString(s, s.Formatted[biosVendorIdx])
		info.Version = structString(s, s.Formatted[biosVersionIdx])
		info.ReleaseDate = structString(s, s.Formatted[biosReleaseDateIdx])
		return nil
	}
	return fmt.Errorf("no bios information structure")
}

// string indices are one based, zero means no string
func structString(s *smbios.Structure, idx uint8) string {
	if idx == 0 || int(idx) > len(s.Strings) {
		return ""
	}
	return s.Strings[idx-1]
}
