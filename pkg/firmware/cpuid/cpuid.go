package cpuid

import (
	"github.com/klauspost/cpuid/v2"
	"github.com/rs/zerolog/log"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/api"
)

type CPUVendor uint

const (
	VendorOther CPUVendor = iota
	VendorIntel
	VendorAMD
)

// detected CPU, replaced in tests
var cpu = &cpuid.CPU

func Vendor() CPUVendor {
	switch cpu.VendorID {
	case cpuid.Intel:
		return VendorIntel
	case cpuid.AMD:
		return VendorAMD
	default:
		return VendorOther
	}
}

// ReportSGX fills info with the SGX capabilities advertised by CPUID leaf
// 0x12. This says nothing about whether the BIOS enabled SGX, see
// IA32_FEATURE_CONTROL for that.
func ReportSGX(info *api.CPUInfo) {
	log.Trace().Msg("ReportSGX()")

	info.Vendor = cpu.VendorString
	info.Brand = cpu.BrandName
	if cpu.VendorID != cpuid.Intel {
		log.Debug().Str("vendor", cpu.VendorString).Msg("not an Intel CPU, no SGX")
		info.Error = api.NotImplemented
		return
	}

	sgx := cpu.SGX
	info.SGX = sgx.Available
	info.SGX1 = sgx.SGX1Supported
	info.SGX2 = sgx.SGX2Supported
	info.LaunchControl = sgx.LaunchControl
	info.EPCSections = nil
	for _, sec := range sgx.EPCSections {
		info.EPCSections = append(info.EPCSections, api.EPCSection{
			Base: sec.BaseAddress,
			Size: sec.EPCSize,
		})
	}

	if !sgx.Available {
		log.Warn().Msg("CPU does not support SGX")
	} else if !sgx.LaunchControl {
		log.Warn().Msg("CPU does not support flexible launch control")
	}
}
