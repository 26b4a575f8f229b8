package msr

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/cpu"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/api"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/common"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/util"
)

// IA32_FEATURE_CONTROL and the bits the BIOS sets when it enables SGX
const (
	IA32FeatureControl uint32 = 0x3a

	featureControlLock      uint64 = 1 << 0
	featureControlSGXLC     uint64 = 1 << 17
	featureControlSGXEnable uint64 = 1 << 18
)

// replaced in tests
var (
	readMSR   = platformReadMSR
	coreCount = func() (int, error) { return cpu.Counts(true) }
)

func reportMSR(msr *api.MSR) error {
	cores, err := coreCount()
	if err != nil {
		return err
	}

	var values []uint64
	completeFailure := true
	for i := 0; i < cores; i++ {
		var value uint64
		// -> if at least one readout works, there is no error
		value, err = readMSR(uint32(i), msr.MSR)
		if err != nil {
			log.Trace().Msgf("[MSR] couldn't read msr %x on core %d: %s", msr.MSR, i, err)
			continue
		}
		completeFailure = false
		values = append(values, value)
	}

	if completeFailure {
		return fmt.Errorf("couldn't read msr %x: %w", msr.MSR, err)
	}

	msr.Values = values
	return nil
}

// ReportFeatureControl reads IA32_FEATURE_CONTROL on every core. SGX only
// counts as enabled and locked if all cores agree.
func ReportFeatureControl(msr *api.MSR) error {
	log.Trace().Msg("ReportFeatureControl()")

	msr.MSR = IA32FeatureControl
	if err := reportMSR(msr); err != nil {
		log.Debug().Err(err).Msg("msr")
		msr.Error = common.ServeApiError(common.MapFSErrors(err))
		log.Warn().Msg("Failed to access model specific registers")
		if runtime.GOOS == "linux" {
			loaded, err := util.IsKernelModuleLoaded("msr")
			if err != nil {
				log.Warn().Msgf("error checking if msr kernel module is loaded: %v", err.Error())
			} else if !loaded {
				log.Warn().Msg("msr kernel module is not loaded")
			}
		}
		return err
	}

	enabled, locked := true, true
	for _, v := range msr.Values {
		enabled = enabled && v&featureControlSGXEnable != 0
		locked = locked && v&featureControlLock != 0
		if v != msr.Values[0] {
			log.Warn().Msgf("IA32_FEATURE_CONTROL differs between cores: %#x != %#x", v, msr.Values[0])
		}
	}
	msr.Enabled = &enabled
	msr.Locked = &locked

	if !enabled {
		log.Warn().Msg("SGX is not enabled by the BIOS")
	} else if msr.Values[0]&featureControlSGXLC == 0 {
		log.Debug().Msg("SGX launch control is not enabled by the BIOS")
	}
	return nil
}
