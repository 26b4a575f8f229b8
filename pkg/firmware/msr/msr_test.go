package msr

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/api"
)

func withMSRs(t *testing.T, values map[uint32]uint64, err error) {
	savedRead, savedCount := readMSR, coreCount
	t.Cleanup(func() { readMSR, coreCount = savedRead, savedCount })

	coreCount = func() (int, error) { return 4, nil }
	readMSR = func(core uint32, msr uint32) (uint64, error) {
		if v, ok := values[core]; ok && msr == IA32FeatureControl {
			return v, nil
		}
		if err != nil {
			return 0, err
		}
		return 0, fs.ErrNotExist
	}
}

func TestFeatureControlEnabled(t *testing.T) {
	v := featureControlLock | featureControlSGXEnable | featureControlSGXLC
	withMSRs(t, map[uint32]uint64{0: v, 1: v, 2: v, 3: v}, nil)

	var msr api.MSR
	require.NoError(t, ReportFeatureControl(&msr))
	assert.Equal(t, IA32FeatureControl, msr.MSR)
	assert.Len(t, msr.Values, 4)
	require.NotNil(t, msr.Enabled)
	require.NotNil(t, msr.Locked)
	assert.True(t, *msr.Enabled)
	assert.True(t, *msr.Locked)
}

func TestFeatureControlPartial(t *testing.T) {
	withMSRs(t, map[uint32]uint64{
		0: featureControlLock | featureControlSGXEnable,
		2: featureControlLock,
	}, nil)

	var msr api.MSR
	require.NoError(t, ReportFeatureControl(&msr))
	assert.Equal(t, []uint64{featureControlLock | featureControlSGXEnable, featureControlLock}, msr.Values)
	assert.False(t, *msr.Enabled)
	assert.True(t, *msr.Locked)
}

func TestFeatureControlUnreadable(t *testing.T) {
	withMSRs(t, nil, fs.ErrPermission)

	var msr api.MSR
	err := ReportFeatureControl(&msr)
	assert.True(t, errors.Is(err, fs.ErrPermission))
	assert.Equal(t, api.NoPermission, msr.Error)
	assert.Nil(t, msr.Enabled)
	assert.Empty(t, msr.Values)
}
