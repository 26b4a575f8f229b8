package osinfo

import (
	"io/fs"
	"testing"

	"github.com/shirou/gopsutil/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/api"
)

func withHostInfo(t *testing.T, info *host.InfoStat, err error) {
	saved := hostInfo
	t.Cleanup(func() { hostInfo = saved })
	hostInfo = func() (*host.InfoStat, error) { return info, err }
}

func TestReportOSInfo(t *testing.T) {
	withHostInfo(t, &host.InfoStat{
		Hostname:        "sgx-node-1",
		Platform:        "ubuntu",
		PlatformVersion: "22.04",
		KernelVersion:   "5.15.0-60-generic",
	}, nil)

	var info api.OS
	require.NoError(t, ReportOSInfo(&info))
	assert.Equal(t, api.OS{Hostname: "sgx-node-1", Release: "ubuntu 22.04", Kernel: "5.15.0-60-generic"}, info)
}

func TestReportOSInfoFailure(t *testing.T) {
	withHostInfo(t, nil, fs.ErrPermission)

	var info api.OS
	assert.Error(t, ReportOSInfo(&info))
	assert.Equal(t, api.NoPermission, info.Error)
}
