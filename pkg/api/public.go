// Keep in sync with the registration server client's result codes
package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

type FirmwareError string

const (
	NoError        FirmwareError = ""
	UnknownError   FirmwareError = "unkn"
	NoPermission   FirmwareError = "no-perm"
	NoResponse     FirmwareError = "no-resp"
	NotImplemented FirmwareError = "not-impl"
)

// Result is the status code handed to the registration server client and the CLI.
type Result uint32

const (
	Success Result = iota
	NoPendingData
	InsufficientBuffer
	InvalidParameter
	UefiInternalError
	InsufficientPrivileges
)

var resultNames = map[Result]string{
	Success:                "success",
	NoPendingData:          "no-pending-data",
	InsufficientBuffer:     "insufficient-buffer",
	InvalidParameter:       "invalid-parameter",
	UefiInternalError:      "uefi-internal-error",
	InsufficientPrivileges: "insufficient-privileges",
}

func (r Result) String() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return fmt.Sprintf("result(%d)", uint32(r))
}

// MachineRegistrationStatus is the two-valued status exposed to collaborators.
type MachineRegistrationStatus uint32

const (
	NotRegistered MachineRegistrationStatus = iota
	Registered
)

func (s MachineRegistrationStatus) String() string {
	if s == Registered {
		return "registered"
	}
	return "not-registered"
}

func (s MachineRegistrationStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// StatusCode is the registration service status of the platform as shown
// to operators and monitoring. The numbers are stable.
type StatusCode int

const (
	Pending                      StatusCode = 0
	SgxUefiUnavailable           StatusCode = 1
	RetryNeeded                  StatusCode = 2
	SgxResetNeeded               StatusCode = 3
	UefiPersistFailed            StatusCode = 4
	PlatformRebootNeeded         StatusCode = 5
	PlatformDirectlyRegistered   StatusCode = 9
	IntelConnectFailed           StatusCode = 10
	InvalidRegistrationRequest   StatusCode = 11
	IntelRegServiceRequestFailed StatusCode = 12
	UnknownStatus                StatusCode = 99
)

var statusCodeTexts = map[StatusCode][2]string{
	Pending:                      {"Pending", "registration in progress"},
	SgxUefiUnavailable:           {"SgxUefiUnavailable", "SGX UEFI variables not available"},
	RetryNeeded:                  {"RetryNeeded", "registration status undetermined, try again"},
	SgxResetNeeded:               {"SgxResetNeeded", "registration status undetermined, reset SGX in the BIOS"},
	UefiPersistFailed:            {"UefiPersistFailed", "cannot write the UEFI registration variables"},
	PlatformRebootNeeded:         {"PlatformRebootNeeded", "registration done, reboot to complete"},
	PlatformDirectlyRegistered:   {"PlatformDirectlyRegistered", "platform registered"},
	IntelConnectFailed:           {"IntelConnectFailed", "registration server unreachable"},
	InvalidRegistrationRequest:   {"InvalidRegistrationRequest", "registration server rejected the request"},
	IntelRegServiceRequestFailed: {"IntelRegServiceRequestFailed", "registration server failed to process the request"},
}

func (s StatusCode) String() string {
	if t, ok := statusCodeTexts[s]; ok {
		return t[0]
	}
	return "UnknownError"
}

// Description is a one line explanation of s for humans.
func (s StatusCode) Description() string {
	if t, ok := statusCodeTexts[s]; ok {
		return t[1]
	}
	return "unknown error"
}

// RegistrationErrorCode is the one byte error field of the registration
// status variable. The values are shared with the BIOS: 0x80..0x87 are
// agent side failures, 0xa0..0xa8 are rejections by the registration server.
type RegistrationErrorCode uint8

const (
	ErrorCodeSuccess RegistrationErrorCode = 0x00

	ErrorCodeAgentUnexpectedError     RegistrationErrorCode = 0x80
	ErrorCodeAgentOutOfMemory         RegistrationErrorCode = 0x81
	ErrorCodeAgentNetworkError        RegistrationErrorCode = 0x82
	ErrorCodeAgentInvalidParameter    RegistrationErrorCode = 0x83
	ErrorCodeAgentInternalServerError RegistrationErrorCode = 0x84
	ErrorCodeAgentServerTimeout       RegistrationErrorCode = 0x85
	ErrorCodeAgentBiosProtocolError   RegistrationErrorCode = 0x86
	ErrorCodeAgentUnauthorized        RegistrationErrorCode = 0x87

	ErrorCodeServerInvalidRequestSyntax      RegistrationErrorCode = 0xa0
	ErrorCodeServerInvalidRegistrationServer RegistrationErrorCode = 0xa1
	ErrorCodeServerInvalidOrRevokedPackage   RegistrationErrorCode = 0xa2
	ErrorCodeServerPackageNotFound           RegistrationErrorCode = 0xa3
	ErrorCodeServerIncompatiblePackage       RegistrationErrorCode = 0xa4
	ErrorCodeServerInvalidPlatformManifest   RegistrationErrorCode = 0xa5
	ErrorCodeServerPlatformNotFound          RegistrationErrorCode = 0xa6
	ErrorCodeServerInvalidAddRequest         RegistrationErrorCode = 0xa7
	ErrorCodeServerUnknownError              RegistrationErrorCode = 0xa8
)

var errorCodeNames = map[RegistrationErrorCode]string{
	ErrorCodeSuccess:                         "success",
	ErrorCodeAgentUnexpectedError:            "agent-unexpected-error",
	ErrorCodeAgentOutOfMemory:                "agent-out-of-memory",
	ErrorCodeAgentNetworkError:               "agent-network-error",
	ErrorCodeAgentInvalidParameter:           "agent-invalid-parameter",
	ErrorCodeAgentInternalServerError:        "agent-internal-server-error",
	ErrorCodeAgentServerTimeout:              "agent-server-timeout",
	ErrorCodeAgentBiosProtocolError:          "agent-bios-protocol-error",
	ErrorCodeAgentUnauthorized:               "agent-unauthorized",
	ErrorCodeServerInvalidRequestSyntax:      "server-invalid-request-syntax",
	ErrorCodeServerInvalidRegistrationServer: "server-invalid-registration-server",
	ErrorCodeServerInvalidOrRevokedPackage:   "server-invalid-or-revoked-package",
	ErrorCodeServerPackageNotFound:           "server-package-not-found",
	ErrorCodeServerIncompatiblePackage:       "server-incompatible-package",
	ErrorCodeServerInvalidPlatformManifest:   "server-invalid-platform-manifest",
	ErrorCodeServerPlatformNotFound:          "server-platform-not-found",
	ErrorCodeServerInvalidAddRequest:         "server-invalid-add-request",
	ErrorCodeServerUnknownError:              "server-unknown-error",
}

// IsServerRejection reports whether c is one of the registration server codes.
func (c RegistrationErrorCode) IsServerRejection() bool {
	return c >= ErrorCodeServerInvalidRequestSyntax && c <= ErrorCodeServerUnknownError
}

func (c RegistrationErrorCode) String() string {
	if s, ok := errorCodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("0x%02x", uint8(c))
}

func (c RegistrationErrorCode) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *RegistrationErrorCode) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	v, err := ParseRegistrationErrorCode(str)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseRegistrationErrorCode accepts either a symbolic name or a number.
func ParseRegistrationErrorCode(s string) (RegistrationErrorCode, error) {
	for code, name := range errorCodeNames {
		if name == s {
			return code, nil
		}
	}
	var v uint8
	if _, err := fmt.Sscan(s, &v); err != nil {
		return 0, fmt.Errorf("unknown registration error code '%s'", s)
	}
	return RegistrationErrorCode(v), nil
}

// Buffer is a byte string that serializes as lower case hex.
type Buffer []byte

func (b Buffer) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

func (b *Buffer) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	buf, err := hex.DecodeString(str)
	if err != nil {
		return err
	}
	*b = buf
	return nil
}

const ReportType = "sgxreg-report/1"

// PlatformReport is written by the report command.
type PlatformReport struct {
	Type         string           `json:"type"`
	Release      string           `json:"release"`
	Created      time.Time        `json:"created"`
	CPU          CPUInfo          `json:"cpu"`
	FeatureCtl   MSR              `json:"feature_control"`
	BIOS         BIOSInfo         `json:"bios"`
	OS           OS               `json:"os"`
	Firmware     *FirmwareDevices `json:"firmware,omitempty"`
	Registration Registration     `json:"registration"`
}

type CPUInfo struct {
	Vendor        string        `json:"vendor"`
	Brand         string        `json:"brand,omitempty"`
	SGX           bool          `json:"sgx"`
	SGX1          bool          `json:"sgx1"`
	SGX2          bool          `json:"sgx2"`
	LaunchControl bool          `json:"flc"`
	EPCSections   []EPCSection  `json:"epc_sections,omitempty"`
	Error         FirmwareError `json:"error,omitempty"` // FirmwareErr*
}

type EPCSection struct {
	Base uint64 `json:"base,string"`
	Size uint64 `json:"size,string"`
}

type MSR struct {
	MSR     uint32        `json:"msr,string"`
	Values  []uint64      `json:"value,omitempty"`
	Enabled *bool         `json:"sgx_enabled,omitempty"`
	Locked  *bool         `json:"locked,omitempty"`
	Error   FirmwareError `json:"error,omitempty"` // FirmwareErr*
}

type BIOSInfo struct {
	Vendor      string        `json:"vendor,omitempty"`
	Version     string        `json:"version,omitempty"`
	ReleaseDate string        `json:"release_date,omitempty"`
	SMBIOS      string        `json:"smbios,omitempty"`
	Error       FirmwareError `json:"error,omitempty"` // FirmwareErr*
}

type OS struct {
	Hostname string        `json:"hostname,omitempty"`
	Release  string        `json:"release,omitempty"`
	Kernel   string        `json:"kernel,omitempty"`
	Error    FirmwareError `json:"error,omitempty"` // FirmwareErr*
}

// FirmwareDevices lists the system firmware fwupd knows about.
type FirmwareDevices struct {
	FWUPdVersion string           `json:"fwupd_version,omitempty"`
	System       []FirmwareDevice `json:"system,omitempty"`
	Error        FirmwareError    `json:"error,omitempty"` // FirmwareErr*
}

type FirmwareDevice struct {
	Name    string `json:"name"`
	Plugin  string `json:"plugin"`
	Version string `json:"version"`
	Flags   uint64 `json:"flags,string"`
}

type Registration struct {
	Status          MachineRegistrationStatus `json:"status"`
	ServiceStatus   StatusCode                `json:"service_status"`
	PackageInfoDone bool                      `json:"package_info_done"`
	ErrorCode       RegistrationErrorCode     `json:"error_code"`
	PendingRequest  string                    `json:"pending_request"`
	ManifestSize    int                       `json:"manifest_size,omitempty"`
	Result          string                    `json:"result,omitempty"`
	Error           FirmwareError             `json:"error,omitempty"` // FirmwareErr*
}
