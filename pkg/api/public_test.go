package api

import (
	"bytes"
	"encoding/json"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEmptyBuffer(t *testing.T) {
	buf1, err := json.Marshal(Buffer{})
	if err != nil {
		t.Fatal(err)
	}

	if string(buf1) != `""` {
		t.Fatalf("json serialization of empty Buffer is not the empty string")
	}
}

func TestDecodeEmptyBuffer(t *testing.T) {
	var buf1 Buffer
	err := json.Unmarshal([]byte(`""`), &buf1)
	if err != nil {
		t.Fatal(err)
	}

	if len(buf1) != 0 {
		t.Fatalf("an empty string does not deserialize to the empty buffer")
	}
}

func TestBufferPropTest(t *testing.T) {
	f := func(buf1 Buffer) bool {
		dat, err := json.Marshal(buf1)
		if err != nil {
			t.Fatal(err)
		}

		var buf2 Buffer
		err = json.Unmarshal(dat, &buf2)
		if err != nil {
			t.Fatal(err)
		}

		return bytes.Equal(buf1, buf2)
	}

	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestErrorCodeJSON(t *testing.T) {
	f := func(v uint8) bool {
		code := RegistrationErrorCode(v)
		dat, err := json.Marshal(code)
		if err != nil {
			t.Fatal(err)
		}

		var code2 RegistrationErrorCode
		if err := json.Unmarshal(dat, &code2); err != nil {
			t.Fatal(err)
		}
		return code == code2
	}

	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestRegistrationErrorCodeValues(t *testing.T) {
	// the BIOS interprets these bytes, they must never change
	codes := map[string]uint8{
		"success":                            0x00,
		"agent-unexpected-error":             0x80,
		"agent-out-of-memory":                0x81,
		"agent-network-error":                0x82,
		"agent-invalid-parameter":            0x83,
		"agent-internal-server-error":        0x84,
		"agent-server-timeout":               0x85,
		"agent-bios-protocol-error":          0x86,
		"agent-unauthorized":                 0x87,
		"server-invalid-request-syntax":      0xa0,
		"server-invalid-registration-server": 0xa1,
		"server-invalid-or-revoked-package":  0xa2,
		"server-package-not-found":           0xa3,
		"server-incompatible-package":        0xa4,
		"server-invalid-platform-manifest":   0xa5,
		"server-platform-not-found":          0xa6,
		"server-invalid-add-request":         0xa7,
		"server-unknown-error":               0xa8,
	}
	assert.Len(t, errorCodeNames, len(codes))

	for name, value := range codes {
		code, err := ParseRegistrationErrorCode(name)
		require.NoError(t, err, name)
		assert.Equal(t, value, uint8(code), name)
		assert.Equal(t, name, RegistrationErrorCode(value).String())
	}
}

func TestIsServerRejection(t *testing.T) {
	assert.True(t, ErrorCodeServerInvalidRequestSyntax.IsServerRejection())
	assert.True(t, ErrorCodeServerUnknownError.IsServerRejection())
	assert.False(t, ErrorCodeSuccess.IsServerRejection())
	assert.False(t, ErrorCodeAgentUnauthorized.IsServerRejection())
	assert.False(t, RegistrationErrorCode(0xa9).IsServerRejection())
}

func TestParseRegistrationErrorCode(t *testing.T) {
	code, err := ParseRegistrationErrorCode("agent-network-error")
	require.NoError(t, err)
	assert.Equal(t, ErrorCodeAgentNetworkError, code)

	code, err = ParseRegistrationErrorCode("0xa8")
	require.NoError(t, err)
	assert.Equal(t, ErrorCodeServerUnknownError, code)

	code, err = ParseRegistrationErrorCode("134")
	require.NoError(t, err)
	assert.Equal(t, ErrorCodeAgentBiosProtocolError, code)

	_, err = ParseRegistrationErrorCode("bogus")
	assert.Error(t, err)
	_, err = ParseRegistrationErrorCode("256")
	assert.Error(t, err)
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "0x7f", RegistrationErrorCode(0x7f).String())
	assert.Equal(t, "insufficient-privileges", InsufficientPrivileges.String())
	assert.Equal(t, "result(17)", Result(17).String())
	assert.Equal(t, "registered", Registered.String())
	assert.Equal(t, "not-registered", NotRegistered.String())
}

func TestStatusCodeStrings(t *testing.T) {
	assert.Equal(t, "Pending", Pending.String())
	assert.Equal(t, "PlatformRebootNeeded", StatusCode(5).String())
	assert.Equal(t, "PlatformDirectlyRegistered", StatusCode(9).String())
	assert.Equal(t, "IntelRegServiceRequestFailed", StatusCode(12).String())
	assert.Equal(t, "UnknownError", UnknownStatus.String())
	assert.Equal(t, "UnknownError", StatusCode(7).String())
	assert.Equal(t, "registration done, reboot to complete", PlatformRebootNeeded.Description())
	assert.Equal(t, "unknown error", StatusCode(99).Description())

	buf, err := json.Marshal(Registration{ServiceStatus: IntelConnectFailed})
	assert.NoError(t, err)
	assert.Contains(t, string(buf), `"service_status":10`)
}
