// Package mpuefi implements the multi-package registration protocol spoken
// through firmware variables: a request variable written by the BIOS, a
// status variable shared by BIOS and agent and a response variable written
// by the agent.
//
// The codec keeps no state. Every call reads the variable again because the
// BIOS may replace it at any time, e.g. after a firmware update or reboot.
package mpuefi

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/uefivars"
)

// Variable vendor GUIDs
var (
	ServerRequestVendor  = uuid.MustParse("304e0796-d515-4698-ac6e-e76cb1a71c28")
	StatusVendor         = uuid.MustParse("f236c5dc-a491-4bbe-bcdd-88885770df45")
	ServerResponseVendor = uuid.MustParse("89589c7b-b2d9-4fc9-bcda-463b4cb6ac52")
)

// Variable file names below the efivarfs root
var (
	ServerRequestVariable  = uefivars.VariableName("SgxRegistrationServerRequest", ServerRequestVendor)
	StatusVariable         = uefivars.VariableName("SgxRegistrationStatus", StatusVendor)
	ServerResponseVariable = uefivars.VariableName("SgxRegistrationServerResponse", ServerResponseVendor)
)

// Payload type GUIDs carried inside the request and response envelopes
var (
	PlatformManifestGUID              = uuid.MustParse("178e874b-49e4-4aa5-b95e-5b2d440458d7")
	AddPackageGUID                    = uuid.MustParse("2fea6e11-bb0a-4b49-a7d4-62c2a02f2cdf")
	PlatformMembershipCertificateGUID = uuid.MustParse("ce5ad9a4-3cbb-4cf1-bb5e-0d4a9ea5d1e6")
)

// Protocol versions
const (
	Version1 uint16 = 1
	Version2 uint16 = 2
)

type ProtocolError string

func (e ProtocolError) Error() string {
	return string(e)
}

const (
	// ErrStructural means the variable bytes violate the layout, version, size or GUID rules.
	ErrStructural = ProtocolError("malformed registration variable")
	// ErrNoPendingData means the BIOS has no request for the agent.
	ErrNoPendingData = ProtocolError("no pending request")
	// ErrInsufficientBuffer is matched by *InsufficientBufferError.
	ErrInsufficientBuffer = ProtocolError("insufficient buffer")
)

// ErrPermissionDenied is passed through from the variable store unchanged.
const ErrPermissionDenied = uefivars.ErrPermissionDenied

// InsufficientBufferError carries the buffer size needed to retry a read.
type InsufficientBufferError struct {
	Required int
}

func (e *InsufficientBufferError) Error() string {
	return fmt.Sprintf("%s: need %d bytes", string(ErrInsufficientBuffer), e.Required)
}

func (e *InsufficientBufferError) Is(target error) bool {
	return target == ErrInsufficientBuffer
}

// VariableStore is the raw variable access the codec builds on.
// *uefivars.Store implements it.
type VariableStore interface {
	Read(name string) ([]byte, error)
	Write(name string, data []byte, createIfAbsent bool) (int, error)
}

type Codec struct {
	store VariableStore
}

func New(store VariableStore) *Codec {
	return &Codec{store: store}
}
