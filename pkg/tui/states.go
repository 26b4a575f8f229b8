package tui

import "io"

type UIState uint32

const (
	StReadStatus UIState = iota
	StFetchManifest
	StManifestWritten
	StManifestFailed
	StNoPendingRequest
	StMarkComplete
	StCompleteSuccess
	StCompleteFailed
	StSetErrorCode
	StSetErrorCodeSuccess
	StSetErrorCodeFailed
	StSubmitCertificates
	StSubmitSuccess
	StSubmitFailed
	StCollectReport
	StReportWritten
	StReportFailed
	StNoRoot
	StNoEfivars
	StPlatformRegistered
	StPlatformNotRegistered
	StChainAllGood
	StChainFailCPU
	StChainFailBIOS
	StChainFailLaunchControl
	StChainFailVariables
	StChainFailRegistration
)

// SetUIState globally sets the state and thus choses the view that should render
func SetUIState(state UIState) {
	if Out != io.Discard {
		switch state {
		case StReadStatus:
			showSpinner("Read registration status")
		case StFetchManifest:
			completeLastStep(true)
			showSpinner("Fetch platform manifest")
		case StManifestWritten:
			showStepDone("Platform manifest written", true)
		case StManifestFailed:
			showStepDone("Failed to fetch platform manifest", false)
		case StNoPendingRequest:
			showStepDone("No platform manifest pending", true)
		case StMarkComplete:
			completeLastStep(true)
			showSpinner("Report registration complete to the BIOS")
		case StCompleteSuccess:
			showStepDone("Platform marked as registered", true)
		case StCompleteFailed:
			showStepDone("Failed to update registration status", false)
		case StSetErrorCode:
			completeLastStep(true)
			showSpinner("Store registration error code")
		case StSetErrorCodeSuccess:
			showStepDone("Error code stored", true)
		case StSetErrorCodeFailed:
			showStepDone("Failed to store error code", false)
		case StSubmitCertificates:
			completeLastStep(true)
			showSpinner("Submit platform membership certificates")
		case StSubmitSuccess:
			showStepDone("Certificates handed to the BIOS", true)
		case StSubmitFailed:
			showStepDone("Failed to submit certificates", false)
		case StCollectReport:
			showSpinner("Compile platform report")
		case StReportWritten:
			showStepDone("Platform report written", true)
		case StReportFailed:
			showStepDone("Failed to write platform report", false)
		case StNoRoot:
			showStepDone("Program executed without root rights, aborting...", false)
		case StNoEfivars:
			showStepDone("No efivarfs found", false)
			printf("\nThe registration agent needs access to the UEFI variables. Make sure the system\nbooted in UEFI mode and efivarfs is mounted at /sys/firmware/efi/efivars.\n\n")
		case StPlatformRegistered:
			completeLastStep(true)
			showRegistration(true)
		case StPlatformNotRegistered:
			completeLastStep(true)
			showRegistration(false)
		case StChainAllGood:
			showReadinessChain(len(readinessChain))
		case StChainFailCPU:
			showReadinessChain(0)
		case StChainFailBIOS:
			showReadinessChain(1)
		case StChainFailLaunchControl:
			showReadinessChain(2)
		case StChainFailVariables:
			showReadinessChain(3)
		case StChainFailRegistration:
			showReadinessChain(4)
		}
	}
}
