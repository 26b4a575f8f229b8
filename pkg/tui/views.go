package tui

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

type chainLink struct {
	Text string
	Hint string
}

// the order matters, every link depends on the ones above it
var readinessChain = []chainLink{
	{"SGX capable CPU", "The CPU does not report SGX in CPUID leaf 0x12."},
	{"SGX enabled by BIOS", "Enable SGX in the BIOS setup. IA32_FEATURE_CONTROL has to be locked with the SGX bit set."},
	{"Flexible Launch Control", "Multi-package registration needs SGX launch control. Check the BIOS setup for an SGX LC option."},
	{"Registration variables", "The BIOS does not expose readable SGX registration variables. Update the BIOS or enable SGX multi-package support."},
	{"Platform registered", "Fetch the platform manifest with 'sgxreg manifest' and register it with the registration service."},
}

type Spinner struct {
	Spinner  *spinner.Spinner
	Current  string
	Callback func(string)
}

var step *Spinner

// styles
var (
	InfoStyle    = color.New(color.FgCyan, color.Bold).SprintFunc()
	SuccessStyle = color.New(color.FgGreen, color.Bold).SprintFunc()
	FailureStyle = color.New(color.FgRed, color.Bold).SprintFunc()
	SkippedStyle = color.New(color.FgHiBlack).SprintFunc()
	LinkStyle    = color.New(color.Underline).SprintFunc()
)

var (
	CheckMark = "✔"
	Cross     = "✘"
	Skipped   = "-"
)

func haveSpinner() bool {
	return step != nil && step.Spinner != nil
}

func killSpinner() {
	step.Spinner.Stop()
	step = nil
}

func showRegistration(registered bool) {
	status := FailureStyle("NOT REGISTERED")
	if registered {
		status = SuccessStyle("REGISTERED")
	}
	printf("\n >> This platform is %s <<\n\n", status)
}

func completeLastStep(success bool) {
	if haveSpinner() {
		showStepDone(step.Current, success)
	}
}

func showStepDone(message string, success bool) {
	if haveSpinner() {
		killSpinner()
	}

	status := FailureStyle(Cross)
	if success {
		status = SuccessStyle(CheckMark)
	}
	printf("[%s] %s\n", status, message)
}

func showSpinner(message string) {
	if haveSpinner() {
		killSpinner()
	}

	step = &Spinner{Current: message}
	step.Spinner = spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(Out))
	step.Spinner.Prefix = "["
	step.Spinner.Suffix = fmt.Sprintf("] %s", step.Current)
	step.Spinner.Start()
}

// showReadinessChain lists the links of the chain. Links above failAt
// passed, the one at failAt failed together with a hint and all below it
// were not evaluated. A failAt past the end marks everything as passed.
func showReadinessChain(failAt int) {
	printf("\nSGX registration readiness:\n")
	for i, link := range readinessChain {
		switch {
		case i < failAt:
			printf("  %s %s\n", SuccessStyle(CheckMark), link.Text)
		case i == failAt:
			printf("  %s %s\n", FailureStyle(Cross), link.Text)
			printf("      %s\n", link.Hint)
		default:
			printf("  %s %s\n", SkippedStyle(Skipped), SkippedStyle(link.Text))
		}
	}
	printf("\n")
}

// ShowDetail prints an indented key value line below the last step.
func ShowDetail(key, value string) {
	printf("    %-20s %s\n", key+":", InfoStyle(value))
}

func ShowOutputFile(path string) {
	if path != "" {
		printf("\nOutput written to:\n%s\n", LinkStyle(path))
	}
}
