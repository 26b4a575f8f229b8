package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/api"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/core"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/mpuefi"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/registration"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/tui"
)

type statusCmd struct {
	Strict bool `help:"Exit with an error if the platform is not registered"`
}

func (cmd *statusCmd) Run(agentCore *core.Core) error {
	reg, err := agentCore.Status()
	if err != nil {
		core.LogRegistrationErrors(&log.Logger, "Reading the registration status", err)
		return err
	}

	tui.ShowDetail("Package info", fmt.Sprint(reg.PackageInfoDone))
	tui.ShowDetail("Error code", reg.ErrorCode.String())
	tui.ShowDetail("Pending request", reg.PendingRequest)
	tui.ShowDetail("Service status", reg.ServiceStatus.String()+": "+reg.ServiceStatus.Description())
	if reg.ManifestSize > 0 {
		tui.ShowDetail("Manifest size", fmt.Sprintf("%d bytes", reg.ManifestSize))
	}

	log.Info().
		Stringer("status", reg.Status).
		Bool("package_info", reg.PackageInfoDone).
		Stringer("error_code", reg.ErrorCode).
		Str("pending_request", reg.PendingRequest).
		Stringer("service_status", reg.ServiceStatus).
		Int("manifest_size", reg.ManifestSize).
		Msg("Registration status")

	if cmd.Strict && reg.Status != api.Registered {
		return errors.New("not registered")
	}
	return nil
}

type manifestCmd struct {
	Out  string `arg:"" optional:"" default:"platform-manifest.bin" help:"File to write the manifest to" type:"path"`
	Zstd bool   `help:"Compress the manifest with zstd"`
}

func (cmd *manifestCmd) Run(agentCore *core.Core) error {
	buf, err := agentCore.WriteManifest(cmd.Out, cmd.Zstd)
	if errors.Is(err, mpuefi.ErrNoPendingData) {
		log.Info().Msg("No platform manifest pending")
		return nil
	} else if err != nil {
		core.LogRegistrationErrors(&log.Logger, "Fetching the platform manifest", err)
		return err
	}

	tui.ShowOutputFile(cmd.Out)
	log.Info().Int("size", len(buf)).Str("path", cmd.Out).Msg("Platform manifest written")
	return nil
}

type completeCmd struct{}

func (cmd *completeCmd) Run(agentCore *core.Core) error {
	if err := agentCore.MarkComplete(); err != nil {
		log.Debug().Stringer("service_status", registration.StatusCodeOf(err)).Msg("MarkComplete")
		core.LogRegistrationErrors(&log.Logger, "Updating the registration status", err)
		return err
	}

	log.Info().Stringer("service_status", api.PlatformRebootNeeded).Msg("Platform marked as registered, reboot to complete")
	return nil
}

type setErrorCmd struct {
	Code string `arg:"" help:"Error code, either a name like agent-network-error or a number"`
}

func (cmd *setErrorCmd) Run(agentCore *core.Core) error {
	code, err := api.ParseRegistrationErrorCode(cmd.Code)
	if err != nil {
		log.Error().Msg(err.Error())
		return err
	}

	if err := agentCore.SetErrorCode(code); err != nil {
		core.LogRegistrationErrors(&log.Logger, "Storing the error code", err)
		return err
	}

	log.Info().Stringer("code", code).Msg("Registration error code stored")
	return nil
}

type respondCmd struct {
	Certificates string `arg:"" help:"File holding the platform membership certificates" type:"existingfile"`
}

func (cmd *respondCmd) Run(agentCore *core.Core) error {
	if err := agentCore.SubmitCertificates(cmd.Certificates); err != nil {
		core.LogRegistrationErrors(&log.Logger, "Submitting the certificates", err)
		return err
	}

	log.Info().Msg("Platform membership certificates handed to the BIOS")
	return nil
}

type reportCmd struct {
	Out  string `arg:"" optional:"" help:"File to write the report to" type:"path"`
	Show bool   `help:"Print the report to stdout"`
}

func (cmd *reportCmd) Run(agentCore *core.Core) error {
	_, buf, err := agentCore.Report()
	if err != nil {
		core.LogRegistrationErrors(&log.Logger, "Collecting the platform report", err)
		return err
	}

	if cmd.Out != "" {
		if err := os.WriteFile(cmd.Out, buf, 0644); err != nil {
			log.Debug().Err(err).Msgf("os.WriteFile(%s)", cmd.Out)
			core.LogRegistrationErrors(&log.Logger, "Writing the platform report", core.ErrWriteOutput)
			return err
		}
		tui.ShowOutputFile(cmd.Out)
	}
	if cmd.Show || cmd.Out == "" {
		fmt.Println(string(buf))
	}
	return nil
}
