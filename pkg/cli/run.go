package cli

import (
	"errors"
	"os"
	"runtime"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/core"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/firmware/uefivars"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/state"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/tui"
	"github.com/immune-gmbh/sgx-registration-agent/pkg/util"
)

const (
	programName = "sgxreg"
	programDesc = "SGX multi-package registration agent"

	defaultConfigFile = "/etc/sgx-registration/config.json"
)

type verboseFlag bool

func (v verboseFlag) BeforeApply() error {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	return nil
}

type traceFlag bool

func (v traceFlag) BeforeApply() error {
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	log.Logger = log.Logger.With().Caller().Logger()
	return nil
}

type rootCmd struct {
	// Global options
	Config   kong.ConfigFlag `name:"config" help:"Load flag defaults from a JSON file" type:"existingfile"`
	Efivars  string          `name:"efivars" default:"${efivars_default_dir}" help:"Mount point of efivarfs" type:"path"`
	StateDir string          `name:"state-dir" default:"${state_default_dir}" help:"Directory holding the agent state" type:"path"`
	LogFlag  bool            `name:"log" help:"Force log output on and text UI off"`
	Verbose  verboseFlag     `help:"Enable verbose mode, implies log"`
	Trace    traceFlag       `hidden:""`
	Colors   bool            `help:"Force colors on for all console outputs (default: autodetect)"`

	// Subcommands
	Status   statusCmd   `cmd:"" help:"Show the SGX registration status stored by the BIOS"`
	Manifest manifestCmd `cmd:"" help:"Fetch the pending platform manifest"`
	Complete completeCmd `cmd:"" help:"Tell the BIOS that the platform has been registered"`
	SetError setErrorCmd `cmd:"" name:"set-error" help:"Store a registration error code for the BIOS"`
	Respond  respondCmd  `cmd:"" help:"Answer an add-package request with platform membership certificates"`
	Report   reportCmd   `cmd:"" help:"Collect an SGX platform report"`
}

func initUI(forceColors bool, forceLog bool) {
	notty := os.Getenv("TERM") == "dumb" || (!isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()))

	// honor NO_COLOR env var as per https://no-color.org/ like the colors library we use does, too
	_, noColors := os.LookupEnv("NO_COLOR")

	cw := zerolog.ConsoleWriter{
		Out:        colorable.NewColorableStdout(),
		NoColor:    false,
		TimeFormat: "15:04:05"}

	// handle different console environments
	// if tui is disabled, then the log is our ui; so we use stdout
	if forceColors || (!notty && !noColors) {
		cw.NoColor = false
		cw.Out = colorable.NewColorableStdout()
	} else {
		cw.NoColor = noColors && !forceColors
		cw.Out = os.Stdout
	}

	// tui styles follow the same color decision as the log
	color.NoColor = cw.NoColor || (notty && !forceColors)

	// use tui instead of log as ui
	if !forceLog && !notty {
		tui.Init()
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		cw.Out = tui.Err
	}

	// apply settings to global default logger
	log.Logger = log.Output(cw)
}

func RunCommandLineTool() int {
	agentCore := core.NewCore()

	// add info about build to description
	desc := programDesc + " " + *agentCore.ReleaseId + " (" + runtime.GOARCH + ")"

	options := []kong.Option{
		kong.Name(programName),
		kong.Description(desc),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		kong.Vars{
			"efivars_default_dir": uefivars.DefaultRoot,
			"state_default_dir":   state.DefaultStateDir(),
		},
		kong.Configuration(kong.JSON, defaultConfigFile),
		kong.Bind(agentCore),
	}

	// Parse common cli options
	var cli rootCmd
	ctx := kong.Parse(&cli, options...)

	initUI(cli.Colors, cli.LogFlag || bool(cli.Verbose) || bool(cli.Trace))

	// tell who we are
	log.Debug().Msg(desc)

	// bail out if not root
	root, err := util.IsRoot()
	if err != nil {
		log.Warn().Msg("Can't check user. It is recommended to run as root user")
		log.Debug().Err(err).Msg("util.IsRoot()")
	} else if !root {
		tui.SetUIState(tui.StNoRoot)
		log.Error().Msg("This program must be run with elevated privileges")
		return 1
	}

	// init agent core
	if err := agentCore.Init(cli.StateDir, uefivars.DefaultStore(cli.Efivars)); err != nil {
		if errors.Is(err, core.ErrNoEfivars) {
			tui.SetUIState(tui.StNoEfivars)
		}
		core.LogInitErrors(&log.Logger, err)
		tui.DumpErr()
		return 1
	}
	defer agentCore.Close()

	// Run the selected subcommand
	if err := ctx.Run(agentCore); err != nil {
		tui.DumpErr()
		return 1
	} else {
		return 0
	}
}
