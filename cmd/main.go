package main

import (
	"os"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/cli"
)

func main() {
	os.Exit(cli.RunCommandLineTool())
}
