package main

import (
	"fmt"
	"os"

	"auditctl/internal/cli"
	"auditctl/internal/logging"
	"auditctl/internal/settings"
)

func main() {
	logging.SetupFromEnv(settings.EnvLogLevel, settings.EnvLogFormat)
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
