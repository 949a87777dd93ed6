package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"auditctl/internal/stubapi"
)

func runStubServer(args []string) error {
	fs := flag.NewFlagSet("stub-server", flag.ContinueOnError)
	addr := fs.String("addr", stubapi.DefaultAddr, "listen address")
	steps := fs.Int("steps", stubapi.DefaultSteps, "status reads before a job completes (0 completes immediately)")
	fail := fs.Bool("fail", false, "make every job end as failed")
	failMessage := fs.String("fail-message", "", "error text reported by failed jobs")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 0 {
		return errors.New("--steps must be >= 0")
	}

	srv := stubapi.New(stubapi.Options{
		Steps:       *steps,
		FailJobs:    *fail,
		FailMessage: strings.TrimSpace(*failMessage),
	})
	ctx, cancel := signalContext()
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown()
	}()

	fmt.Fprintf(stdout, "stub backend: http://%s%s (ctrl+c to stop)\n", *addr, stubapi.Prefix)
	return srv.Listen(*addr)
}
