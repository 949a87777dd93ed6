package cli

import (
	"fmt"
	"io"
	"os"
)

var stdout io.Writer = os.Stdout

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "upload":
		return runUpload(args[1:])
	case "start":
		return runStart(args[1:])
	case "analyze":
		return runAnalyze(args[1:])
	case "watch":
		return runWatch(args[1:])
	case "results":
		return runResults(args[1:])
	case "files":
		return runFiles(args[1:])
	case "delete":
		return runDelete(args[1:])
	case "report", "reports":
		return runReport(args[1:])
	case "generate":
		return runGenerate(args[1:])
	case "models":
		return runModels(args[1:])
	case "health":
		return runHealth(args[1:])
	case "settings":
		return runSettings(args[1:])
	case "dashboard":
		return runDashboard(args[1:])
	case "stub-server":
		return runStubServer(args[1:])
	case "version":
		fmt.Fprintln(stdout, "auditctl", versionString())
		return nil
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	w := stdout
	fmt.Fprintln(w, "auditctl: terminal client for the accounting audit backend")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Quick Start:")
	fmt.Fprintln(w, "  auditctl stub-server &")
	fmt.Fprintln(w, "  auditctl analyze --file FEC2023.txt")
	fmt.Fprintln(w, "  auditctl dashboard")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Analysis Commands:")
	fmt.Fprintln(w, "  upload       upload an accounting export (FEC, CSV, Excel)")
	fmt.Fprintln(w, "  start        start an analysis job for an uploaded file")
	fmt.Fprintln(w, "  analyze      upload + start + watch + print results")
	fmt.Fprintln(w, "  watch        poll a job until it completes or fails")
	fmt.Fprintln(w, "  results      print anomalies for an analysed file")
	fmt.Fprintln(w, "  files        list uploaded files")
	fmt.Fprintln(w, "  delete       delete an uploaded file")
	fmt.Fprintln(w, "  report       generate and download a report (report list: past reports)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Detector Commands:")
	fmt.Fprintln(w, "  generate     generate a synthetic ledger with known anomalies")
	fmt.Fprintln(w, "  models       list, activate and train anomaly detectors")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Other Commands:")
	fmt.Fprintln(w, "  dashboard    interactive terminal dashboard")
	fmt.Fprintln(w, "  settings     show/update preferences")
	fmt.Fprintln(w, "  health       check that the backend is alive (--detailed, --ready)")
	fmt.Fprintln(w, "  stub-server  run a local stand-in backend")
	fmt.Fprintln(w, "  version      print the CLI version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common flags: --api-url URL, --config PATH, --timeout SECONDS")
	fmt.Fprintln(w, "Use 'auditctl <command> -h' for command flags.")
}
