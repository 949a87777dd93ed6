package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sort"
	"strings"

	"auditctl/internal/model"
	"auditctl/internal/poller"
)

func runModels(args []string) error {
	if len(args) == 0 {
		printModelsUsage()
		return errors.New("models: missing subcommand")
	}
	switch args[0] {
	case "list":
		return runModelsList(args[1:])
	case "active":
		return runModelsActive(args[1:])
	case "activate":
		return runModelsActivate(args[1:])
	case "train":
		return runModelsTrain(args[1:])
	case "training-status":
		return runTrainingStatus(args[1:])
	case "help", "-h", "--help":
		printModelsUsage()
		return nil
	default:
		printModelsUsage()
		return fmt.Errorf("models: unknown subcommand %q", args[0])
	}
}

func printModelsUsage() {
	w := stdout
	fmt.Fprintln(w, "Usage: auditctl models <subcommand> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  list             list trained detector versions")
	fmt.Fprintln(w, "  active           show the active detector")
	fmt.Fprintln(w, "  activate         switch the active detector (--version)")
	fmt.Fprintln(w, "  train            train a new detector on generated data")
	fmt.Fprintln(w, "  training-status  show or follow a training run (--job-id)")
}

func runModelsList(args []string) error {
	fs := flag.NewFlagSet("models list", flag.ContinueOnError)
	conn := addConnFlags(fs)
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	sess, err := conn.open()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	list, err := sess.client.ListModels(ctx)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(list)
	}
	if len(list.Models) == 0 {
		fmt.Fprintln(stdout, "no trained models")
		return nil
	}
	for _, m := range list.Models {
		marker := " "
		if m.IsActive {
			marker = "*"
		}
		fmt.Fprintf(stdout, "%s %-8s  %s  %s\n", marker, m.Version, m.CreatedAt.String(), formatMetrics(m.Metrics))
	}
	return nil
}

func runModelsActive(args []string) error {
	fs := flag.NewFlagSet("models active", flag.ContinueOnError)
	conn := addConnFlags(fs)
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	sess, err := conn.open()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	m, err := sess.client.ActiveModel(ctx)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(m)
	}
	fmt.Fprintf(stdout, "version: %s\n", m.Version)
	fmt.Fprintf(stdout, "created: %s\n", m.CreatedAt.String())
	if len(m.Metrics) > 0 {
		fmt.Fprintf(stdout, "metrics: %s\n", formatMetrics(m.Metrics))
	}
	return nil
}

func runModelsActivate(args []string) error {
	fs := flag.NewFlagSet("models activate", flag.ContinueOnError)
	conn := addConnFlags(fs)
	version := fs.String("version", "", "model version to activate")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*version) == "" {
		return errors.New("--version is required")
	}
	sess, err := conn.open()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	act, err := sess.client.ActivateModel(ctx, *version)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(act)
	}
	fmt.Fprintf(stdout, "active: %s\n", act.Version)
	return nil
}

func runModelsTrain(args []string) error {
	fs := flag.NewFlagSet("models train", flag.ContinueOnError)
	conn := addConnFlags(fs)
	sets := fs.Int("sets", 10, "generated datasets to train on (1..50)")
	entries := fs.Int("entries", 500, "entries per dataset (100..5000)")
	description := fs.String("description", "", "free-text note stored with the model")
	noActivate := fs.Bool("no-activate", false, "keep the current model active")
	watch := fs.Bool("watch", false, "follow the run until it finishes")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sets < 1 || *sets > 50 {
		return errors.New("--sets must be between 1 and 50")
	}
	if *entries < 100 || *entries > 5000 {
		return errors.New("--entries must be between 100 and 5000")
	}
	sess, err := conn.open()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	job, err := sess.client.TrainModel(ctx, model.TrainingRequest{
		NumSets:       *sets,
		EntriesPerSet: *entries,
		Description:   strings.TrimSpace(*description),
		Activate:      !*noActivate,
	})
	if err != nil {
		return err
	}
	if *jsonOut && !*watch {
		return printJSON(job)
	}
	if !*jsonOut {
		fmt.Fprintf(stdout, "job_id: %s\n", job.JobID)
	}
	if !*watch {
		return nil
	}
	return followTraining(ctx, sess, job.JobID, *jsonOut)
}

func runTrainingStatus(args []string) error {
	fs := flag.NewFlagSet("models training-status", flag.ContinueOnError)
	conn := addConnFlags(fs)
	jobID := fs.String("job-id", "", "training job id")
	watch := fs.Bool("watch", false, "follow the run until it finishes")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	id := strings.TrimSpace(*jobID)
	if id == "" {
		return errors.New("--job-id is required")
	}
	sess, err := conn.open()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	if *watch {
		return followTraining(ctx, sess, id, *jsonOut)
	}
	st, err := sess.client.TrainingStatus(ctx, id)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(st)
	}
	printTrainingStatus(st)
	return nil
}

// followTraining polls a training run with the analysis poller, using the
// training texts, then prints its final status.
func followTraining(ctx context.Context, sess *session, jobID string, jsonOut bool) error {
	verbose := !jsonOut
	prog := newWatchProgress(verbose && stdoutIsTTY(), jobID)
	var observer poller.Observer
	if verbose {
		observer = prog
		prog.Start()
	}

	ev, err := poller.Watch(ctx, poller.Config{
		Source:         sess.client.Training(),
		Observer:       observer,
		Catalog:        poller.TrainingCatalogFor(sess.eff.Preferences.Language),
		RequestTimeout: sess.eff.Timeout(),
	}, poller.Target{JobID: jobID})

	final := ev.Message
	if err != nil && final == "" {
		final = "watch stopped: " + err.Error()
	}
	if verbose {
		prog.Stop(final)
	}
	if err != nil {
		if ev.Retry != nil && verbose {
			fmt.Fprintf(stdout, "%s: auditctl models train\n", ev.Retry.Label)
		}
		return err
	}

	st, err := sess.client.TrainingStatus(ctx, jobID)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(st)
	}
	printTrainingStatus(st)
	return nil
}

func printTrainingStatus(st model.TrainingStatus) {
	fmt.Fprintf(stdout, "job_id: %s\n", st.JobID)
	fmt.Fprintf(stdout, "status: %s (%s)\n", st.Status, formatPercent(model.NormalizeProgress(st.Progress)))
	if st.LogFile != "" {
		fmt.Fprintf(stdout, "log: %s\n", st.LogFile)
	}
	logs := strings.TrimSpace(st.LastLogs)
	if logs == "" {
		return
	}
	for _, line := range strings.Split(logs, "\n") {
		fmt.Fprintf(stdout, "  %s\n", line)
	}
}

func formatMetrics(m map[string]float64) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.2f", k, m[k]))
	}
	return strings.Join(parts, " ")
}
