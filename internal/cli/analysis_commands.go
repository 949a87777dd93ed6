package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"auditctl/internal/model"
	"auditctl/internal/poller"
)

func runUpload(args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	conn := addConnFlags(fs)
	file := fs.String("file", "", "accounting export to upload (.txt, .csv, .fec, .xls, .xlsx)")
	description := fs.String("description", "", "optional description stored with the file")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*file) == "" {
		return errors.New("--file is required")
	}
	sess, err := conn.open()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	up, err := sess.client.Upload(ctx, strings.TrimSpace(*file), *description)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(up)
	}
	printUploaded(up)
	return nil
}

func printUploaded(up model.UploadedFile) {
	fmt.Fprintf(stdout, "uploaded: %s (%s)\n", up.Filename, formatBytesIEC(up.SizeBytes))
	fmt.Fprintf(stdout, "file_id: %s\n", up.FileID)
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	conn := addConnFlags(fs)
	fileID := fs.String("file-id", "", "uploaded file id")
	analysisType := fs.String("type", model.AnalysisStandard, "analysis type: "+strings.Join(model.AnalysisTypes, "|"))
	watch := fs.Bool("watch", false, "poll the job until it finishes and print results")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*fileID) == "" {
		return errors.New("--file-id is required")
	}
	if err := validateAnalysisType(*analysisType); err != nil {
		return err
	}
	sess, err := conn.open()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	job, err := sess.client.StartAnalysis(ctx, strings.TrimSpace(*fileID), *analysisType)
	if err != nil {
		return err
	}
	if !*watch {
		if *jsonOut {
			return printJSON(job)
		}
		fmt.Fprintf(stdout, "job_id: %s\n", job.JobID)
		fmt.Fprintf(stdout, "status: %s\n", job.Status)
		return nil
	}
	if !*jsonOut {
		fmt.Fprintf(stdout, "job_id: %s\n", job.JobID)
	}
	res, err := watchJob(ctx, sess, poller.Target{JobID: job.JobID, FileID: strings.TrimSpace(*fileID)}, !*jsonOut)
	if err != nil {
		return err
	}
	return printResults(res, 0, *jsonOut)
}

func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	conn := addConnFlags(fs)
	file := fs.String("file", "", "accounting export to upload and analyse")
	description := fs.String("description", "", "optional description stored with the file")
	analysisType := fs.String("type", model.AnalysisStandard, "analysis type: "+strings.Join(model.AnalysisTypes, "|"))
	minConfidence := fs.Float64("min-confidence", 0, "only print anomalies scoring at least this (0..1)")
	jsonOut := fs.Bool("json", false, "print results as JSON")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*file) == "" {
		return errors.New("--file is required")
	}
	if err := validateAnalysisType(*analysisType); err != nil {
		return err
	}
	if err := validateConfidence(*minConfidence); err != nil {
		return err
	}
	sess, err := conn.open()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	up, err := sess.client.Upload(ctx, strings.TrimSpace(*file), *description)
	if err != nil {
		return err
	}
	if !*jsonOut {
		printUploaded(up)
	}
	job, err := sess.client.StartAnalysis(ctx, up.FileID, *analysisType)
	if err != nil {
		return err
	}
	if !*jsonOut {
		fmt.Fprintf(stdout, "job_id: %s\n", job.JobID)
	}
	res, err := watchJob(ctx, sess, poller.Target{JobID: job.JobID, FileID: up.FileID}, !*jsonOut)
	if err != nil {
		return err
	}
	return printResults(res, *minConfidence, *jsonOut)
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	conn := addConnFlags(fs)
	jobID := fs.String("job-id", "", "analysis job id")
	fileID := fs.String("file-id", "", "file id the job analyses (used to fetch results)")
	jsonOut := fs.Bool("json", false, "print results as JSON")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*jobID) == "" {
		return errors.New("--job-id is required")
	}
	if strings.TrimSpace(*fileID) == "" {
		return errors.New("--file-id is required")
	}
	sess, err := conn.open()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	target := poller.Target{JobID: strings.TrimSpace(*jobID), FileID: strings.TrimSpace(*fileID)}
	res, err := watchJob(ctx, sess, target, !*jsonOut)
	if err != nil {
		return err
	}
	return printResults(res, 0, *jsonOut)
}

// watchJob drives a poller with real timers until the job settles.
func watchJob(ctx context.Context, sess *session, target poller.Target, verbose bool) (model.AnalysisResults, error) {
	prog := newWatchProgress(verbose && stdoutIsTTY(), target.JobID)
	var observer poller.Observer
	if verbose {
		observer = prog
		prog.Start()
	}

	ev, err := poller.Watch(ctx, poller.Config{
		Source:         sess.client,
		Observer:       observer,
		Catalog:        sess.catalog(),
		RequestTimeout: sess.eff.Timeout(),
	}, target)

	final := ev.Message
	if err != nil && final == "" {
		final = "watch stopped: " + err.Error()
	}
	if verbose {
		prog.Stop(final)
	}
	if err != nil {
		if ev.Retry != nil && verbose {
			fmt.Fprintf(stdout, "%s: auditctl start --file-id %s\n", ev.Retry.Label, ev.Retry.FileID)
		}
		return model.AnalysisResults{}, err
	}
	if ev.Results == nil {
		return model.AnalysisResults{}, fmt.Errorf("job %s completed without results", target.JobID)
	}
	return *ev.Results, nil
}

func runResults(args []string) error {
	fs := flag.NewFlagSet("results", flag.ContinueOnError)
	conn := addConnFlags(fs)
	fileID := fs.String("file-id", "", "analysed file id")
	minConfidence := fs.Float64("min-confidence", 0, "only print anomalies scoring at least this (0..1)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*fileID) == "" {
		return errors.New("--file-id is required")
	}
	if err := validateConfidence(*minConfidence); err != nil {
		return err
	}
	sess, err := conn.open()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	res, err := sess.client.Results(ctx, strings.TrimSpace(*fileID))
	if err != nil {
		return err
	}
	return printResults(res, *minConfidence, *jsonOut)
}

func printResults(res model.AnalysisResults, minConfidence float64, jsonOut bool) error {
	shown := res.FilterByConfidence(minConfidence)
	if jsonOut {
		out := res
		out.Anomalies = shown
		return printJSON(out)
	}

	name := res.Filename
	if name == "" {
		name = res.FileID
	}
	fmt.Fprintf(stdout, "file: %s\n", name)
	fmt.Fprintf(stdout, "entries: %d\n", res.TotalEntries)
	fmt.Fprintf(stdout, "anomalies: %d", res.AnomalyCount)
	if minConfidence > 0 {
		fmt.Fprintf(stdout, " (%d with confidence >= %s)", len(shown), formatPercent(minConfidence*100))
	}
	fmt.Fprintln(stdout)
	if len(res.Anomalies) == 0 {
		fmt.Fprintln(stdout, "no anomalies detected")
		return nil
	}
	fmt.Fprintf(stdout, "by type: %s\n", formatTypeCounts(res.CountByType()))
	for i, a := range shown {
		fmt.Fprintf(stdout, "  %d. [%s] %s  lines %s\n", i+1, formatPercent(a.ConfidenceScore*100), a.Type, formatLines(a.LineNumbers))
		if strings.TrimSpace(a.Description) != "" {
			fmt.Fprintf(stdout, "     %s\n", a.Description)
		}
	}
	return nil
}

func formatTypeCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.Itoa(counts[k]))
	}
	return strings.Join(parts, " ")
}

func formatLines(lines []int) string {
	if len(lines) == 0 {
		return "-"
	}
	parts := make([]string, len(lines))
	for i, n := range lines {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func runFiles(args []string) error {
	fs := flag.NewFlagSet("files", flag.ContinueOnError)
	conn := addConnFlags(fs)
	page := fs.Int("page", 1, "page number (1-based)")
	pageSize := fs.Int("page-size", 20, "files per page")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *page < 1 {
		return errors.New("--page must be >= 1")
	}
	if *pageSize < 1 || *pageSize > 100 {
		return errors.New("--page-size must be between 1 and 100")
	}
	sess, err := conn.open()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	files, err := sess.client.ListFiles(ctx, *page, *pageSize)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(files)
	}
	if len(files) == 0 {
		fmt.Fprintln(stdout, "no files uploaded")
		return nil
	}
	for _, f := range files {
		fmt.Fprintf(stdout, "%s  %-32s  %10s  %s\n", f.FileID, truncateRunes(f.Filename, 32), formatBytesIEC(f.SizeBytes), f.UploadTimestamp.String())
	}
	return nil
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	conn := addConnFlags(fs)
	fileID := fs.String("file-id", "", "file id to delete")
	yes := fs.Bool("yes", false, "skip confirmation prompt")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	id := strings.TrimSpace(*fileID)
	if id == "" {
		return errors.New("--file-id is required")
	}
	if !*yes {
		ok, err := promptConfirm(fmt.Sprintf("Delete file %s and its analysis? [y/N]: ", id))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(stdout, "aborted")
			return nil
		}
	}
	sess, err := conn.open()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	if err := sess.client.DeleteFile(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "deleted: %s\n", id)
	return nil
}

func validateAnalysisType(v string) error {
	for _, t := range model.AnalysisTypes {
		if v == t {
			return nil
		}
	}
	return fmt.Errorf("--type must be one of %s", strings.Join(model.AnalysisTypes, ", "))
}

func validateConfidence(v float64) error {
	if v < 0 || v > 1 {
		return errors.New("--min-confidence must be between 0 and 1")
	}
	return nil
}
