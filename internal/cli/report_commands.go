package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"auditctl/internal/model"
)

const reportMaxChecks = 30

var reportPollInterval = time.Second

var errReportFailed = errors.New("report generation failed")

type reportStatusSource interface {
	ReportStatus(ctx context.Context, reportID string) (model.ReportStatus, error)
}

func runReport(args []string) error {
	if len(args) > 0 && args[0] == "list" {
		return runReportList(args[1:])
	}
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	conn := addConnFlags(fs)
	fileID := fs.String("file-id", "", "analysed file id")
	reportType := fs.String("type", model.ReportSummary, "report type: "+strings.Join(model.ReportTypes, "|"))
	format := fs.String("format", model.FormatPDF, "report format: "+strings.Join(model.ReportFormats, "|"))
	visuals := fs.Bool("visualizations", true, "include charts in the report")
	out := fs.String("out", "", "download path (default report_<id>.<ext> in the current directory)")
	noDownload := fs.Bool("no-download", false, "generate only; print the download URL")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	id := strings.TrimSpace(*fileID)
	if id == "" {
		return errors.New("--file-id is required")
	}
	if !oneOf(*reportType, model.ReportTypes) {
		return fmt.Errorf("--type must be one of %s", strings.Join(model.ReportTypes, ", "))
	}
	if !oneOf(*format, model.ReportFormats) {
		return fmt.Errorf("--format must be one of %s", strings.Join(model.ReportFormats, ", "))
	}
	sess, err := conn.open()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	rep, err := sess.client.GenerateReport(ctx, model.ReportRequest{
		FileID:                id,
		ReportType:            *reportType,
		Format:                *format,
		IncludeVisualizations: *visuals,
	})
	if err != nil {
		return err
	}
	if *noDownload {
		if *jsonOut {
			return printJSON(rep)
		}
		fmt.Fprintf(stdout, "report_id: %s\n", rep.ReportID)
		fmt.Fprintf(stdout, "url: %s\n", rep.URL)
		return nil
	}

	if _, err := waitForReport(ctx, sess.client, rep.ReportID); err != nil {
		return err
	}
	dest := strings.TrimSpace(*out)
	if dest == "" {
		dest = defaultReportName(rep)
	}
	n, err := sess.client.DownloadReport(ctx, rep.URL, dest)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"report": rep,
			"path":   dest,
			"bytes":  n,
		})
	}
	fmt.Fprintf(stdout, "report_id: %s\n", rep.ReportID)
	fmt.Fprintf(stdout, "saved: %s (%s)\n", dest, formatBytesIEC(n))
	return nil
}

// waitForReport checks the report status until it is downloadable, giving
// up after reportMaxChecks checks.
func waitForReport(ctx context.Context, src reportStatusSource, reportID string) (model.ReportStatus, error) {
	if strings.TrimSpace(reportID) == "" {
		return model.ReportStatus{}, nil
	}
	var last model.ReportStatus
	for i := 0; i < reportMaxChecks; i++ {
		st, err := src.ReportStatus(ctx, reportID)
		if err != nil {
			return model.ReportStatus{}, err
		}
		last = st
		switch strings.ToLower(st.Status) {
		case model.StatusCompleted:
			return st, nil
		case model.StatusFailed:
			reason := strings.TrimSpace(st.Error)
			if reason == "" {
				reason = "unknown error"
			}
			return st, fmt.Errorf("%w: %s", errReportFailed, reason)
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-time.After(reportPollInterval):
		}
	}
	return last, fmt.Errorf("report %s not ready after %d checks (status %s)", reportID, reportMaxChecks, last.Status)
}

func defaultReportName(rep model.Report) string {
	ext := rep.Format
	switch ext {
	case model.FormatExcel:
		ext = "xlsx"
	case "":
		ext = "bin"
	}
	return filepath.Join(".", "report_"+rep.ReportID+"."+ext)
}

func runReportList(args []string) error {
	fs := flag.NewFlagSet("report list", flag.ContinueOnError)
	conn := addConnFlags(fs)
	fileID := fs.String("file-id", "", "only reports for this file")
	page := fs.Int("page", 1, "page number (1-based)")
	pageSize := fs.Int("page-size", 20, "reports per page")
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

	reps, err := sess.client.ListReports(ctx, *fileID, *page, *pageSize)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(reps)
	}
	if len(reps) == 0 {
		fmt.Fprintln(stdout, "no reports")
		return nil
	}
	for _, r := range reps {
		fmt.Fprintf(stdout, "%s  %-8s  %-5s  %s  %s\n", r.ReportID, r.ReportType, r.Format, r.FileID, r.CreatedAt.String())
	}
	return nil
}

func runHealth(args []string) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	conn := addConnFlags(fs)
	detailed := fs.Bool("detailed", false, "print the full health report")
	ready := fs.Bool("ready", false, "check readiness instead of liveness")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *detailed && *ready {
		return errors.New("--detailed and --ready are mutually exclusive")
	}
	sess, err := conn.open()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	switch {
	case *detailed:
		return printHealthDetail(ctx, sess, *jsonOut)
	case *ready:
		return printReadiness(ctx, sess, *jsonOut)
	}

	started := time.Now()
	h, err := sess.client.Health(ctx)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"api_url":    sess.client.BaseURL(),
			"status":     h.Status,
			"latency_ms": time.Since(started).Milliseconds(),
		})
	}
	fmt.Fprintf(stdout, "%s: %s (%dms)\n", sess.client.BaseURL(), h.Status, time.Since(started).Milliseconds())
	return nil
}

func oneOf(v string, list []string) bool {
	for _, s := range list {
		if v == s {
			return true
		}
	}
	return false
}

func printHealthDetail(ctx context.Context, sess *session, jsonOut bool) error {
	hd, err := sess.client.HealthDetail(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(hd)
	}
	fmt.Fprintf(stdout, "status: %s\n", hd.Status)
	fmt.Fprintf(stdout, "version: %s (%s)\n", hd.Version, hd.Environment)
	if hd.Timestamp != "" {
		fmt.Fprintf(stdout, "timestamp: %s\n", hd.Timestamp)
	}
	printDetailMap("model", hd.ModelInfo)
	printDetailMap("disk", hd.DiskUsage)
	return nil
}

func printDetailMap(label string, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := m[k]
		if v == nil {
			v = "-"
		}
		fmt.Fprintf(stdout, "%s.%s: %v\n", label, k, v)
	}
}

func printReadiness(ctx context.Context, sess *session, jsonOut bool) error {
	r, err := sess.client.Ready(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(r)
	}
	line := r.Status
	if r.ModelStatus != "" {
		line += " (model " + r.ModelStatus + ")"
	}
	if r.Reason != "" {
		line += ": " + r.Reason
	}
	fmt.Fprintf(stdout, "%s: %s\n", sess.client.BaseURL(), line)
	return nil
}
