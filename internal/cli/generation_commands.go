package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"auditctl/internal/api"
	"auditctl/internal/model"
)

const generationDateLayout = "2006-01-02"

func runGenerate(args []string) error {
	if len(args) > 0 && args[0] == "results" {
		return runGenerationResults(args[1:])
	}
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	conn := addConnFlags(fs)
	count := fs.Int("count", 1000, fmt.Sprintf("ledger lines to generate (%d..%d)", api.MinGenerationCount, api.MaxGenerationCount))
	rate := fs.Float64("anomaly-rate", 0.05, "share of lines carrying an anomaly (0..1)")
	start := fs.String("start-date", "", "first entry date, YYYY-MM-DD")
	end := fs.String("end-date", "", "last entry date, YYYY-MM-DD")
	company := fs.String("company", "", "company name written into the ledger")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *count < api.MinGenerationCount || *count > api.MaxGenerationCount {
		return fmt.Errorf("--count must be between %d and %d", api.MinGenerationCount, api.MaxGenerationCount)
	}
	if *rate < 0 || *rate > 1 {
		return errors.New("--anomaly-rate must be between 0 and 1")
	}
	from, err := parseGenerationDate("--start-date", *start)
	if err != nil {
		return err
	}
	to, err := parseGenerationDate("--end-date", *end)
	if err != nil {
		return err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return errors.New("--end-date is before --start-date")
	}
	sess, err := conn.open()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	gen, err := sess.client.Generate(ctx, model.GenerationRequest{
		Count:       *count,
		AnomalyRate: *rate,
		StartDate:   strings.TrimSpace(*start),
		EndDate:     strings.TrimSpace(*end),
		CompanyName: strings.TrimSpace(*company),
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(gen)
	}
	fmt.Fprintf(stdout, "generation_id: %s\n", gen.GenerationID)
	fmt.Fprintf(stdout, "lines: %d\n", gen.Count)
	fmt.Fprintf(stdout, "anomalies: %d\n", gen.AnomalyCount)
	fmt.Fprintf(stdout, "csv: %s\n", gen.CSVPath)
	return nil
}

func parseGenerationDate(flagName, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(generationDateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD: %w", flagName, err)
	}
	return t, nil
}

func runGenerationResults(args []string) error {
	fs := flag.NewFlagSet("generate results", flag.ContinueOnError)
	conn := addConnFlags(fs)
	id := fs.String("id", "", "generation id")
	minConfidence := fs.Float64("min-confidence", 0, "only print anomalies scoring at least this (0..1)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}
	sess, err := conn.open()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	res, err := sess.client.GenerationResults(ctx, *id)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(res)
	}
	return printResults(model.AnalysisResults{
		FileID:       res.GenerationID,
		Filename:     res.CSVPath,
		TotalEntries: res.Count,
		AnomalyCount: len(res.Anomalies),
		Anomalies:    res.Anomalies,
	}, *minConfidence, false)
}
