package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"auditctl/internal/model"
	"auditctl/internal/version"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8000/api/v1"
	DefaultTimeout = 30 * time.Second

	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 64 << 10
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
}

// Client talks to the audit backend's /api/v1 surface.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
	logger    zerolog.Logger
}

func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidBase, raw, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidBase, raw)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("%w %q: missing host", ErrInvalidBase, raw)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = "auditctl/" + version.Value
	}
	return &Client{
		base:      base,
		http:      httpClient,
		userAgent: ua,
		logger:    log.With().Str("component", "api").Str("base_url", base.String()).Logger(),
	}, nil
}

func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) Upload(ctx context.Context, path, description string) (model.UploadedFile, error) {
	const op = "upload file"
	f, err := os.Open(path)
	if err != nil {
		return model.UploadedFile{}, fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, f, filepath.Base(path), description))
	}()

	var out model.UploadedFile
	err = c.do(ctx, op, http.MethodPost, c.endpoint("analysis", "upload"), pr, mw.FormDataContentType(), &out)
	// Unblocks the writer goroutine when the request failed before
	// consuming the body.
	_ = pr.Close()
	return out, err
}

func writeUploadForm(mw *multipart.Writer, r io.Reader, filename, description string) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	h.Set("Content-Type", contentTypeFor(filename))
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	if strings.TrimSpace(description) != "" {
		if err := mw.WriteField("description", description); err != nil {
			return err
		}
	}
	return mw.Close()
}

func (c *Client) StartAnalysis(ctx context.Context, fileID, analysisType string) (model.JobStatus, error) {
	if strings.TrimSpace(fileID) == "" {
		return model.JobStatus{}, fmt.Errorf("start analysis: file_id: %w", ErrEmptyID)
	}
	if analysisType == "" {
		analysisType = model.AnalysisStandard
	}
	payload := map[string]any{
		"file_id":       fileID,
		"analysis_type": analysisType,
		"options":       map[string]any{},
	}
	var out model.JobStatus
	if err := c.doJSON(ctx, "start analysis", http.MethodPost, c.endpoint("analysis", "start"), payload, &out); err != nil {
		return model.JobStatus{}, err
	}
	if out.JobID == "" {
		return model.JobStatus{}, fmt.Errorf("start analysis: %w: missing job_id", ErrMalformed)
	}
	if out.FileID == "" {
		out.FileID = fileID
	}
	return out, nil
}

func (c *Client) JobStatus(ctx context.Context, jobID string) (model.JobStatus, error) {
	if strings.TrimSpace(jobID) == "" {
		return model.JobStatus{}, fmt.Errorf("job status: job_id: %w", ErrEmptyID)
	}
	var out model.JobStatus
	err := c.do(ctx, "job status", http.MethodGet, c.endpoint("analysis", "status", jobID), nil, "", &out)
	return out, err
}

func (c *Client) Results(ctx context.Context, fileID string) (model.AnalysisResults, error) {
	if strings.TrimSpace(fileID) == "" {
		return model.AnalysisResults{}, fmt.Errorf("analysis results: file_id: %w", ErrEmptyID)
	}
	var out model.AnalysisResults
	if err := c.do(ctx, "analysis results", http.MethodGet, c.endpoint("analysis", "results", fileID), nil, "", &out); err != nil {
		return model.AnalysisResults{}, err
	}
	if out.AnomalyCount == 0 && len(out.Anomalies) > 0 {
		out.AnomalyCount = len(out.Anomalies)
	}
	return out, nil
}

func (c *Client) ListFiles(ctx context.Context, page, pageSize int) ([]model.UploadedFile, error) {
	u := c.endpoint("analysis", "files")
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	out := []model.UploadedFile{}
	if err := c.do(ctx, "list files", http.MethodGet, u, nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	if strings.TrimSpace(fileID) == "" {
		return fmt.Errorf("delete file: file_id: %w", ErrEmptyID)
	}
	return c.do(ctx, "delete file", http.MethodDelete, c.endpoint("analysis", "files", fileID), nil, "", nil)
}

func (c *Client) GenerateReport(ctx context.Context, req model.ReportRequest) (model.Report, error) {
	if strings.TrimSpace(req.FileID) == "" {
		return model.Report{}, fmt.Errorf("generate report: file_id: %w", ErrEmptyID)
	}
	if req.ReportType == "" {
		req.ReportType = model.ReportSummary
	}
	if req.Format == "" {
		req.Format = model.FormatPDF
	}
	var out model.Report
	if err := c.doJSON(ctx, "generate report", http.MethodPost, c.endpoint("reports", "generate"), req, &out); err != nil {
		return model.Report{}, err
	}
	if out.URL == "" {
		return model.Report{}, fmt.Errorf("generate report: %w: missing url", ErrMalformed)
	}
	return out, nil
}

func (c *Client) ReportStatus(ctx context.Context, reportID string) (model.ReportStatus, error) {
	if strings.TrimSpace(reportID) == "" {
		return model.ReportStatus{}, fmt.Errorf("report status: report_id: %w", ErrEmptyID)
	}
	var out model.ReportStatus
	err := c.do(ctx, "report status", http.MethodGet, c.endpoint("reports", "status", reportID), nil, "", &out)
	return out, err
}

// ListReports lists generated reports, newest first. An empty fileID lists
// reports for every file.
func (c *Client) ListReports(ctx context.Context, fileID string, page, pageSize int) ([]model.Report, error) {
	u := c.endpoint("reports", "list")
	q := url.Values{}
	if id := strings.TrimSpace(fileID); id != "" {
		q.Set("file_id", id)
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	out := []model.Report{}
	if err := c.do(ctx, "list reports", http.MethodGet, u, nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DownloadReport streams the report at rawURL into dest and returns the
// number of bytes written. Relative URLs resolve against the base URL.
func (c *Client) DownloadReport(ctx context.Context, rawURL, dest string) (int64, error) {
	const op = "download report"
	target, err := c.resolve(rawURL)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := c.send(ctx, op, http.MethodGet, target, nil, "", "*/*")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("%s: create parent for %s: %w", op, dest, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".auditctl-dl-*")
	if err != nil {
		return 0, fmt.Errorf("%s: create temp file for %s: %w", op, dest, err)
	}
	tmpPath := tmp.Name()
	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		if copyErr == nil {
			copyErr = closeErr
		}
		return 0, fmt.Errorf("%s: write %s: %w", op, dest, copyErr)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("%s: rename into %s: %w", op, dest, err)
	}
	return n, nil
}

func (c *Client) Health(ctx context.Context) (model.Health, error) {
	var out model.Health
	err := c.do(ctx, "health check", http.MethodGet, c.endpoint("healthz", "live"), nil, "", &out)
	return out, err
}

// HealthDetail reads the full health report. An unhealthy backend still
// answers 200 with status "unhealthy".
func (c *Client) HealthDetail(ctx context.Context) (model.HealthDetail, error) {
	var out model.HealthDetail
	err := c.do(ctx, "health detail", http.MethodGet, c.endpoint("healthz", "health"), nil, "", &out)
	return out, err
}

func (c *Client) Ready(ctx context.Context) (model.Readiness, error) {
	var out model.Readiness
	err := c.do(ctx, "readiness check", http.MethodGet, c.endpoint("healthz", "ready"), nil, "", &out)
	return out, err
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return c.base.String() + "/" + strings.Join(escaped, "/")
}

func (c *Client) resolve(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty report url", ErrMalformed)
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: report url %q: %w", ErrMalformed, raw, err)
	}
	return c.base.ResolveReference(ref).String(), nil
}

func (c *Client) doJSON(ctx context.Context, op, method, u string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	return c.do(ctx, op, method, u, bytes.NewReader(body), "application/json", out)
}

func (c *Client) do(ctx context.Context, op, method, u string, body io.Reader, contentType string, out any) error {
	resp, err := c.send(ctx, op, method, u, body, contentType, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrMalformed, err)
	}
	return nil
}

// send performs the request and turns any non-2xx answer into *Error.
// On success the caller owns resp.Body.
func (c *Client) send(ctx context.Context, op, method, u string, body io.Reader, contentType, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(requestIDHeader, requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("url", u).Str("request_id", requestID).Msg("request failed")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug().
		Str("method", method).
		Str("url", u).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("request completed")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, decodeError(op, resp.StatusCode, data)
	}
	return resp, nil
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".fec":
		return "text/plain"
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xls":
		return "application/vnd.ms-excel"
	}
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		return t
	}
	return "application/octet-stream"
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
