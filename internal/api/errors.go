package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrMalformed   = errors.New("malformed response")
	ErrEmptyID     = errors.New("identifier is required")
	ErrInvalidBase = errors.New("invalid API base URL")
)

// Error is a non-2xx backend answer. Detail and ErrorID come from the
// backend's {error_id, error, detail} envelope when it is present.
type Error struct {
	Op         string
	StatusCode int
	Kind       string
	Detail     string
	ErrorID    string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "HTTP %d", e.StatusCode)
	if e.Kind != "" {
		b.WriteString(" ")
		b.WriteString(e.Kind)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.ErrorID != "" {
		fmt.Fprintf(&b, " (error_id=%s)", e.ErrorID)
	}
	return b.String()
}

func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

type errorEnvelope struct {
	ErrorID string          `json:"error_id"`
	Error   string          `json:"error"`
	Detail  json.RawMessage `json:"detail"`
}

func decodeError(op string, status int, body []byte) *Error {
	out := &Error{Op: op, StatusCode: status}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		out.Detail = http.StatusText(status)
		return out
	}

	var env errorEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		out.Detail = truncate(string(trimmed), 200)
		return out
	}
	out.ErrorID = env.ErrorID
	out.Kind = env.Error
	out.Detail = detailText(env.Detail)
	if out.Detail == "" && out.Kind == "" {
		out.Detail = http.StatusText(status)
	}
	return out
}

// detailText flattens FastAPI style details: a plain string, or a list
// of validation items carrying a msg field.
func detailText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
		Loc []any  `json:"loc"`
	}
	if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
		parts := make([]string, 0, len(items))
		for _, it := range items {
			if len(it.Loc) > 0 {
				parts = append(parts, fmt.Sprintf("%v: %s", it.Loc[len(it.Loc)-1], it.Msg))
				continue
			}
			parts = append(parts, it.Msg)
		}
		return strings.Join(parts, "; ")
	}
	return truncate(string(raw), 200)
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
