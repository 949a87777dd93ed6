package settings

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	EnvAPIURL    = "AUDITCTL_API_URL"
	EnvConfig    = "AUDITCTL_CONFIG"
	EnvLogLevel  = "AUDITCTL_LOG_LEVEL"
	EnvLogFormat = "AUDITCTL_LOG_FORMAT"

	DefaultAPIURL         = "http://127.0.0.1:8000/api/v1"
	DefaultTimeoutSeconds = 30
	DefaultLanguage       = "fr"
	DefaultLayout         = LayoutWide

	LayoutWide    = "wide"
	LayoutCompact = "compact"

	SourceDefault = "default"
	SourceFile    = "file"
	SourceEnv     = "env"
	SourceFlag    = "flag"
)

var ErrUnknownKey = errors.New("unknown settings key")

// Preferences is what the settings file holds.
type Preferences struct {
	APIURL         string `json:"api_url,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	DarkMode       bool   `json:"dark_mode"`
	Language       string `json:"language,omitempty"`
	Layout         string `json:"layout,omitempty"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

func Defaults() Preferences {
	return Preferences{
		APIURL:         DefaultAPIURL,
		TimeoutSeconds: DefaultTimeoutSeconds,
		DarkMode:       true,
		Language:       DefaultLanguage,
		Layout:         DefaultLayout,
	}
}

func Normalize(raw Preferences) Preferences {
	norm := raw
	norm.APIURL = strings.TrimRight(strings.TrimSpace(norm.APIURL), "/")
	if norm.APIURL == "" {
		norm.APIURL = DefaultAPIURL
	}
	if norm.TimeoutSeconds <= 0 {
		norm.TimeoutSeconds = DefaultTimeoutSeconds
	}
	norm.Language = normalizeLanguage(norm.Language)
	norm.Layout = normalizeLayout(norm.Layout)
	return norm
}

func normalizeLanguage(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "en":
		return "en"
	default:
		return DefaultLanguage
	}
}

func normalizeLayout(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case LayoutCompact:
		return LayoutCompact
	default:
		return LayoutWide
	}
}

// DefaultPath is $AUDITCTL_CONFIG, else auditctl/settings.json under the
// user config directory.
func DefaultPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfig)); p != "" {
		return p, nil
	}
	root, err := os.UserConfigDir()
	if err != nil || strings.TrimSpace(root) == "" {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", fmt.Errorf("resolve config directory: %w", homeErr)
		}
		root = filepath.Join(home, ".config")
	}
	return filepath.Join(root, "auditctl", "settings.json"), nil
}

func resolvePath(path string) (string, error) {
	if p := strings.TrimSpace(path); p != "" {
		return p, nil
	}
	return DefaultPath()
}

// Load reads the settings file. A missing file yields the defaults.
func Load(path string) (Preferences, error) {
	p, err := resolvePath(path)
	if err != nil {
		return Preferences{}, err
	}
	lock := flock.New(p + ".lock")
	if _, statErr := os.Stat(filepath.Dir(p)); statErr == nil {
		if err := lock.RLock(); err != nil {
			return Preferences{}, fmt.Errorf("acquire read lock for %s: %w", p, err)
		}
		defer func() { _ = lock.Unlock() }()
	}
	return loadUnlocked(p)
}

func loadUnlocked(path string) (Preferences, error) {
	prefs := Defaults()
	if err := readJSON(path, &prefs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Defaults(), nil
		}
		return Preferences{}, err
	}
	return Normalize(prefs), nil
}

// Update applies fn to the stored preferences under an exclusive file lock
// and writes the result atomically.
func Update(path string, fn func(*Preferences) error) (Preferences, error) {
	p, err := resolvePath(path)
	if err != nil {
		return Preferences{}, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Preferences{}, fmt.Errorf("create config directory for %s: %w", p, err)
	}

	lock := flock.New(p + ".lock")
	if err := lock.Lock(); err != nil {
		return Preferences{}, fmt.Errorf("acquire write lock for %s: %w", p, err)
	}
	defer func() { _ = lock.Unlock() }()

	prefs, err := loadUnlocked(p)
	if err != nil {
		return Preferences{}, err
	}
	if err := fn(&prefs); err != nil {
		return Preferences{}, err
	}
	prefs = Normalize(prefs)
	prefs.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := writeJSON(p, prefs); err != nil {
		return Preferences{}, err
	}
	return prefs, nil
}

// Keys lists the settable keys in stable order.
func Keys() []string {
	return []string{"api_url", "dark_mode", "language", "layout", "timeout_seconds"}
}

// Set assigns one key from its textual form, validating the value.
func Set(prefs *Preferences, key, value string) error {
	v := strings.TrimSpace(value)
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "api_url":
		if err := ValidateAPIURL(v); err != nil {
			return err
		}
		prefs.APIURL = v
	case "timeout_seconds":
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("timeout_seconds must be a positive integer, got %q", value)
		}
		prefs.TimeoutSeconds = n
	case "dark_mode":
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("dark_mode must be true or false, got %q", value)
		}
		prefs.DarkMode = b
	case "language":
		l := strings.ToLower(v)
		if l != "fr" && l != "en" {
			return fmt.Errorf("language must be fr or en, got %q", value)
		}
		prefs.Language = l
	case "layout":
		l := strings.ToLower(v)
		if l != LayoutWide && l != LayoutCompact {
			return fmt.Errorf("layout must be %s or %s, got %q", LayoutWide, LayoutCompact, value)
		}
		prefs.Layout = l
	default:
		return fmt.Errorf("%w %q (valid: %s)", ErrUnknownKey, key, strings.Join(Keys(), ", "))
	}
	return nil
}

func ValidateAPIURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid api_url %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api_url %q: want http(s)://host[:port]/path", raw)
	}
	return nil
}

// Overrides carries flag values; empty fields mean "not given".
type Overrides struct {
	ConfigPath     string
	APIURL         string
	TimeoutSeconds int
}

// Effective is the merged runtime configuration.
type Effective struct {
	ConfigPath  string            `json:"config_path"`
	Preferences Preferences       `json:"preferences"`
	Sources     map[string]string `json:"sources"`
}

func (e Effective) Timeout() time.Duration {
	return time.Duration(e.Preferences.TimeoutSeconds) * time.Second
}

// Resolve merges flag > env > file > default.
func Resolve(o Overrides) (Effective, error) {
	path, err := resolvePath(o.ConfigPath)
	if err != nil {
		return Effective{}, err
	}
	fileExists := false
	if _, statErr := os.Stat(path); statErr == nil {
		fileExists = true
	}
	prefs, err := Load(path)
	if err != nil {
		return Effective{}, err
	}

	fileOrDefault := SourceDefault
	if fileExists {
		fileOrDefault = SourceFile
	}
	sources := map[string]string{
		"api_url":         fileOrDefault,
		"timeout_seconds": fileOrDefault,
		"dark_mode":       fileOrDefault,
		"language":        fileOrDefault,
		"layout":          fileOrDefault,
	}

	if env := strings.TrimSpace(os.Getenv(EnvAPIURL)); env != "" {
		if err := ValidateAPIURL(env); err != nil {
			return Effective{}, fmt.Errorf("%s: %w", EnvAPIURL, err)
		}
		prefs.APIURL = env
		sources["api_url"] = SourceEnv
	}
	if flagURL := strings.TrimSpace(o.APIURL); flagURL != "" {
		if err := ValidateAPIURL(flagURL); err != nil {
			return Effective{}, err
		}
		prefs.APIURL = flagURL
		sources["api_url"] = SourceFlag
	}
	if o.TimeoutSeconds > 0 {
		prefs.TimeoutSeconds = o.TimeoutSeconds
		sources["timeout_seconds"] = SourceFlag
	}

	return Effective{
		ConfigPath:  path,
		Preferences: Normalize(prefs),
		Sources:     sources,
	}, nil
}
