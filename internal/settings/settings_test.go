package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	prefs, err := Load(filepath.Join(t.TempDir(), "nope", "settings.json"))
	require.NoError(t, err)
	require.Equal(t, Defaults(), prefs)
}

func TestUpdatePersistsAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auditctl", "settings.json")

	saved, err := Update(path, func(p *Preferences) error {
		p.APIURL = "http://backend.local:8000/api/v1/"
		p.Layout = "COMPACT"
		p.DarkMode = false
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "http://backend.local:8000/api/v1", saved.APIURL)
	require.Equal(t, LayoutCompact, saved.Layout)
	require.NotEmpty(t, saved.UpdatedAt)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, saved, loaded)
	require.False(t, loaded.DarkMode)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".auditctl-tmp-", "temp files must not be left behind")
	}
}

func TestUpdateCallbackErrorLeavesFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	_, err := Update(path, func(p *Preferences) error { return Set(p, "language", "de") })
	require.Error(t, err)
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := Load(path)
	require.ErrorContains(t, err, "parse JSON")
}

func TestSetValidatesValues(t *testing.T) {
	p := Defaults()
	require.NoError(t, Set(&p, "timeout_seconds", "45"))
	require.Equal(t, 45, p.TimeoutSeconds)
	require.NoError(t, Set(&p, "dark_mode", "false"))
	require.False(t, p.DarkMode)
	require.NoError(t, Set(&p, "language", "EN"))
	require.Equal(t, "en", p.Language)
	require.NoError(t, Set(&p, "api_url", "https://audit.example.com/api/v1"))

	require.Error(t, Set(&p, "timeout_seconds", "0"))
	require.Error(t, Set(&p, "dark_mode", "maybe"))
	require.Error(t, Set(&p, "layout", "tall"))
	require.Error(t, Set(&p, "api_url", "audit.example.com"))
	require.ErrorIs(t, Set(&p, "theme", "dark"), ErrUnknownKey)
}

func TestResolvePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	_, err := Update(path, func(p *Preferences) error {
		p.APIURL = "http://from-file:8000/api/v1"
		p.TimeoutSeconds = 12
		return nil
	})
	require.NoError(t, err)

	t.Setenv(EnvAPIURL, "")
	eff, err := Resolve(Overrides{ConfigPath: path})
	require.NoError(t, err)
	require.Equal(t, "http://from-file:8000/api/v1", eff.Preferences.APIURL)
	require.Equal(t, SourceFile, eff.Sources["api_url"])

	t.Setenv(EnvAPIURL, "http://from-env:8000/api/v1")
	eff, err = Resolve(Overrides{ConfigPath: path})
	require.NoError(t, err)
	require.Equal(t, "http://from-env:8000/api/v1", eff.Preferences.APIURL)
	require.Equal(t, SourceEnv, eff.Sources["api_url"])

	eff, err = Resolve(Overrides{ConfigPath: path, APIURL: "http://from-flag:8000/api/v1", TimeoutSeconds: 3})
	require.NoError(t, err)
	require.Equal(t, "http://from-flag:8000/api/v1", eff.Preferences.APIURL)
	require.Equal(t, SourceFlag, eff.Sources["api_url"])
	require.Equal(t, 3, eff.Preferences.TimeoutSeconds)
	require.Equal(t, "3s", eff.Timeout().String())
}

func TestResolveDefaultsWithoutFile(t *testing.T) {
	t.Setenv(EnvAPIURL, "")
	eff, err := Resolve(Overrides{ConfigPath: filepath.Join(t.TempDir(), "settings.json")})
	require.NoError(t, err)
	require.Equal(t, DefaultAPIURL, eff.Preferences.APIURL)
	require.Equal(t, SourceDefault, eff.Sources["api_url"])
}

func TestResolveRejectsBadEnvURL(t *testing.T) {
	t.Setenv(EnvAPIURL, "not a url")
	_, err := Resolve(Overrides{ConfigPath: filepath.Join(t.TempDir(), "settings.json")})
	require.ErrorContains(t, err, EnvAPIURL)
}

func TestDefaultPathHonoursEnv(t *testing.T) {
	t.Setenv(EnvConfig, "/tmp/custom/settings.json")
	p, err := DefaultPath()
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom/settings.json", p)

	t.Setenv(EnvConfig, "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	p, err = DefaultPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/tmp/xdg", "auditctl", "settings.json"), p)
}
