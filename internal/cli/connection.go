package cli

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"auditctl/internal/api"
	"auditctl/internal/poller"
	"auditctl/internal/settings"
)

// connFlags are the flags every backend-facing command accepts.
type connFlags struct {
	apiURL  *string
	config  *string
	timeout *int
}

func addConnFlags(fs *flag.FlagSet) connFlags {
	return connFlags{
		apiURL:  fs.String("api-url", "", "backend base URL (default from settings, then "+settings.EnvAPIURL+")"),
		config:  fs.String("config", "", "settings file path (default "+settings.EnvConfig+" or user config dir)"),
		timeout: fs.Int("timeout", 0, "per-request timeout in seconds (0 uses settings)"),
	}
}

func (c connFlags) resolve() (settings.Effective, error) {
	return settings.Resolve(settings.Overrides{
		ConfigPath:     strings.TrimSpace(*c.config),
		APIURL:         strings.TrimSpace(*c.apiURL),
		TimeoutSeconds: *c.timeout,
	})
}

// session is a resolved configuration plus a client bound to it.
type session struct {
	eff    settings.Effective
	client *api.Client
}

func (c connFlags) open() (*session, error) {
	eff, err := c.resolve()
	if err != nil {
		return nil, err
	}
	client, err := api.New(api.Options{
		BaseURL: eff.Preferences.APIURL,
		Timeout: eff.Timeout(),
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("api_url", client.BaseURL()).Str("config", eff.ConfigPath).Msg("session opened")
	return &session{eff: eff, client: client}, nil
}

func (s *session) catalog() poller.Catalog {
	return poller.CatalogFor(s.eff.Preferences.Language)
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
