package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"auditctl/internal/settings"
)

func runSettings(args []string) error {
	if len(args) == 0 {
		printSettingsUsage()
		return nil
	}
	switch args[0] {
	case "show":
		return runSettingsShow(args[1:])
	case "set":
		return runSettingsSet(args[1:])
	case "path":
		return runSettingsPath(args[1:])
	case "help", "-h", "--help":
		printSettingsUsage()
		return nil
	default:
		printSettingsUsage()
		return fmt.Errorf("unknown settings subcommand %q", args[0])
	}
}

func runSettingsShow(args []string) error {
	fs := flag.NewFlagSet("settings show", flag.ContinueOnError)
	conn := addConnFlags(fs)
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	eff, err := conn.resolve()
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(eff)
	}

	p := eff.Preferences
	fmt.Fprintf(stdout, "config: %s\n", eff.ConfigPath)
	fmt.Fprintf(stdout, "api_url: %s (%s)\n", p.APIURL, eff.Sources["api_url"])
	fmt.Fprintf(stdout, "timeout_seconds: %d (%s)\n", p.TimeoutSeconds, eff.Sources["timeout_seconds"])
	fmt.Fprintf(stdout, "dark_mode: %t (%s)\n", p.DarkMode, eff.Sources["dark_mode"])
	fmt.Fprintf(stdout, "language: %s (%s)\n", p.Language, eff.Sources["language"])
	fmt.Fprintf(stdout, "layout: %s (%s)\n", p.Layout, eff.Sources["layout"])
	if p.UpdatedAt != "" {
		fmt.Fprintf(stdout, "updated_at: %s\n", p.UpdatedAt)
	}
	return nil
}

// runSettingsSet accepts key=value pairs, e.g. `settings set language=en layout=compact`.
func runSettingsSet(args []string) error {
	fs := flag.NewFlagSet("settings set", flag.ContinueOnError)
	config := fs.String("config", "", "settings file path")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	pairs := fs.Args()
	if len(pairs) == 0 {
		return fmt.Errorf("usage: auditctl settings set key=value... (keys: %s)", strings.Join(settings.Keys(), ", "))
	}

	type kvPair struct{ key, value string }
	parsed := make([]kvPair, 0, len(pairs))
	for _, raw := range pairs {
		k, v, ok := strings.Cut(raw, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return fmt.Errorf("invalid setting %q (want key=value)", raw)
		}
		parsed = append(parsed, kvPair{key: k, value: v})
	}

	path := strings.TrimSpace(*config)
	if path == "" {
		p, err := settings.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	saved, err := settings.Update(path, func(p *settings.Preferences) error {
		var errs []error
		for _, kv := range parsed {
			if err := settings.Set(p, kv.key, kv.value); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"config_path": path,
			"preferences": saved,
		})
	}
	fmt.Fprintf(stdout, "updated settings in %s\n", path)
	for _, kv := range parsed {
		fmt.Fprintf(stdout, "%s: %s\n", strings.ToLower(strings.TrimSpace(kv.key)), strings.TrimSpace(kv.value))
	}
	return nil
}

func runSettingsPath(args []string) error {
	fs := flag.NewFlagSet("settings path", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := settings.DefaultPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, p)
	return nil
}

func printSettingsUsage() {
	fmt.Fprintln(stdout, "Usage:")
	fmt.Fprintln(stdout, "  auditctl settings show [--json] [--config PATH]")
	fmt.Fprintln(stdout, "  auditctl settings set [--config PATH] key=value...")
	fmt.Fprintln(stdout, "  auditctl settings path")
	fmt.Fprintf(stdout, "Keys: %s\n", strings.Join(settings.Keys(), ", "))
}
