package main

import (
	"flag"
	"fmt"
	"os"
)

// version is injected at build time with -ldflags "-X main.version=...". Defaults to dev.
var version = "dev"

// cliConfig holds user supplied flag values prior to translation into
// tekhsi.Options so main.go can validate and map.
type cliConfig struct {
	instrumentURL string
	logLevel      string
	filterName    string
	waitMode      string
	showVersion   bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("tekhsi-example", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.instrumentURL, "instrument", "sim://localhost", "Instrument URL (sim:// drives an in-process simulated acquisition)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.filterName, "filter", "any_acq", "Acceptance filter: any_acq|any_vertical_change|any_horizontal_change")
	fs.StringVar(&cfg.waitMode, "wait-mode", "new_data", "access_data wait mode: new_data|next_acq|any_acq")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}
	switch cfg.filterName {
	case "any_acq", "any_vertical_change", "any_horizontal_change":
	default:
		return nil, fmt.Errorf("invalid filter %q", cfg.filterName)
	}
	switch cfg.waitMode {
	case "new_data", "next_acq", "any_acq":
	default:
		return nil, fmt.Errorf("invalid wait-mode %q", cfg.waitMode)
	}

	return cfg, nil
}
