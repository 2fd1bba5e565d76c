package main

// ---------------------------------------------------------------------------
// cmd_config.go — show, validate, or initialize configuration
// ---------------------------------------------------------------------------

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/1sec-project/netresponse/internal/core"
)

func cmdConfig(args []string) {
	sub := "show"
	if len(args) > 0 && (args[0] == "show" || args[0] == "validate" || args[0] == "init") {
		sub = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet("config-"+sub, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Config file path")
	format := fs.String("format", "yaml", "Output format for show: yaml, json")
	force := fs.Bool("force", false, "Overwrite an existing file (init)")
	fs.Parse(args)

	path := envConfig(*configPath)
	switch sub {
	case "init":
		configInit(path, *force)
	case "validate":
		configValidate(path)
	default:
		configShow(path, *format)
	}
}

func configShow(path, format string) {
	cfg := loadConfig(path, "", "")
	if cfg.API.APIKey != "" {
		cfg.API.APIKey = "********"
	}
	if parseFormat(format) == FormatJSON {
		writeJSON(os.Stdout, cfg)
		return
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		errorf("marshaling config: %v", err)
	}
	fmt.Fprint(os.Stdout, string(data))
}

func configValidate(path string) {
	cfg, err := core.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s Config invalid: %v\n", red("✗"), err)
		os.Exit(1)
	}

	warnings, errs := cfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "%s %s\n", yellow("⚠"), w)
	}
	if len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "%s Config has %d issue(s):\n", red("✗"), len(errs))
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  - %s\n", e)
		}
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "%s Config valid (%s).\n", green("✓"), path)
}

func configInit(path string, force bool) {
	if _, err := os.Stat(path); err == nil && !force {
		errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		errorf("creating config dir: %v", err)
	}

	cfg := core.DefaultConfig()
	cfg.API.BaseURL = "https://management.example.com"
	if err := core.SaveConfig(cfg, path); err != nil {
		errorf("writing config: %v", err)
	}
	fmt.Fprintf(os.Stdout, "%s Wrote %s\n", green("✓"), path)
	fmt.Fprintf(os.Stdout, "  Set api.base_url, then export %s before running %s.\n", core.APIKeyEnv, bold("netresponse up"))
}
