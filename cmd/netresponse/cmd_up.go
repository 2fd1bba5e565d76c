package main

// ---------------------------------------------------------------------------
// cmd_up.go — start the response engine
// ---------------------------------------------------------------------------

import (
	"flag"
	"fmt"
	"os"

	"github.com/1sec-project/netresponse/internal/core"
)

func cmdUp(args []string) {
	fs := flag.NewFlagSet("up", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Config file path")
	baseURL := fs.String("base-url", "", "Management API base URL override")
	apiKey := fs.String("api-key", "", "Management API key override")
	logLevel := fs.String("log-level", "", "Log level override: debug, info, warn, error")
	dryRun := fs.Bool("dry-run", false, "Validate config, then exit")
	quiet := fs.Bool("quiet", false, "Suppress banner and non-essential output")
	fs.BoolVar(quiet, "q", false, "Suppress banner and non-essential output")
	noColor := fs.Bool("no-color", false, "Disable color output")
	fs.Parse(args)

	if *noColor {
		os.Setenv("NO_COLOR", "1")
	}
	if !*quiet {
		fmt.Fprint(os.Stderr, bannerText())
	}

	cfg := loadConfig(*configPath, *baseURL, *apiKey)
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	warnings, validationErrs := cfg.Validate()
	if !*quiet {
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "%s %s\n", yellow("⚠"), w)
		}
	}
	if len(validationErrs) > 0 {
		for _, e := range validationErrs {
			fmt.Fprintf(os.Stderr, "%s %s\n", red("✗"), e)
		}
		errorf("config validation failed with %d error(s)", len(validationErrs))
	}

	if *dryRun {
		table, _ := cfg.PolicyTable()
		fmt.Fprintf(os.Stdout, "%s Config valid. Policies:\n", green("✓"))
		writePolicyTable(os.Stdout, table)
		return
	}

	engine, err := core.NewEngine(cfg)
	if err != nil {
		errorf("%s", describeError(err))
	}
	engine.SetConfigPath(envConfig(*configPath))
	if err := engine.Run(); err != nil {
		errorf("%v", err)
	}
}
