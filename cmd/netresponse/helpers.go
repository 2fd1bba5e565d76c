package main

// ---------------------------------------------------------------------------
// helpers.go — TTY detection, color, error helpers, config and client setup
// ---------------------------------------------------------------------------

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/1sec-project/netresponse/internal/core"
	"github.com/1sec-project/netresponse/internal/mgmtapi"
	"github.com/1sec-project/netresponse/internal/validate"
)

const (
	defaultConfigPath = "configs/netresponse.yaml"
	configEnv         = "NETRESPONSE_CONFIG"
)

// ---------------------------------------------------------------------------
// TTY / color helpers
// ---------------------------------------------------------------------------

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func colorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return isTTY(os.Stderr)
}

func ansi(code, s string) string {
	if !colorEnabled() {
		return s
	}
	return code + s + "\033[0m"
}

func red(s string) string    { return ansi("\033[91m", s) }
func yellow(s string) string { return ansi("\033[93m", s) }
func green(s string) string  { return ansi("\033[32m", s) }
func dim(s string) string    { return ansi("\033[90m", s) }
func bold(s string) string   { return ansi("\033[1m", s) }

// ---------------------------------------------------------------------------
// Error / warn helpers (always to stderr)
// ---------------------------------------------------------------------------

func errorf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, red("error: ")+format+"\n", args...)
	os.Exit(1)
}

func warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, yellow("warn: ")+format+"\n", args...)
}

// describeError renders client failures for the terminal. Validation
// failures name the offending field; API failures carry the safe message.
func describeError(err error) string {
	var verr *validate.ValidationError
	if errors.As(err, &verr) {
		return fmt.Sprintf("invalid %s: %s", verr.Field, verr.Reason)
	}
	var aerr *mgmtapi.APIError
	if errors.As(err, &aerr) {
		if mgmtapi.IsRetriable(err) {
			return aerr.Error() + " (retriable)"
		}
		return aerr.Error()
	}
	return err.Error()
}

// ---------------------------------------------------------------------------
// Env-based configuration
//
//   NETRESPONSE_CONFIG  — default config file path
//   NETRESPONSE_API_KEY — management API key
// ---------------------------------------------------------------------------

// envConfig returns the config path, preferring flag > env > default.
func envConfig(flagVal string) string {
	if flagVal != "" && flagVal != defaultConfigPath {
		return flagVal
	}
	if e := os.Getenv(configEnv); e != "" {
		return e
	}
	return flagVal
}

// loadConfig loads the config file and applies command-line overrides.
func loadConfig(configPath, baseURL, apiKey string) *core.Config {
	cfg, err := core.LoadConfig(envConfig(configPath))
	if err != nil {
		errorf("loading config: %v", err)
	}
	if baseURL != "" {
		cfg.API.BaseURL = baseURL
	}
	if apiKey != "" {
		cfg.API.APIKey = apiKey
	}
	return cfg
}

// cliLogger logs to stderr at warn level unless verbose is set, so command
// output on stdout stays machine-readable.
func cliLogger(cfg *core.Config, verbose bool) zerolog.Logger {
	logCfg := cfg.Logging
	if verbose {
		logCfg.Level = "debug"
	} else {
		logCfg.Level = "warn"
	}
	return core.NewLogger(logCfg, os.Stderr)
}

// newClient builds a management API client from cfg.
func newClient(cfg *core.Config, verbose bool) *mgmtapi.Client {
	client, err := core.NewClient(cfg.API, cliLogger(cfg, verbose), nil)
	if err != nil {
		errorf("%s", describeError(err))
	}
	return client
}

// signalContext is cancelled on SIGINT or SIGTERM, which cancels any
// in-flight API request.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// readInput reads a file, or stdin when path is "-".
func readInput(path string) []byte {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		errorf("reading %s: %v", path, err)
	}
	return data
}

// parseArgs parses fs from args, allowing flags after positional
// arguments, and returns the positional arguments in order.
func parseArgs(fs *flag.FlagSet, args []string) []string {
	var positional []string
	for {
		_ = fs.Parse(args)
		rest := fs.Args()
		if len(rest) == 0 {
			return positional
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

// ---------------------------------------------------------------------------
// Suggest — typo correction for unknown commands
// ---------------------------------------------------------------------------

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for _, c := range commands {
		names = append(names, c.name)
	}
	return names
}

func suggest(input string) string {
	input = strings.ToLower(input)
	names := commandNames()
	for _, c := range names {
		if strings.HasPrefix(c, input) || strings.HasPrefix(input, c) {
			return c
		}
	}
	for _, c := range names {
		if len(c) == len(input) {
			diff := 0
			for i := range c {
				if c[i] != input[i] {
					diff++
				}
			}
			if diff <= 1 {
				return c
			}
		}
	}
	return ""
}
