package main

// ---------------------------------------------------------------------------
// banner.go — banner, version and usage printing
// ---------------------------------------------------------------------------

import (
	"fmt"
	"io"
	"os"
	goruntime "runtime"
	"runtime/debug"

	"github.com/1sec-project/netresponse/internal/core"
)

func bannerText() string {
	text := `
    ╔══════════════════════════════════════════════════╗
    ║                                                  ║
    ║    N E T R E S P O N S E                         ║
    ║    automated network threat response             ║
    ║                                                  ║
    ╚══════════════════════════════════════════════════╝
`
	if !colorEnabled() {
		return text
	}
	return "\033[36m" + text + "\033[0m"
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "netresponse v%s", version)
	if commit != "dev" {
		fmt.Fprintf(w, " (%s)", commit[:min(7, len(commit))])
	}
	if buildDate != "unknown" {
		fmt.Fprintf(w, " built %s", buildDate)
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fmt.Fprintf(w, " %s", bi.GoVersion)
	}
	fmt.Fprintf(w, " %s/%s", goruntime.GOOS, goruntime.GOARCH)
	fmt.Fprintln(w)
}

// commands lists every subcommand for usage, completions and suggestions.
var commands = []struct {
	name    string
	summary string
}{
	{"up", "Start the response engine (bus intake, rollbacks, audit archive)"},
	{"submit", "Submit threat events from a JSON file"},
	{"device-status", "Show the status of a device"},
	{"isolate", "Isolate a device, optionally with a rollback timer"},
	{"quarantine", "Quarantine one or more devices"},
	{"block", "Block a malicious source address"},
	{"rollback", "Revert a previously executed action"},
	{"policy", "Show the response policy table or update a remote policy"},
	{"threats", "List recent threats from the management API"},
	{"config", "Show, validate, or initialize configuration"},
	{"completions", "Generate shell completion scripts"},
	{"version", "Print version and build info"},
	{"help", "Show help for a command"},
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, bannerText())
	fmt.Fprintf(w, "  %s\n\n", dim("v"+version))
	fmt.Fprintf(w, "%s\n\n", bold("USAGE"))
	fmt.Fprintf(w, "  netresponse <command> [flags]\n\n")
	fmt.Fprintf(w, "%s\n\n", bold("COMMANDS"))
	for _, c := range commands {
		fmt.Fprintf(w, "  %-16s  %s\n", bold(c.name), c.summary)
	}
	fmt.Fprintf(w, "\n%s\n\n", bold("GLOBAL FLAGS"))
	fmt.Fprintf(w, "  %-22s  %s\n", "--config <path>", "Config file path (default: "+defaultConfigPath+", env: "+configEnv+")")
	fmt.Fprintf(w, "  %-22s  %s\n", "--base-url <url>", "Management API base URL override")
	fmt.Fprintf(w, "  %-22s  %s\n", "--api-key <key>", "API key (env: "+core.APIKeyEnv+")")
	fmt.Fprintf(w, "  %-22s  %s\n", "--format <fmt>", "Output format: table, json (default: table)")
	fmt.Fprintf(w, "  %-22s  %s\n", "--version, -V", "Print version and exit")
	fmt.Fprintf(w, "\n%s\n\n", bold("EXAMPLES"))
	fmt.Fprintf(w, "  %s\n", dim("# Run the engine with the embedded event bus"))
	fmt.Fprintf(w, "  netresponse up\n\n")
	fmt.Fprintf(w, "  %s\n", dim("# Apply policy to an event directly, without the bus"))
	fmt.Fprintf(w, "  netresponse submit --local event.json\n\n")
	fmt.Fprintf(w, "  %s\n", dim("# Isolate a device for one hour"))
	fmt.Fprintf(w, "  netresponse isolate AP001 --rollback 3600\n\n")
	fmt.Fprintf(w, "  %s\n", dim("# List the last 20 critical threats as JSON"))
	fmt.Fprintf(w, "  netresponse threats --limit 20 --severity critical --format json\n\n")
	fmt.Fprintf(w, "Run %s for detailed help on any command.\n\n", bold("netresponse help <command>"))
}

var commandHelp = map[string]string{
	"up": `netresponse up [--config path] [--log-level level] [--dry-run] [--quiet]

Starts the engine: connects (or embeds) the NATS event bus, consumes threat
events from sec.threats.>, applies the policy table, schedules rollbacks,
archives every recorded action and serves /metrics, /healthz and /logs.
Send SIGHUP to reload the policy table and log level from the config file.`,
	"submit": `netresponse submit [--local] [--config path] <file|->

Reads one threat event, or a JSON array of them, and publishes each to the
event bus. With --local the events are processed in this process against the
management API and the resulting actions are printed.`,
	"device-status": `netresponse device-status <device-id> [--format table|json]`,
	"isolate":       `netresponse isolate <device-id> [--rollback seconds]`,
	"quarantine": `netresponse quarantine <device-id>... [--reason text]

With more than one device id the devices are quarantined in a single call.`,
	"block":    `netresponse block --device <id> [--ip addr] [--mac addr] [--threat id] [--reason text]`,
	"rollback": `netresponse rollback <action-id>`,
	"policy": `netresponse policy show [--config path]
netresponse policy update <policy-id> <file|->`,
	"threats":     `netresponse threats [--limit n] [--severity level] [--format table|json]`,
	"config":      `netresponse config [show|validate|init] [--config path] [--force]`,
	"completions": `netresponse completions <bash|zsh|fish>`,
	"version":     `netresponse version`,
}

func cmdHelp(name string) {
	text, ok := commandHelp[name]
	if !ok {
		fmt.Fprintf(os.Stderr, red("error: ")+"no help for %q\n\n", name)
		printUsage(os.Stderr)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stdout, text)
}
