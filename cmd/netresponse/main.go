package main

// ---------------------------------------------------------------------------
// main.go — command dispatcher for the netresponse CLI
//
// Command implementations live in cmd_*.go. Shared helpers are in
// helpers.go, output.go and banner.go.
// ---------------------------------------------------------------------------

import (
	"fmt"
	"os"

	"github.com/1sec-project/netresponse/internal/core"
)

var (
	version   = "0.3.0"
	commit    = "dev"
	buildDate = "unknown"
)

func main() {
	core.Version = version

	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--version", "-V":
			printVersion(os.Stdout)
			os.Exit(0)
		case "--help", "-h", "help":
			if len(os.Args) >= 3 {
				cmdHelp(os.Args[2])
			} else {
				printUsage(os.Stdout)
			}
			os.Exit(0)
		}
	}

	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(0)
	}

	subcmd := os.Args[1]
	args := os.Args[2:]

	for _, a := range args {
		if a == "-h" || a == "--help" {
			cmdHelp(subcmd)
			os.Exit(0)
		}
	}

	switch subcmd {
	case "up":
		cmdUp(args)
	case "submit":
		cmdSubmit(args)
	case "device-status":
		cmdDeviceStatus(args)
	case "isolate":
		cmdIsolate(args)
	case "quarantine":
		cmdQuarantine(args)
	case "block":
		cmdBlock(args)
	case "rollback":
		cmdRollback(args)
	case "policy":
		cmdPolicy(args)
	case "threats":
		cmdThreats(args)
	case "config":
		cmdConfig(args)
	case "completions":
		cmdCompletions(args)
	case "version":
		printVersion(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, red("error: ")+"unknown command %q\n\n", subcmd)
		if s := suggest(subcmd); s != "" {
			fmt.Fprintf(os.Stderr, "       Did you mean %s?\n\n", bold(s))
		}
		printUsage(os.Stderr)
		os.Exit(1)
	}
}
