package main

// ---------------------------------------------------------------------------
// cmd_policy.go — local response policy table and remote policy updates
// ---------------------------------------------------------------------------

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/1sec-project/netresponse/internal/core"
)

func cmdPolicy(args []string) {
	if len(args) == 0 {
		cmdHelp("policy")
		os.Exit(0)
	}
	switch args[0] {
	case "show":
		cmdPolicyShow(args[1:])
	case "update":
		cmdPolicyUpdate(args[1:])
	default:
		errorf("unknown policy subcommand %q (show, update)", args[0])
	}
}

func cmdPolicyShow(args []string) {
	fs := flag.NewFlagSet("policy-show", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Config file path")
	format := fs.String("format", "table", "Output format: table, json")
	fs.Parse(args)

	cfg := loadConfig(*configPath, "", "")
	table, err := cfg.PolicyTable()
	if err != nil {
		errorf("%v", err)
	}

	if parseFormat(*format) == FormatJSON {
		out := make(map[string]core.Policy, len(core.Severities))
		for _, s := range core.Severities {
			out[s.String()], _ = table.Lookup(s)
		}
		writeJSON(os.Stdout, out)
		return
	}
	writePolicyTable(os.Stdout, table)
}

func writePolicyTable(w io.Writer, table core.PolicyTable) {
	t := NewTable(w, "SEVERITY", "ACTION", "ROLLBACK")
	for _, s := range core.Severities {
		p, _ := table.Lookup(s)
		rollback := "-"
		if _, acts := p.ActionKind(); acts && p.Duration > 0 {
			rollback = fmt.Sprintf("%ds", p.Duration)
		}
		t.AddRow(s.String(), string(p.Action), rollback)
	}
	t.Render()
}

func cmdPolicyUpdate(args []string) {
	fs := flag.NewFlagSet("policy-update", flag.ExitOnError)
	cf := addClientFlags(fs)
	positional := parseArgs(fs, args)
	if len(positional) != 2 {
		errorf("usage: netresponse policy update <policy-id> <file|->")
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(readInput(positional[1]), &doc); err != nil {
		errorf("parsing policy document: %v", err)
	}

	client := cf.client()
	defer client.Close()
	ctx, cancel := signalContext()
	defer cancel()

	result, err := client.UpdateSecurityPolicy(ctx, positional[0], doc)
	if err != nil {
		errorf("%s", describeError(err))
	}
	writeResult(os.Stdout, cf.outputFormat(), "updated policy "+positional[0], result)
}
