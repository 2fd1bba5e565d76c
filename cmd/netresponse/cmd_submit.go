package main

// ---------------------------------------------------------------------------
// cmd_submit.go — submit threat events to the bus or process them locally
// ---------------------------------------------------------------------------

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/1sec-project/netresponse/internal/core"
)

func cmdSubmit(args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Config file path")
	baseURL := fs.String("base-url", "", "Management API base URL override (with --local)")
	apiKey := fs.String("api-key", "", "Management API key override (with --local)")
	busURL := fs.String("bus-url", "", "NATS URL override")
	local := fs.Bool("local", false, "Process events in this process instead of publishing them")
	format := fs.String("format", "table", "Output format: table, json")
	verbose := fs.Bool("verbose", false, "Log client activity to stderr")
	positional := parseArgs(fs, args)

	if len(positional) != 1 {
		errorf("usage: netresponse submit [--local] <file|->")
	}
	events, err := decodeEvents(readInput(positional[0]))
	if err != nil {
		errorf("%v", err)
	}

	cfg := loadConfig(*configPath, *baseURL, *apiKey)
	if *local {
		submitLocal(cfg, events, parseFormat(*format), *verbose)
		return
	}

	busCfg := cfg.Bus
	busCfg.Embedded = false
	if *busURL != "" {
		busCfg.URL = *busURL
	}
	bus, err := core.NewEventBus(&busCfg, cliLogger(cfg, *verbose))
	if err != nil {
		errorf("connecting to event bus at %s: %v", busCfg.URL, err)
	}
	defer bus.Close()

	for _, e := range events {
		if err := bus.PublishThreat(e); err != nil {
			errorf("%v", err)
		}
		fmt.Fprintf(os.Stdout, "%s published %s to %s\n", green("✓"), e.ID, core.ThreatSubject(e))
	}
}

// submitLocal runs each event through an in-process orchestrator and prints
// the actions taken. Rollbacks are not scheduled: the process exits.
func submitLocal(cfg *core.Config, events []*core.ThreatEvent, format OutputFormat, verbose bool) {
	table, err := cfg.PolicyTable()
	if err != nil {
		errorf("%v", err)
	}
	client := newClient(cfg, verbose)
	defer client.Close()

	logger := cliLogger(cfg, verbose)
	orch := core.NewOrchestrator(client, core.NewLedger(logger, nil), logger, core.WithPolicyTable(table))

	ctx, cancel := signalContext()
	defer cancel()

	all := make([]*core.SecurityAction, 0, len(events))
	for _, e := range events {
		actions, err := orch.ProcessThreatEvent(ctx, e)
		if err != nil {
			warnf("event %s: %v", e.ID, err)
			continue
		}
		if len(actions) == 0 && format != FormatJSON {
			fmt.Fprintf(os.Stdout, "%s %s (%s): monitor only, no action taken\n", dim("·"), e.ID, e.Severity)
		}
		all = append(all, actions...)
	}

	if format == FormatJSON {
		writeJSON(os.Stdout, all)
		return
	}
	writeActions(all)
}

func writeActions(actions []*core.SecurityAction) {
	if len(actions) == 0 {
		return
	}
	t := NewTable(os.Stdout, "ACTION", "KIND", "DEVICE", "STATUS", "ROLLBACK", "DETAIL")
	for _, a := range actions {
		detail := a.Error
		if a.Status == core.ActionStatusCompleted {
			detail = field(a.Result, "status", "message")
		}
		rollback := "-"
		if a.RollbackAfter > 0 {
			rollback = fmt.Sprintf("%ds", a.RollbackAfter)
		}
		t.AddRow(a.ID, string(a.Kind), a.DeviceID, string(a.Status), rollback, detail)
	}
	t.Render()
}

// decodeEvents accepts a single threat event object or an array of them.
func decodeEvents(data []byte) ([]*core.ThreatEvent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("no threat events in input")
	}

	var raws []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("parsing event list: %w", err)
		}
	} else {
		raws = []json.RawMessage{trimmed}
	}

	events := make([]*core.ThreatEvent, 0, len(raws))
	for i, raw := range raws {
		e, err := core.DecodeThreatEvent(raw)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, e)
	}
	return events, nil
}
