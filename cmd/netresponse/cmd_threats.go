package main

// ---------------------------------------------------------------------------
// cmd_threats.go — list recent threats from the management API
// ---------------------------------------------------------------------------

import (
	"flag"
	"fmt"
	"os"
)

func cmdThreats(args []string) {
	fs := flag.NewFlagSet("threats", flag.ExitOnError)
	cf := addClientFlags(fs)
	limit := fs.Int("limit", 100, "Maximum number of threats (1-1000)")
	severity := fs.String("severity", "", "Only threats of this severity: low, medium, high, critical")
	parseArgs(fs, args)

	client := cf.client()
	defer client.Close()
	ctx, cancel := signalContext()
	defer cancel()

	resp, err := client.GetThreats(ctx, *limit, *severity)
	if err != nil {
		errorf("%s", describeError(err))
	}
	if cf.outputFormat() == FormatJSON {
		writeJSON(os.Stdout, resp)
		return
	}

	threats, _ := resp["threats"].([]interface{})
	if len(threats) == 0 {
		fmt.Fprintln(os.Stdout, dim("No threats reported."))
		return
	}

	t := NewTable(os.Stdout, "ID", "TYPE", "SEVERITY", "DEVICE", "SOURCE", "TIME")
	for _, item := range threats {
		threat, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		t.AddRow(
			field(threat, "threat_id", "event_id", "id"),
			field(threat, "threat_type", "type"),
			field(threat, "severity"),
			field(threat, "device_id"),
			field(threat, "source_ip", "source_mac"),
			field(threat, "timestamp", "detected_at"),
		)
	}
	t.Render()
	fmt.Fprintf(os.Stdout, "%d threat(s)\n", len(threats))
}
