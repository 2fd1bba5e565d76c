package main

// ---------------------------------------------------------------------------
// cmd_device.go — direct device and mitigation commands
// ---------------------------------------------------------------------------

import (
	"flag"
	"os"
	"strings"

	"github.com/1sec-project/netresponse/internal/mgmtapi"
)

// clientFlags are shared by every command that talks to the management API.
type clientFlags struct {
	configPath *string
	baseURL    *string
	apiKey     *string
	format     *string
	verbose    *bool
}

func addClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		configPath: fs.String("config", defaultConfigPath, "Config file path"),
		baseURL:    fs.String("base-url", "", "Management API base URL override"),
		apiKey:     fs.String("api-key", "", "Management API key override"),
		format:     fs.String("format", "table", "Output format: table, json"),
		verbose:    fs.Bool("verbose", false, "Log client activity to stderr"),
	}
}

func (f clientFlags) client() *mgmtapi.Client {
	cfg := loadConfig(*f.configPath, *f.baseURL, *f.apiKey)
	return newClient(cfg, *f.verbose)
}

func (f clientFlags) outputFormat() OutputFormat {
	return parseFormat(*f.format)
}

func cmdDeviceStatus(args []string) {
	fs := flag.NewFlagSet("device-status", flag.ExitOnError)
	cf := addClientFlags(fs)
	positional := parseArgs(fs, args)
	if len(positional) != 1 {
		errorf("usage: netresponse device-status <device-id>")
	}

	client := cf.client()
	defer client.Close()
	ctx, cancel := signalContext()
	defer cancel()

	status, err := client.GetDeviceStatus(ctx, positional[0])
	if err != nil {
		errorf("%s", describeError(err))
	}
	if cf.outputFormat() == FormatJSON {
		writeJSON(os.Stdout, status)
		return
	}
	writeKV(os.Stdout, status)
}

func cmdIsolate(args []string) {
	fs := flag.NewFlagSet("isolate", flag.ExitOnError)
	cf := addClientFlags(fs)
	rollback := fs.Int("rollback", -1, "Seconds until the isolation is lifted (0-86400); omitted when negative")
	positional := parseArgs(fs, args)
	if len(positional) != 1 {
		errorf("usage: netresponse isolate <device-id> [--rollback seconds]")
	}

	var timer *int
	if *rollback >= 0 {
		timer = rollback
	}

	client := cf.client()
	defer client.Close()
	ctx, cancel := signalContext()
	defer cancel()

	result, err := client.IsolateDevice(ctx, positional[0], timer)
	if err != nil {
		errorf("%s", describeError(err))
	}
	writeResult(os.Stdout, cf.outputFormat(), "isolated "+positional[0], result)
}

func cmdQuarantine(args []string) {
	fs := flag.NewFlagSet("quarantine", flag.ExitOnError)
	cf := addClientFlags(fs)
	reason := fs.String("reason", "", "Reason recorded with the quarantine (max 200 characters)")
	devices := parseArgs(fs, args)
	if len(devices) == 0 {
		errorf("usage: netresponse quarantine <device-id>... [--reason text]")
	}

	client := cf.client()
	defer client.Close()
	ctx, cancel := signalContext()
	defer cancel()

	var (
		result map[string]interface{}
		err    error
	)
	if len(devices) == 1 {
		result, err = client.QuarantineDevice(ctx, devices[0], *reason)
	} else {
		result, err = client.MassQuarantine(ctx, devices, *reason)
	}
	if err != nil {
		errorf("%s", describeError(err))
	}
	writeResult(os.Stdout, cf.outputFormat(), "quarantined "+strings.Join(devices, ", "), result)
}

func cmdBlock(args []string) {
	fs := flag.NewFlagSet("block", flag.ExitOnError)
	cf := addClientFlags(fs)
	device := fs.String("device", "", "Device reporting the threat")
	ip := fs.String("ip", "", "Source IP address to block")
	mac := fs.String("mac", "", "Source MAC address to block")
	threat := fs.String("threat", "", "Threat id the block responds to")
	reason := fs.String("reason", "", "Reason recorded with the block (max 200 characters)")
	parseArgs(fs, args)

	client := cf.client()
	defer client.Close()
	ctx, cancel := signalContext()
	defer cancel()

	result, err := client.BlockThreat(ctx, mgmtapi.BlockRequest{
		DeviceID:  *device,
		SourceIP:  *ip,
		SourceMAC: *mac,
		ThreatID:  *threat,
		Reason:    *reason,
	})
	if err != nil {
		errorf("%s", describeError(err))
	}
	target := *ip
	if target == "" {
		target = *mac
	}
	writeResult(os.Stdout, cf.outputFormat(), "blocked "+target, result)
}

func cmdRollback(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	cf := addClientFlags(fs)
	positional := parseArgs(fs, args)
	if len(positional) != 1 {
		errorf("usage: netresponse rollback <action-id>")
	}

	client := cf.client()
	defer client.Close()
	ctx, cancel := signalContext()
	defer cancel()

	result, err := client.RollbackAction(ctx, positional[0])
	if err != nil {
		errorf("%s", describeError(err))
	}
	writeResult(os.Stdout, cf.outputFormat(), "rolled back "+positional[0], result)
}
