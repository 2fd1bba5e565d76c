package core

import (
	"errors"
	"fmt"
)

// ReloadConfig re-reads the config file and applies the settings that can
// change without a restart. It returns a description of each change.
//
// Hot-reloadable settings:
//   - per-severity response policies
//   - logging level
//
// Everything else (API endpoint and credential, bus, intake, archive,
// metrics) is reported but only takes effect after a restart. A file that
// fails to load or carries an invalid policy table changes nothing.
func ReloadConfig(engine *Engine, configPath string) ([]string, error) {
	if configPath == "" {
		return nil, errors.New("no config path set, cannot reload")
	}

	newCfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	table, err := newCfg.PolicyTable()
	if err != nil {
		return nil, err
	}

	var changes []string

	current := engine.Orchestrator.Policies()
	for _, sev := range Severities {
		if table[sev] != current[sev] {
			changes = append(changes, fmt.Sprintf("policies.%s → %s (%ds)", sev, table[sev].Action, table[sev].Duration))
		}
	}
	engine.Orchestrator.SetPolicyTable(table)
	engine.Config.Policies = newCfg.Policies

	if newCfg.LogLevel() != engine.Config.LogLevel() {
		engine.Config.Logging.Level = newCfg.Logging.Level
		engine.SetLogLevel(ParseLogLevel(newCfg.LogLevel()))
		changes = append(changes, "logging.level → "+newCfg.LogLevel())
	}

	if newCfg.API != engine.Config.API {
		changes = append(changes, "api settings changed (restart required)")
	}
	if newCfg.Bus != engine.Config.Bus {
		changes = append(changes, "bus settings changed (restart required)")
	}

	if len(changes) == 0 {
		changes = append(changes, "no changes detected")
	}

	engine.Logger.Info().Strs("changes", changes).Str("path", configPath).Msg("configuration reloaded")
	return changes, nil
}
