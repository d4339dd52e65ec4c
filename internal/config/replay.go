package config

import "github.com/spf13/pflag"

// ReplayConfig holds configuration for replaying an operations file.
type ReplayConfig struct {
	In          string
	Errors      string
	StateFile   string
	EventsOut   string
	PGDSN       string
	BatchSize   uint64
	StopOnError bool
	LogLevel    string
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"in":         "./data/operations.jsonl",
		"errors":     "./data/operation_errors.jsonl",
		"state-file": "./data/state.json",
		"events-out": "./data/events.jsonl",
		"batch-size": uint64(500),
		"log-level":  "info",
	})
	if err != nil {
		return ReplayConfig{}, err
	}

	cfg := ReplayConfig{
		In:          v.GetString("in"),
		Errors:      v.GetString("errors"),
		StateFile:   v.GetString("state-file"),
		EventsOut:   v.GetString("events-out"),
		PGDSN:       v.GetString("pg-dsn"),
		BatchSize:   v.GetUint64("batch-size"),
		StopOnError: v.GetBool("stop-on-error"),
		LogLevel:    v.GetString("log-level"),
	}

	return cfg, nil
}
