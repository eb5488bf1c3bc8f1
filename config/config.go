// Package config defines the daemon's static configuration surface: the
// protocol limits the acceptors validate against, and where persistence and
// logging write their output.
package config

import (
	"fmt"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultLocktimeMax         = 14 * 24 * 6 // ~2 weeks of 10-minute blocks
	defaultAnchorConfirmsMax   = 10_000
	defaultCommitFeeMinPercent = 50
	defaultCommitFeeMaxPercent = 1000
	defaultDBFilename          = "lightning.sqlite3"
	defaultLogFilename         = "lnchand.log"
	defaultLogLevel            = "info"
	defaultMaxLogFiles         = 3
	defaultMaxLogFileSizeKB    = 10 * 1024
)

// Config is the full set of tunables used across lnchand's packages. It can
// be populated from command-line flags via go-flags (Parse), or constructed
// directly with Default() by an embedder.
type Config struct {
	// LocktimeMax bounds the delay an OPEN's counterparty may request, in
	// blocks.
	LocktimeMax uint32 `long:"locktimemax" description:"Maximum delay, in blocks, an OPEN packet's counterparty may request"`

	// AnchorConfirmsMax bounds the min_depth an OPEN may request.
	AnchorConfirmsMax uint32 `long:"anchorconfirmsmax" description:"Maximum min_depth an OPEN packet may request"`

	// CommitFeeMinPercent and CommitFeeMaxPercent bound an OPEN's
	// initial_fee_rate as a percentage of our own feerate estimate.
	CommitFeeMinPercent uint32 `long:"commitfeeminpercent" description:"Minimum accepted commitment feerate, as a percentage of our own estimate"`
	CommitFeeMaxPercent uint32 `long:"commitfeemaxpercent" description:"Maximum accepted commitment feerate, as a percentage of our own estimate"`

	// DBPath is the sqlite database file path.
	DBPath string `long:"dbpath" description:"Path to the sqlite database file"`

	// LogDir, LogLevel, MaxLogFiles, and MaxLogFileSizeKB configure the
	// log rotator.
	LogDir          string `long:"logdir" description:"Directory to write log files to"`
	LogLevel        string `long:"loglevel" description:"Logging level for all subsystems: trace, debug, info, warn, error, critical"`
	MaxLogFiles     int    `long:"maxlogfiles" description:"Maximum rotated log files to keep"`
	MaxLogFileSizeKB int   `long:"maxlogfilesizekb" description:"Maximum size, in KB, of each log file before rotation"`
}

// Default returns a Config populated with this daemon's historical defaults.
func Default() *Config {
	return &Config{
		LocktimeMax:         defaultLocktimeMax,
		AnchorConfirmsMax:   defaultAnchorConfirmsMax,
		CommitFeeMinPercent: defaultCommitFeeMinPercent,
		CommitFeeMaxPercent: defaultCommitFeeMaxPercent,
		DBPath:              defaultDBFilename,
		LogDir:              "logs",
		LogLevel:            defaultLogLevel,
		MaxLogFiles:         defaultMaxLogFiles,
		MaxLogFileSizeKB:    defaultMaxLogFileSizeKB,
	}
}

// Parse populates a Config from the given command-line arguments, layering
// onto the historical defaults.
func Parse(args []string) (*Config, error) {
	cfg := Default()

	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, fmt.Errorf("config: parse arguments: %w", err)
	}

	return cfg, nil
}

// Validate checks the cross-field invariants the acceptors assume hold.
func (c *Config) Validate() error {
	if c.CommitFeeMinPercent > c.CommitFeeMaxPercent {
		return fmt.Errorf(
			"config: commitfeeminpercent (%d) exceeds commitfeemaxpercent (%d)",
			c.CommitFeeMinPercent, c.CommitFeeMaxPercent,
		)
	}
	return nil
}
