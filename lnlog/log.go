// Package lnlog wires up the per-package subsystem loggers used across
// lnchand, and the single log rotator backend that feeds them.
package lnlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
	"github.com/lightningnetwork/lnd/build"
)

var (
	logWriter = &build.LogWriter{}

	// backendLog is the backend every subsystem logger below is created
	// from; it must not be used until InitLogRotator has run, or writes
	// race a nil rotator pipe.
	backendLog = btclog.NewBackend(logWriter)

	logRotator *rotator.Rotator

	// ChanLog is used by package chanstate and channel.
	ChanLog = build.NewSubLogger("CHAN", backendLog.Logger)
	// HTLCLog is used by package htlc.
	HTLCLog = build.NewSubLogger("HTLC", backendLog.Logger)
	// CDBLog is used by package channeldb.
	CDBLog = build.NewSubLogger("CDB ", backendLog.Logger)
	// BootLog is used by package bootstrap.
	BootLog = build.NewSubLogger("BOOT", backendLog.Logger)
)

// subsystemLoggers maps each four-character subsystem tag to its logger, for
// runtime level adjustment via SetLogLevels.
var subsystemLoggers = map[string]btclog.Logger{
	"CHAN": ChanLog,
	"HTLC": HTLCLog,
	"CDB ": CDBLog,
	"BOOT": BootLog,
}

// InitLogRotator creates a rotating log file at logFile, with each roll
// capped at maxFileSizeKB KB and at most maxFiles old files kept. It must run
// before any subsystem logger in this package is used for output to reach
// disk.
func InitLogRotator(logFile string, maxFileSizeKB, maxFiles int) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("lnlog: create log directory: %w", err)
	}

	r, err := rotator.New(logFile, int64(maxFileSizeKB)*1024, false, maxFiles)
	if err != nil {
		return fmt.Errorf("lnlog: create log rotator: %w", err)
	}

	pr, pw := io.Pipe()
	go r.Run(pr)

	logWriter.RotatorPipe = pw
	logRotator = r

	return nil
}

// SetLogLevels assigns every subsystem logger the same level, e.g. "debug".
func SetLogLevels(levelStr string) {
	level, ok := btclog.LevelFromString(levelStr)
	if !ok {
		return
	}
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
}

// Close flushes and closes the log rotator, if one was initialized.
func Close() {
	if logRotator != nil {
		logRotator.Close()
	}
}
