// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	if initiated {
		os.Stdout.Write(p)
		LogRotator.Write(p)
	}
	return len(p), nil
}

// errLogWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type errLogWriter struct{}

func (errLogWriter) Write(p []byte) (n int, err error) {
	if initiated {
		os.Stdout.Write(p)
		ErrLogRotator.Write(p)
	}
	return len(p), nil
}

// Loggers per subsystem. A single backend logger is created and all
// subsystem loggers created from it write to the backend. When adding a
// new package, add its logger here and to the subsystemLoggers map.
//
// Loggers can not be used before the log rotator has been initialized with
// a log file. This must be performed early during application startup by
// calling InitLogRotators.
var (
	// backendLog is the logging backend used to create all subsystem
	// loggers. It must not be used before the log rotator has been
	// initialized, or data races and/or nil pointer dereferences will
	// occur.
	backendLog = btclog.NewBackend(logWriter{})

	// LogRotator is one of the logging outputs. It should be closed on
	// application shutdown.
	LogRotator    *rotator.Rotator
	ErrLogRotator *rotator.Rotator

	sltsLog = backendLog.Logger("SLTS")
	rndsLog = backendLog.Logger("RNDS")
	seqnLog = backendLog.Logger("SEQN")
	txplLog = backendLog.Logger("TXPL")
	blksLog = backendLog.Logger("BLKS")
	peerLog = backendLog.Logger("PEER")
	bcstLog = backendLog.Logger("BCST")
	loadLog = backendLog.Logger("LOAD")
	frgrLog = backendLog.Logger("FRGR")
	tprtLog = backendLog.Logger("TPRT")
	chnLog  = backendLog.Logger("CHN ")
	storLog = backendLog.Logger("STOR")
	cachLog = backendLog.Logger("CACH")
	netaLog = backendLog.Logger("NETA")
	busLog  = backendLog.Logger("BUS ")

	initiated = false
)

// SubsystemTags is an enum of all subsystem tags.
var SubsystemTags = struct {
	SLTS,
	RNDS,
	SEQN,
	TXPL,
	BLKS,
	PEER,
	BCST,
	LOAD,
	FRGR,
	TPRT,
	CHN,
	STOR,
	CACH,
	NETA,
	BUS string
}{
	SLTS: "SLTS",
	RNDS: "RNDS",
	SEQN: "SEQN",
	TXPL: "TXPL",
	BLKS: "BLKS",
	PEER: "PEER",
	BCST: "BCST",
	LOAD: "LOAD",
	FRGR: "FRGR",
	TPRT: "TPRT",
	CHN:  "CHN ",
	STOR: "STOR",
	CACH: "CACH",
	NETA: "NETA",
	BUS:  "BUS ",
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]btclog.Logger{
	SubsystemTags.SLTS: sltsLog,
	SubsystemTags.RNDS: rndsLog,
	SubsystemTags.SEQN: seqnLog,
	SubsystemTags.TXPL: txplLog,
	SubsystemTags.BLKS: blksLog,
	SubsystemTags.PEER: peerLog,
	SubsystemTags.BCST: bcstLog,
	SubsystemTags.LOAD: loadLog,
	SubsystemTags.FRGR: frgrLog,
	SubsystemTags.TPRT: tprtLog,
	SubsystemTags.CHN:  chnLog,
	SubsystemTags.STOR: storLog,
	SubsystemTags.CACH: cachLog,
	SubsystemTags.NETA: netaLog,
	SubsystemTags.BUS:  busLog,
}

// Subsystem returns the package-level logger for tag, e.g. "BLKS". Every
// package keeps the result in its own `log` variable at init time.
func Subsystem(tag string) btclog.Logger {
	return subsystemLoggers[tag]
}

// InitLogRotators initializes the logging rotators to write logs to
// logFile and errLogFile, creating roll files alongside them. It must be
// called before any subsystem logger is used to write.
func InitLogRotators(logFile, errLogFile string) error {
	r, err := initLogRotator(logFile)
	if err != nil {
		return err
	}
	er, err := initLogRotator(errLogFile)
	if err != nil {
		return err
	}
	LogRotator = r
	ErrLogRotator = er
	initiated = true
	return nil
}

func initLogRotator(logFile string) (*rotator.Rotator, error) {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to create file rotator: %w", err)
	}
	return r, nil
}

// Close flushes and closes both rotators.
func Close() error {
	if !initiated {
		return nil
	}
	var lastErr error
	if err := LogRotator.Close(); err != nil {
		lastErr = err
	}
	if err := ErrLogRotator.Close(); err != nil {
		lastErr = err
	}
	return lastErr
}

// SetLogLevel sets the logging level for the given subsystem. Invalid
// subsystems are ignored.
func SetLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the log level for every subsystem logger.
func SetLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		SetLogLevel(subsystemID, logLevel)
	}
}

// SupportedSubsystems returns a sorted slice of the supported subsystem
// tags, for help text and validation.
func SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// Get returns the logger of a specific subsystem.
func Get(tag string) (logger btclog.Logger, ok bool) {
	logger, ok = subsystemLoggers[tag]
	return
}

// ParseAndSetDebugLevels parses a "trace"-style global level, or a
// "SUBSYS=level,SUBSYS=level" list, and applies it.
func ParseAndSetDebugLevels(debugLevel string) error {
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%s] is invalid", debugLevel)
		}
		SetLogLevels(debugLevel)
		return nil
	}

	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return fmt.Errorf("the specified debug level contains an invalid subsystem/level pair [%s]", logLevelPair)
		}

		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		if _, exists := Get(subsysID); !exists {
			return fmt.Errorf("the specified subsystem [%s] is invalid -- supported subsystems %s",
				subsysID, strings.Join(SupportedSubsystems(), ", "))
		}

		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%s] is invalid", logLevel)
		}

		SetLogLevel(subsysID, logLevel)
	}

	return nil
}

func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}
