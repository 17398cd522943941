package config

import (
	"errors"
	"os"
	"strconv"
)

// Env names for configuration. Empty or unset means use default (where applicable).
const (
	EnvDataDir          = "DSP_DATA_DIR"
	EnvPort             = "DSP_PORT"
	EnvBatchSize        = "DSP_SCANNER_BATCH_SIZE"
	EnvFlushThreshold   = "DSP_SCANNER_FLUSH_THRESHOLD"
	EnvFlushIntervalMS  = "DSP_SCANNER_FLUSH_INTERVAL_MS"
	EnvHandleLimit      = "DSP_SCANNER_HANDLE_LIMIT"
	EnvDirConcurrency   = "DSP_SCANNER_DIR_CONCURRENCY"
	EnvFollowSymlinks   = "DSP_SCAN_DEFAULTS_FOLLOW_SYMLINKS"
	EnvIncludeHidden    = "DSP_SCAN_DEFAULTS_INCLUDE_HIDDEN"
	EnvMeasureLogical   = "DSP_SCAN_DEFAULTS_MEASURE_LOGICAL"
	EnvMeasureAllocated = "DSP_SCAN_DEFAULTS_MEASURE_ALLOCATED"
)

// Default values when env is unset (spec.md §6 "Configuration").
const (
	DefaultDataDir        = "./data"
	DefaultPort           = 8080
	DefaultBatchSize      = 500
	DefaultFlushThreshold = 1000
	DefaultFlushInterval  = 500 // ms
	DefaultDirConcurrency = 12
)

// Config holds application configuration loaded from the environment.
type Config struct {
	dataDir       string
	port          int
	batchSize     int
	flushThresh   int
	flushInterval int
	handleLimit   int // 0 means unlimited
	dirConcur     int
	scanDefaults  ScanDefaults
}

// ScanDefaults holds the fallback values a CreateScanRequest's optional
// boolean fields resolve against when unset. It covers only the four
// boolean scan options; excludes, max_depth and concurrency have no
// configured default.
type ScanDefaults struct {
	FollowSymlinks   bool
	IncludeHidden    bool
	MeasureLogical   bool
	MeasureAllocated bool
}

// Load reads configuration from the environment, applying spec.md §6's
// defaults for anything unset. Returns an error if a numeric env var is
// set but invalid.
func Load() (*Config, error) {
	dataDir := os.Getenv(EnvDataDir)
	if dataDir == "" {
		dataDir = DefaultDataDir
	}

	port, err := intEnv(EnvPort, DefaultPort, 0, 65535)
	if err != nil {
		return nil, err
	}
	batchSize, err := intEnv(EnvBatchSize, DefaultBatchSize, 1, 0)
	if err != nil {
		return nil, err
	}
	flushThresh, err := intEnv(EnvFlushThreshold, DefaultFlushThreshold, 1, 0)
	if err != nil {
		return nil, err
	}
	if flushThresh <= batchSize {
		return nil, errors.New("DSP_SCANNER_FLUSH_THRESHOLD must be greater than DSP_SCANNER_BATCH_SIZE")
	}
	flushInterval, err := intEnv(EnvFlushIntervalMS, DefaultFlushInterval, 1, 0)
	if err != nil {
		return nil, err
	}
	handleLimit, err := intEnv(EnvHandleLimit, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	dirConcur, err := intEnv(EnvDirConcurrency, DefaultDirConcurrency, 1, 256)
	if err != nil {
		return nil, err
	}

	return &Config{
		dataDir:       dataDir,
		port:          port,
		batchSize:     batchSize,
		flushThresh:   flushThresh,
		flushInterval: flushInterval,
		handleLimit:   handleLimit,
		dirConcur:     dirConcur,
		scanDefaults: ScanDefaults{
			FollowSymlinks:   boolEnv(EnvFollowSymlinks, false),
			IncludeHidden:    boolEnv(EnvIncludeHidden, false),
			MeasureLogical:   boolEnv(EnvMeasureLogical, true),
			MeasureAllocated: boolEnv(EnvMeasureAllocated, true),
		},
	}, nil
}

func intEnv(name string, def, min, max int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be a number")
	}
	if n < min {
		return 0, errors.New(name + " must be >= " + strconv.Itoa(min))
	}
	if max > 0 && n > max {
		return 0, errors.New(name + " must be <= " + strconv.Itoa(max))
	}
	return n, nil
}

func boolEnv(name string, def bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

// DataDir returns the path to the data directory (for the SQLite DB file).
func (c *Config) DataDir() string { return c.dataDir }

// Port returns the HTTP server port. Port 0 means "let the kernel choose
// an available port" (useful for tests).
func (c *Config) Port() int { return c.port }

// BatchSize returns scanner.batch_size. The aggregator flushes at
// max(flush_threshold, batch_size) records; insert chunk sizes come from
// SQLite's variable limit alone and do not depend on batch_size.
func (c *Config) BatchSize() int { return c.batchSize }

// FlushThreshold returns scanner.flush_threshold, always greater than
// BatchSize (spec.md §6).
func (c *Config) FlushThreshold() int { return c.flushThresh }

// FlushIntervalMS returns scanner.flush_interval_ms, the aggregator's
// periodic tick period.
func (c *Config) FlushIntervalMS() int { return c.flushInterval }

// HandleLimit returns scanner.handle_limit, or 0 if unset (unlimited).
func (c *Config) HandleLimit() int { return c.handleLimit }

// DirConcurrency returns scanner.dir_concurrency, the per-root worker
// pool size used when a scan request doesn't specify its own.
func (c *Config) DirConcurrency() int { return c.dirConcur }

// ScanDefaults returns the scan_defaults.* fallback values.
func (c *Config) ScanDefaults() ScanDefaults { return c.scanDefaults }
