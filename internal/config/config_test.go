package config

import (
	"testing"
)

func clearScannerEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		EnvDataDir, EnvPort, EnvBatchSize, EnvFlushThreshold, EnvFlushIntervalMS,
		EnvHandleLimit, EnvDirConcurrency, EnvFollowSymlinks, EnvIncludeHidden,
		EnvMeasureLogical, EnvMeasureAllocated,
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_usesDefaultsWhenEnvUnset(t *testing.T) {
	clearScannerEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() err = %v, want nil", err)
	}
	if cfg.DataDir() != DefaultDataDir {
		t.Errorf("DataDir() = %q, want %q", cfg.DataDir(), DefaultDataDir)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.BatchSize() != DefaultBatchSize {
		t.Errorf("BatchSize() = %d, want %d", cfg.BatchSize(), DefaultBatchSize)
	}
	if cfg.FlushThreshold() != DefaultFlushThreshold {
		t.Errorf("FlushThreshold() = %d, want %d", cfg.FlushThreshold(), DefaultFlushThreshold)
	}
	if cfg.FlushIntervalMS() != DefaultFlushInterval {
		t.Errorf("FlushIntervalMS() = %d, want %d", cfg.FlushIntervalMS(), DefaultFlushInterval)
	}
	if cfg.HandleLimit() != 0 {
		t.Errorf("HandleLimit() = %d, want 0 (unlimited)", cfg.HandleLimit())
	}
	if cfg.DirConcurrency() != DefaultDirConcurrency {
		t.Errorf("DirConcurrency() = %d, want %d", cfg.DirConcurrency(), DefaultDirConcurrency)
	}
	sd := cfg.ScanDefaults()
	if sd.FollowSymlinks || sd.IncludeHidden {
		t.Errorf("ScanDefaults() = %+v, want follow_symlinks/include_hidden false", sd)
	}
	if !sd.MeasureLogical || !sd.MeasureAllocated {
		t.Errorf("ScanDefaults() = %+v, want measure_logical/measure_allocated true", sd)
	}
}

func TestLoad_usesEnvWhenSet(t *testing.T) {
	clearScannerEnv(t)
	t.Setenv(EnvDataDir, "/tmp/diskspector")
	t.Setenv(EnvPort, "9090")
	t.Setenv(EnvBatchSize, "200")
	t.Setenv(EnvFlushThreshold, "400")
	t.Setenv(EnvFlushIntervalMS, "250")
	t.Setenv(EnvHandleLimit, "1024")
	t.Setenv(EnvDirConcurrency, "8")
	t.Setenv(EnvIncludeHidden, "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() err = %v, want nil", err)
	}
	if cfg.DataDir() != "/tmp/diskspector" {
		t.Errorf("DataDir() = %q, want %q", cfg.DataDir(), "/tmp/diskspector")
	}
	if cfg.Port() != 9090 {
		t.Errorf("Port() = %d, want 9090", cfg.Port())
	}
	if cfg.BatchSize() != 200 {
		t.Errorf("BatchSize() = %d, want 200", cfg.BatchSize())
	}
	if cfg.FlushThreshold() != 400 {
		t.Errorf("FlushThreshold() = %d, want 400", cfg.FlushThreshold())
	}
	if cfg.HandleLimit() != 1024 {
		t.Errorf("HandleLimit() = %d, want 1024", cfg.HandleLimit())
	}
	if cfg.DirConcurrency() != 8 {
		t.Errorf("DirConcurrency() = %d, want 8", cfg.DirConcurrency())
	}
	if !cfg.ScanDefaults().IncludeHidden {
		t.Error("ScanDefaults().IncludeHidden = false, want true")
	}
}

func TestLoad_returnsErrorForInvalidPort(t *testing.T) {
	clearScannerEnv(t)
	t.Setenv(EnvPort, "not-a-number")

	if _, err := Load(); err == nil {
		t.Error("Load() err = nil, want non-nil for invalid port")
	}
}

func TestLoad_returnsErrorForOutOfRangePort(t *testing.T) {
	clearScannerEnv(t)
	t.Setenv(EnvPort, "-1")

	if _, err := Load(); err == nil {
		t.Error("Load() err = nil, want non-nil for negative port")
	}
}

func TestLoad_returnsErrorWhenFlushThresholdNotGreaterThanBatchSize(t *testing.T) {
	clearScannerEnv(t)
	t.Setenv(EnvBatchSize, "500")
	t.Setenv(EnvFlushThreshold, "500")

	if _, err := Load(); err == nil {
		t.Error("Load() err = nil, want non-nil when flush_threshold <= batch_size")
	}
}

func TestLoad_returnsErrorForDirConcurrencyOutOfRange(t *testing.T) {
	clearScannerEnv(t)
	t.Setenv(EnvDirConcurrency, "300")

	if _, err := Load(); err == nil {
		t.Error("Load() err = nil, want non-nil for dir_concurrency > 256")
	}
}
