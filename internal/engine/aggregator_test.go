package engine

import (
	"context"
	"testing"
	"time"

	"github.com/kestrel-labs/diskspector/internal/db"
)

func TestAggregatorFlushesOnThreshold(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer database.Close()
	if err := db.Migrate(database); err != nil {
		t.Fatalf("db.Migrate: %v", err)
	}
	ctx := context.Background()
	if _, err := db.CreateScan(ctx, database, "scan-1", []string{"/tmp"}, db.ScanOptions{}); err != nil {
		t.Fatalf("db.CreateScan: %v", err)
	}

	parent := "/tmp"
	in := make(chan batch, 4)
	in <- batch{
		nodes:   []NodeRecord{{Path: "/tmp", Depth: 0, LogicalSize: 100, AllocatedSize: 100, FileCount: 1, DirCount: 0}},
		files:   []FileRecord{{Path: "/tmp/a", ParentPath: &parent, LogicalSize: 100, AllocatedSize: 100}},
		summary: ResultSummary{TotalDirs: 1, TotalFiles: 1, TotalLogicalSize: 100, TotalAllocatedSize: 100},
	}
	in <- batch{warnings: []WarningRecord{{Path: "/tmp/b", Code: "metadata_failed", Message: "failed to stat"}}, summary: ResultSummary{Warnings: 1}}
	close(in)

	agg := newAggregator(database, "scan-1", 1, 2, 50*time.Millisecond)
	total, err := agg.run(ctx, in)
	if err != nil {
		t.Fatalf("agg.run: %v", err)
	}
	if total.TotalFiles != 1 || total.TotalDirs != 1 || total.Warnings != 1 {
		t.Errorf("total = %+v, want {TotalDirs:1 TotalFiles:1 Warnings:1 ...}", total)
	}

	node, err := db.GetNode(ctx, database, "scan-1", "/tmp")
	if err != nil {
		t.Fatalf("db.GetNode: %v", err)
	}
	if node.LogicalSize != 100 || node.FileCount != 1 {
		t.Errorf("node = %+v, want LogicalSize=100 FileCount=1", node)
	}

	files, err := db.ListChildFiles(ctx, database, "scan-1", "/tmp", 10)
	if err != nil {
		t.Fatalf("db.ListChildFiles: %v", err)
	}
	if len(files) != 1 || files[0].Path != "/tmp/a" {
		t.Errorf("files = %+v, want one file at /tmp/a", files)
	}

	warnings, err := db.ListWarnings(ctx, database, "scan-1")
	if err != nil {
		t.Fatalf("db.ListWarnings: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Code != "metadata_failed" {
		t.Errorf("warnings = %+v, want one metadata_failed warning", warnings)
	}
}

func TestAggregatorPeriodicTickWritesRunningTotals(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer database.Close()
	if err := db.Migrate(database); err != nil {
		t.Fatalf("db.Migrate: %v", err)
	}
	ctx := context.Background()
	if _, err := db.CreateScan(ctx, database, "scan-2", []string{"/tmp"}, db.ScanOptions{}); err != nil {
		t.Fatalf("db.CreateScan: %v", err)
	}

	in := make(chan batch, 1)
	in <- batch{
		nodes:   []NodeRecord{{Path: "/tmp", Depth: 0, LogicalSize: 50, AllocatedSize: 50, FileCount: 0, DirCount: 0}},
		summary: ResultSummary{TotalDirs: 1, TotalLogicalSize: 50, TotalAllocatedSize: 50},
	}

	// flushAt is large so only the periodic ticker (not the threshold) drives the flush + running-totals write.
	agg := newAggregator(database, "scan-2", 10000, 10000, 20*time.Millisecond)
	done := make(chan struct{})
	go func() {
		agg.run(ctx, in)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		scan, err := db.GetScan(ctx, database, "scan-2")
		if err != nil {
			t.Fatalf("db.GetScan: %v", err)
		}
		if scan.TotalLogicalSize != nil && *scan.TotalLogicalSize == 50 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for periodic running-totals update")
		case <-time.After(10 * time.Millisecond):
		}
	}
	close(in)
	<-done
}
