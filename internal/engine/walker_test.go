package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kestrel-labs/diskspector/internal/exclude"
)

// drainBatches runs Walk and collects every node/file record it produces,
// since Walk only ever sends them onto a channel rather than returning them.
func drainBatches(t *testing.T, ctx context.Context, roots []string, opts Options, excludes *exclude.Matcher) ([]NodeRecord, []FileRecord, []WarningRecord, ResultSummary) {
	t.Helper()
	ch := make(chan batch, 64)
	events := NewBroadcaster(MinSubscriberBuffer)
	defer events.Close()

	done := make(chan ResultSummary, 1)
	go func() {
		done <- Walk(ctx, "test-scan", roots, opts, excludes, ch, events)
		close(ch)
	}()

	var nodes []NodeRecord
	var files []FileRecord
	var warnings []WarningRecord
	for b := range ch {
		nodes = append(nodes, b.nodes...)
		files = append(files, b.files...)
		warnings = append(warnings, b.warnings...)
	}
	return nodes, files, warnings, <-done
}

func noExcludes(t *testing.T) *exclude.Matcher {
	t.Helper()
	m, err := exclude.New(nil)
	if err != nil {
		t.Fatalf("exclude.New: %v", err)
	}
	return m
}

func TestWalkEmptyDirYieldsOneNode(t *testing.T) {
	dir := t.TempDir()
	nodes, files, _, total := drainBatches(t, context.Background(), []string{dir}, Options{MeasureLogical: true}, noExcludes(t))
	if len(nodes) != 1 {
		t.Fatalf("got %d nodes, want 1", len(nodes))
	}
	if nodes[0].Path != filepath.Clean(dir) {
		t.Errorf("node path = %q, want %q", nodes[0].Path, dir)
	}
	if len(files) != 0 {
		t.Errorf("got %d files, want 0", len(files))
	}
	if total.TotalDirs != 1 {
		t.Errorf("TotalDirs = %d, want 1", total.TotalDirs)
	}
}

func TestWalkNestedTreeAggregatesSubtotals(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "top.txt"), []byte("12345"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "leaf.txt"), []byte("1234567890"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	nodes, files, _, total := drainBatches(t, context.Background(), []string{root}, Options{MeasureLogical: true}, noExcludes(t))

	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	if total.TotalDirs != 3 { // root, a, a/b
		t.Errorf("TotalDirs = %d, want 3", total.TotalDirs)
	}
	if total.TotalFiles != 2 {
		t.Errorf("TotalFiles = %d, want 2", total.TotalFiles)
	}
	if total.TotalLogicalSize != 15 {
		t.Errorf("TotalLogicalSize = %d, want 15", total.TotalLogicalSize)
	}

	var rootNode *NodeRecord
	for i := range nodes {
		if nodes[i].Path == filepath.Clean(root) {
			rootNode = &nodes[i]
		}
	}
	if rootNode == nil {
		t.Fatal("root node missing from emitted nodes")
	}
	if rootNode.LogicalSize != 15 {
		t.Errorf("root node LogicalSize = %d, want 15 (own + subtree)", rootNode.LogicalSize)
	}
	if rootNode.FileCount != 2 {
		t.Errorf("root node FileCount = %d, want 2", rootNode.FileCount)
	}
}

func TestWalkExcludesMatchingSubtree(t *testing.T) {
	root := t.TempDir()
	skip := filepath.Join(root, "node_modules")
	if err := os.MkdirAll(skip, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(skip, "pkg.json"), []byte("{}"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("package main"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m, err := exclude.New([]string{"**/node_modules/**"})
	if err != nil {
		t.Fatalf("exclude.New: %v", err)
	}

	_, files, _, total := drainBatches(t, context.Background(), []string{root}, Options{MeasureLogical: true}, m)
	if len(files) != 1 || files[0].Path != filepath.Join(root, "main.go") {
		t.Errorf("files = %+v, want only main.go", files)
	}
	if total.TotalFiles != 1 {
		t.Errorf("TotalFiles = %d, want 1", total.TotalFiles)
	}
}

func TestWalkMissingRootEmitsWarningNoPanic(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	nodes, files, warnings, total := drainBatches(t, context.Background(), []string{missing}, Options{MeasureLogical: true}, noExcludes(t))
	if len(nodes) != 0 || len(files) != 0 {
		t.Errorf("got nodes=%d files=%d, want 0 and 0", len(nodes), len(files))
	}
	if len(warnings) != 1 || warnings[0].Code != "missing_root" {
		t.Errorf("warnings = %+v, want one missing_root warning", warnings)
	}
	if total.TotalDirs != 0 {
		t.Errorf("TotalDirs = %d, want 0", total.TotalDirs)
	}
}

func TestWalkRespectsMaxDepth(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "deep.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	depth := 1
	opts := Options{MeasureLogical: true, MaxDepth: &depth}
	_, files, _, total := drainBatches(t, context.Background(), []string{root}, opts, noExcludes(t))
	if len(files) != 0 {
		t.Errorf("got %d files at depth beyond max_depth, want 0", len(files))
	}
	if total.TotalDirs != 2 { // root and "a"; "b" is never recursed into
		t.Errorf("TotalDirs = %d, want 2", total.TotalDirs)
	}
}

func TestWalkMaxDepthZeroPrunesAllSubdirs(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "a"), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "top.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	depth := 0
	opts := Options{MeasureLogical: true, MaxDepth: &depth}
	nodes, files, _, total := drainBatches(t, context.Background(), []string{root}, opts, noExcludes(t))
	if len(files) != 1 {
		t.Errorf("got %d files, want 1 (root-level file still counted)", len(files))
	}
	if len(nodes) != 1 {
		t.Errorf("got %d nodes, want 1 (root only; max_depth=0 prunes all subdirs)", len(nodes))
	}
	if total.TotalDirs != 1 {
		t.Errorf("TotalDirs = %d, want 1", total.TotalDirs)
	}
}

func TestWalkCancellationStopsEarly(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		sub := filepath.Join(root, "dir", string(rune('a'+i)))
		if err := os.MkdirAll(sub, 0755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A pre-cancelled context must not hang or panic; the walk returns quickly
	// with whatever partial totals it already had (spec.md §4.3.1 cancellation).
	_, _, _, total := drainBatches(t, ctx, []string{root}, Options{MeasureLogical: true}, noExcludes(t))
	if total.TotalDirs > 6 {
		t.Errorf("TotalDirs = %d, expected an early, partial stop", total.TotalDirs)
	}
}
