package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osierhq/osier/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelError,
		Format: "text",
		Output: os.Stderr,
	})
}

func TestFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter FileFilter
		path   string
		want   bool
	}{
		{"template twig", TemplateFilter, "views/page.twig", true},
		{"template md rejected", TemplateFilter, "drafts/post.md", false},
		{"draft md", DraftFilter, "drafts/post.md", true},
		{"draft twig rejected", DraftFilter, "views/page.twig", false},
		{"source twig", SourceFilter, "views/page.twig", true},
		{"source md", SourceFilter, "drafts/post.md", true},
		{"source go rejected", SourceFilter, "main.go", false},
		{"hidden file", NoHiddenFilter, "drafts/.post.md.swp", false},
		{"visible file", NoHiddenFilter, "drafts/post.md", true},
		{"vendor dir", NoVendorFilter, "vendor/lib/page.twig", false},
		{"nested vendor", NoVendorFilter, "site/vendor/page.twig", false},
		{"non vendor", NoVendorFilter, "views/page.twig", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter(tt.path))
		})
	}
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "created", EventTypeCreated.String())
	assert.Equal(t, "modified", EventTypeModified.String())
	assert.Equal(t, "deleted", EventTypeDeleted.String())
	assert.Equal(t, "renamed", EventTypeRenamed.String())
}

func TestFileWatcher_DetectsChanges(t *testing.T) {
	dir := t.TempDir()

	fw, err := NewFileWatcher(50*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer fw.Stop()

	fw.AddFilter(SourceFilter)
	fw.AddFilter(NoHiddenFilter)

	var mu sync.Mutex
	var got []ChangeEvent
	done := make(chan struct{}, 1)
	fw.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		got = append(got, events...)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	})

	require.NoError(t, fw.AddRecursive(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fw.Start(ctx)

	path := filepath.Join(dir, "page.twig")
	require.NoError(t, os.WriteFile(path, []byte("<p>hi</p>"), 0o644))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change events")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, got)
	assert.Equal(t, path, got[0].Path)
}

func TestFileWatcher_FiltersNonMatching(t *testing.T) {
	dir := t.TempDir()

	fw, err := NewFileWatcher(50*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer fw.Stop()

	fw.AddFilter(SourceFilter)

	fired := make(chan struct{}, 1)
	fw.AddHandler(func(events []ChangeEvent) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	})

	require.NoError(t, fw.AddRecursive(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fw.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	select {
	case <-fired:
		t.Fatal("handler fired for filtered file")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestDebouncer_Deduplicates(t *testing.T) {
	d := &debouncer{
		delay:  20 * time.Millisecond,
		events: make(chan ChangeEvent, 100),
		output: make(chan []ChangeEvent, 10),
	}

	d.add(ChangeEvent{Type: EventTypeModified, Path: "a.twig"})
	d.add(ChangeEvent{Type: EventTypeModified, Path: "a.twig"})
	d.add(ChangeEvent{Type: EventTypeModified, Path: "b.twig"})

	select {
	case events := <-d.output:
		assert.Len(t, events, 2)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for debounced batch")
	}
}

func TestAddRecursive_RejectsTraversal(t *testing.T) {
	fw, err := NewFileWatcher(50*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer fw.Stop()

	err = fw.AddRecursive("../../etc")
	assert.Error(t, err)
}
