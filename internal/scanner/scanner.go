// Package scanner discovers template and draft files on disk, parses them,
// and keeps the in-memory indexes current.
package scanner

import (
	"context"
	"fmt"
	"hash/crc32"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/osierhq/osier/internal/config"
	"github.com/osierhq/osier/internal/draft"
	"github.com/osierhq/osier/internal/errors"
	"github.com/osierhq/osier/internal/logging"
	"github.com/osierhq/osier/internal/parser"
	"github.com/osierhq/osier/internal/registry"
)

const maxWorkers = 8

// Scanner walks configured scan paths and loads what it finds into the
// template registry and draft store. Parse failures are recorded in the
// error collector and do not abort a scan.
type Scanner struct {
	cfg       *config.Config
	registry  *registry.TemplateRegistry
	drafts    *draft.Store
	collector *errors.Collector
	logger    logging.Logger
}

// Result summarizes a completed scan.
type Result struct {
	Templates int
	Drafts    int
	Failed    int
}

// New creates a scanner over the given configuration and stores.
func New(cfg *config.Config, reg *registry.TemplateRegistry, drafts *draft.Store, collector *errors.Collector, logger logging.Logger) *Scanner {
	return &Scanner{
		cfg:       cfg,
		registry:  reg,
		drafts:    drafts,
		collector: collector,
		logger:    logger.WithComponent("scanner"),
	}
}

// ScanAll discovers and loads every template and draft under the
// configured scan paths.
func (s *Scanner) ScanAll(ctx context.Context) (Result, error) {
	var result Result
	perf := logging.StartOperation(s.logger, "scan_all")

	templates, err := s.discover(s.cfg.Templates.ScanPaths, ".twig")
	if err != nil {
		perf.EndWithError(ctx, err)
		return result, err
	}
	drafts, err := s.discover(s.cfg.Drafts.ScanPaths, ".md")
	if err != nil {
		perf.EndWithError(ctx, err)
		return result, err
	}

	type outcome struct {
		isDraft bool
		err     error
	}

	jobs := make(chan discovered, len(templates)+len(drafts))
	outcomes := make(chan outcome, len(templates)+len(drafts))

	workers := maxWorkers
	if total := len(templates) + len(drafts); total < workers {
		workers = total
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					outcomes <- outcome{isDraft: job.isDraft, err: ctx.Err()}
					continue
				}
				var err error
				if job.isDraft {
					err = s.loadDraft(ctx, job.root, job.path)
				} else {
					err = s.loadTemplate(ctx, job.root, job.path)
				}
				outcomes <- outcome{isDraft: job.isDraft, err: err}
			}
		}()
	}

	for _, d := range templates {
		jobs <- d
	}
	for _, d := range drafts {
		d.isDraft = true
		jobs <- d
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	for o := range outcomes {
		switch {
		case o.err != nil:
			result.Failed++
		case o.isDraft:
			result.Drafts++
		default:
			result.Templates++
		}
	}

	s.logger.Info(ctx, "scan complete",
		"templates", result.Templates,
		"drafts", result.Drafts,
		"failed", result.Failed)
	perf.End(ctx)
	return result, ctx.Err()
}

type discovered struct {
	root    string
	path    string
	isDraft bool
}

func (s *Scanner) discover(roots []string, ext string) ([]discovered, error) {
	var found []discovered
	for _, root := range roots {
		cleanRoot := filepath.Clean(root)
		if _, err := os.Stat(cleanRoot); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(cleanRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if s.excluded(path) && path != cleanRoot {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != ext || s.excluded(path) {
				return nil
			}
			found = append(found, discovered{root: cleanRoot, path: path})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", root, err)
		}
	}
	return found, nil
}

func (s *Scanner) excluded(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	for _, pattern := range s.cfg.Templates.ExcludePatterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, path); matched {
			return true
		}
	}
	return false
}

// ScanFile loads or reloads a single file, routing it by extension.
// Files outside the configured scan paths are ignored.
func (s *Scanner) ScanFile(ctx context.Context, path string) error {
	switch filepath.Ext(path) {
	case ".twig":
		root, ok := s.rootFor(path, s.cfg.Templates.ScanPaths)
		if !ok {
			return nil
		}
		return s.loadTemplate(ctx, root, path)
	case ".md":
		root, ok := s.rootFor(path, s.cfg.Drafts.ScanPaths)
		if !ok {
			return nil
		}
		return s.loadDraft(ctx, root, path)
	default:
		return nil
	}
}

// RemoveFile drops registry and store entries backed by the given path.
func (s *Scanner) RemoveFile(ctx context.Context, path string) {
	if n := s.registry.RemoveByPath(path); n > 0 {
		s.logger.Debug(ctx, "template removed", "path", path)
	}
	if n := s.drafts.RemoveByPath(path); n > 0 {
		s.logger.Debug(ctx, "draft removed", "path", path)
	}
	for _, name := range namesForPath(path, s.cfg.Templates.ScanPaths) {
		s.collector.ClearTemplate(name)
	}
	// Draft diagnostics are keyed without the .md extension.
	for _, name := range namesForPath(path, s.cfg.Drafts.ScanPaths) {
		s.collector.ClearTemplate(strings.TrimSuffix(name, filepath.Ext(name)))
	}
}

func (s *Scanner) rootFor(path string, roots []string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	for _, root := range roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if rel, err := filepath.Rel(absRoot, abs); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.Clean(root), true
		}
	}
	return "", false
}

func (s *Scanner) loadTemplate(ctx context.Context, root, path string) error {
	name := templateName(root, path)

	data, info, err := readFile(path)
	if err != nil {
		s.logger.Warn(ctx, err, "cannot read template", "path", path)
		return err
	}

	s.collector.ClearTemplate(name)

	tpl, err := parser.Parse(name, string(data))
	if err != nil {
		s.collector.AddError(err)
		s.logger.Warn(ctx, err, "template parse failed", "template", name)
		return err
	}

	s.registry.Register(registry.TemplateInfo{
		Name:     name,
		FilePath: path,
		Hash:     contentHash(data),
		LastMod:  info.ModTime(),
		Template: tpl,
	})
	s.logger.Debug(ctx, "template loaded", "template", name)
	return nil
}

func (s *Scanner) loadDraft(ctx context.Context, root, path string) error {
	name := draftName(root, path)

	data, info, err := readFile(path)
	if err != nil {
		s.logger.Warn(ctx, err, "cannot read draft", "path", path)
		return err
	}

	s.collector.ClearTemplate(name)

	d, err := draft.Parse(name, data)
	if err != nil {
		s.collector.AddError(err)
		s.logger.Warn(ctx, err, "draft parse failed", "draft", name)
		return err
	}

	s.drafts.Put(draft.Info{
		Draft:    *d,
		FilePath: path,
		Hash:     contentHash(data),
		LastMod:  info.ModTime(),
	})
	s.logger.Debug(ctx, "draft loaded", "draft", name)
	return nil
}

func readFile(path string) ([]byte, os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return data, info, nil
}

func contentHash(data []byte) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data))
}

// templateName is the slash-separated path relative to its scan root,
// extension included, so include references match on-disk layout.
func templateName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

// draftName is the slash-separated relative path without the .md extension.
func draftName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return filepath.ToSlash(rel)
}

func namesForPath(path string, roots []string) []string {
	var names []string
	for _, root := range roots {
		if rel, err := filepath.Rel(filepath.Clean(root), path); err == nil && !strings.HasPrefix(rel, "..") {
			names = append(names, filepath.ToSlash(rel))
		}
	}
	return names
}
