package cmd

import (
	"context"
	"fmt"

	"github.com/osierhq/osier/internal/config"
	"github.com/osierhq/osier/internal/draft"
	"github.com/osierhq/osier/internal/errors"
	"github.com/osierhq/osier/internal/registry"
	"github.com/osierhq/osier/internal/scanner"
)

// pipeline bundles the loaded stores a one-shot command works against.
type pipeline struct {
	cfg       *config.Config
	registry  *registry.TemplateRegistry
	drafts    *draft.Store
	collector *errors.Collector
}

// loadPipeline reads the configuration and scans all templates and drafts
// once. Parse failures are collected, not fatal.
func loadPipeline(ctx context.Context) (*pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := registry.NewTemplateRegistry()
	drafts := draft.NewStore()
	collector := errors.NewCollector()

	scan := scanner.New(cfg, reg, drafts, collector, newLogger())
	if _, err := scan.ScanAll(ctx); err != nil {
		return nil, err
	}

	return &pipeline{
		cfg:       cfg,
		registry:  reg,
		drafts:    drafts,
		collector: collector,
	}, nil
}
