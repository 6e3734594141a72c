// Package server implements the development preview server: it renders
// templates over HTTP, pushes live-reload notifications to connected
// browsers over WebSocket, and surfaces template errors as an overlay.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/osierhq/osier/internal/config"
	"github.com/osierhq/osier/internal/draft"
	"github.com/osierhq/osier/internal/errors"
	"github.com/osierhq/osier/internal/logging"
	"github.com/osierhq/osier/internal/registry"
	"github.com/osierhq/osier/internal/render"
	"github.com/osierhq/osier/internal/scanner"
	"github.com/osierhq/osier/internal/watcher"
)

// PreviewServer serves rendered templates with live reload.
type PreviewServer struct {
	cfg       *config.Config
	logger    logging.Logger
	registry  *registry.TemplateRegistry
	drafts    *draft.Store
	collector *errors.Collector
	engine    *render.Engine
	scanner   *scanner.Scanner
	watcher   *watcher.FileWatcher

	httpServer  *http.Server
	serverMutex sync.RWMutex

	clients   *clientHub
	broadcast chan []byte

	shutdownOnce sync.Once
}

// UpdateMessage is pushed to connected browsers on relevant changes.
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a preview server and its supporting pipeline.
func New(cfg *config.Config, logger logging.Logger) (*PreviewServer, error) {
	reg := registry.NewTemplateRegistry()
	drafts := draft.NewStore()
	collector := errors.NewCollector()

	engine := render.NewEngine(render.EngineConfig{
		Loader:            reg.Loader(),
		Strict:            cfg.Render.Strict,
		DisableAutoescape: !cfg.Render.Autoescape,
		MaxIncludeDepth:   cfg.Render.MaxIncludeDepth,
	})

	debounce := time.Duration(cfg.Development.DebounceMs) * time.Millisecond
	fileWatcher, err := watcher.NewFileWatcher(debounce, logger)
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	return &PreviewServer{
		cfg:       cfg,
		logger:    logger.WithComponent("server"),
		registry:  reg,
		drafts:    drafts,
		collector: collector,
		engine:    engine,
		scanner:   scanner.New(cfg, reg, drafts, collector, logger),
		watcher:   fileWatcher,
		clients:   newClientHub(),
		broadcast: make(chan []byte, 16),
	}, nil
}

// Start runs the initial scan, begins watching for changes, and serves HTTP
// until ctx is canceled or the listener fails.
func (s *PreviewServer) Start(ctx context.Context) error {
	if _, err := s.scanner.ScanAll(ctx); err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}

	if s.cfg.Development.HotReload {
		if err := s.setupWatcher(ctx); err != nil {
			return err
		}
		go s.broadcastLoop(ctx)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.serverMutex.Unlock()

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	s.logger.Info(ctx, "preview server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server, the watcher, and all WebSocket clients.
// It is safe to call more than once.
func (s *PreviewServer) Shutdown() {
	s.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.serverMutex.RLock()
		srv := s.httpServer
		s.serverMutex.RUnlock()

		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				s.logger.Warn(ctx, err, "http shutdown")
			}
		}
		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn(ctx, err, "watcher shutdown")
		}
		s.clients.closeAll()
		s.logger.Info(ctx, "preview server stopped")
	})
}

func (s *PreviewServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/preview/", s.handlePreview)
	mux.HandleFunc("/api/templates", s.handleTemplates)
	mux.HandleFunc("/api/drafts", s.handleDrafts)
	mux.HandleFunc("/api/errors", s.handleErrors)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

func (s *PreviewServer) setupWatcher(ctx context.Context) error {
	s.watcher.AddFilter(watcher.SourceFilter)
	s.watcher.AddFilter(watcher.NoHiddenFilter)
	s.watcher.AddFilter(watcher.NoVendorFilter)
	s.watcher.AddHandler(func(events []watcher.ChangeEvent) error {
		return s.handleFileChange(ctx, events)
	})

	paths := append([]string{}, s.cfg.Templates.ScanPaths...)
	paths = append(paths, s.cfg.Drafts.ScanPaths...)
	for _, path := range paths {
		if err := s.watcher.AddRecursive(path); err != nil {
			s.logger.Warn(ctx, err, "cannot watch path", "path", path)
		}
	}

	s.watcher.Start(ctx)
	return nil
}

func (s *PreviewServer) handleFileChange(ctx context.Context, events []watcher.ChangeEvent) error {
	for _, event := range events {
		s.logger.Debug(ctx, "file changed", "path", event.Path, "event", event.Type.String())

		switch event.Type {
		case watcher.EventTypeDeleted, watcher.EventTypeRenamed:
			s.scanner.RemoveFile(ctx, event.Path)
		default:
			// Rescan errors are already collected for the overlay.
			_ = s.scanner.ScanFile(ctx, event.Path)
		}
	}

	s.notifyReload("")
	return nil
}

func (s *PreviewServer) notifyReload(target string) {
	msg := UpdateMessage{Type: "reload", Target: target, Timestamp: time.Now()}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case s.broadcast <- data:
	default:
		// Skip if channel is full
	}
}

func (s *PreviewServer) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-s.broadcast:
			s.clients.send(data)
		}
	}
}
