package server

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/osierhq/osier/internal/errors"
)

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"templates": s.registry.Count(),
		"drafts":    s.drafts.Count(),
		"clients":   s.clients.count(),
	})
}

type templateListing struct {
	Name     string    `json:"name"`
	FilePath string    `json:"file_path"`
	Hash     string    `json:"hash"`
	LastMod  time.Time `json:"last_mod"`
}

func (s *PreviewServer) handleTemplates(w http.ResponseWriter, r *http.Request) {
	infos := s.registry.All()
	listings := make([]templateListing, 0, len(infos))
	for _, info := range infos {
		listings = append(listings, templateListing{
			Name:     info.Name,
			FilePath: info.FilePath,
			Hash:     info.Hash,
			LastMod:  info.LastMod,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": listings})
}

type draftListing struct {
	Name       string    `json:"name"`
	Title      string    `json:"title"`
	Date       time.Time `json:"date"`
	Categories []string  `json:"categories,omitempty"`
	Slug       string    `json:"slug"`
	FilePath   string    `json:"file_path"`
}

func (s *PreviewServer) handleDrafts(w http.ResponseWriter, r *http.Request) {
	infos := s.drafts.All()
	listings := make([]draftListing, 0, len(infos))
	for _, info := range infos {
		listings = append(listings, draftListing{
			Name:       info.Name,
			Title:      info.Meta.Title,
			Date:       info.Meta.Date,
			Categories: info.Meta.Categories,
			Slug:       info.Slug(),
			FilePath:   info.FilePath,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafts": listings})
}

type errorListing struct {
	Template string    `json:"template"`
	Line     int       `json:"line"`
	Column   int       `json:"column"`
	Message  string    `json:"message"`
	Severity string    `json:"severity"`
	Time     time.Time `json:"time"`
}

func (s *PreviewServer) handleErrors(w http.ResponseWriter, r *http.Request) {
	all := s.collector.TemplateErrors()
	listings := make([]errorListing, 0, len(all))
	for _, te := range all {
		listings = append(listings, errorListing{
			Template: te.Template,
			Line:     te.Line,
			Column:   te.Column,
			Message:  te.Message,
			Severity: te.Severity.String(),
			Time:     te.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": listings})
}

// handlePreview renders a template to HTML. A ?draft= query parameter
// renders the template against that draft's variables.
func (s *PreviewServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/preview/")
	if name == "" {
		http.Error(w, "template name required", http.StatusBadRequest)
		return
	}

	info, ok := s.registry.Get(name)
	if !ok {
		// A parse failure leaves the template unregistered but its
		// errors collected; show those instead of a bare 404.
		if errs := s.collector.ErrorsForTemplate(name); len(errs) > 0 {
			s.renderFailure(w, name, errs)
			return
		}
		http.Error(w, fmt.Sprintf("template %q not found", name), http.StatusNotFound)
		return
	}

	vars := map[string]any{}
	if draftName := r.URL.Query().Get("draft"); draftName != "" {
		d, ok := s.drafts.Get(draftName)
		if !ok {
			http.Error(w, fmt.Sprintf("draft %q not found", draftName), http.StatusNotFound)
			return
		}
		vars = d.Context()
	}

	out, err := s.engine.Render(info.Template, vars)
	if err != nil {
		// Replace any earlier render diagnostic for this template so
		// reloading a broken preview does not pile up duplicates.
		s.collector.ClearTemplate(name)
		s.collector.AddError(err)
		s.renderFailure(w, name, s.collector.ErrorsForTemplate(name))
		return
	}
	s.collector.ClearTemplate(name)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, s.decorate(out, name))
}

// renderFailure writes an error page, with the overlay when enabled.
func (s *PreviewServer) renderFailure(w http.ResponseWriter, name string, errs []errors.TemplateError) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)

	var b strings.Builder
	fmt.Fprintf(&b, "<!DOCTYPE html><html><head><title>Error: %s</title></head><body>", html.EscapeString(name))
	fmt.Fprintf(&b, "<h1>Failed to render %s</h1>", html.EscapeString(name))
	if s.cfg.Development.ErrorOverlay {
		b.WriteString(s.collector.Overlay())
	} else {
		b.WriteString("<ul>")
		for _, te := range errs {
			fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(te.Error()))
		}
		b.WriteString("</ul>")
	}
	if s.cfg.Development.HotReload {
		b.WriteString(reloadScript)
	}
	b.WriteString("</body></html>")
	fmt.Fprint(w, b.String())
}

// decorate appends the live-reload script and any pending error overlay to
// rendered output.
func (s *PreviewServer) decorate(out, name string) string {
	var extra strings.Builder
	if s.cfg.Development.ErrorOverlay && s.collector.HasErrors() {
		extra.WriteString(s.collector.Overlay())
	}
	if s.cfg.Development.HotReload {
		extra.WriteString(reloadScript)
	}
	if extra.Len() == 0 {
		return out
	}
	if idx := strings.LastIndex(out, "</body>"); idx >= 0 {
		return out[:idx] + extra.String() + out[idx:]
	}
	return out + extra.String()
}

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>osier</title>")
	b.WriteString("<style>body{font-family:sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem}li{margin:.25rem 0}</style>")
	b.WriteString("</head><body><h1>osier preview</h1>")

	b.WriteString("<h2>Templates</h2><ul>")
	for _, name := range s.registry.Names() {
		escaped := html.EscapeString(name)
		fmt.Fprintf(&b, `<li><a href="/preview/%s">%s</a></li>`, escaped, escaped)
	}
	b.WriteString("</ul>")

	b.WriteString("<h2>Drafts</h2><ul>")
	for _, info := range s.drafts.All() {
		fmt.Fprintf(&b, "<li>%s (%s)</li>", html.EscapeString(info.Meta.Title), html.EscapeString(info.Name))
	}
	b.WriteString("</ul>")

	if s.cfg.Development.ErrorOverlay && s.collector.HasErrors() {
		b.WriteString(s.collector.Overlay())
	}
	if s.cfg.Development.HotReload {
		b.WriteString(reloadScript)
	}
	b.WriteString("</body></html>")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, b.String())
}

// reloadScript reconnects with backoff so browsers survive server restarts.
const reloadScript = `<script>
(function() {
	var delay = 500;
	function connect() {
		var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
		ws.onmessage = function(ev) {
			var msg = JSON.parse(ev.data);
			if (msg.type === "reload") {
				location.reload();
			}
		};
		ws.onopen = function() { delay = 500; };
		ws.onclose = function() {
			setTimeout(connect, delay);
			delay = Math.min(delay * 2, 10000);
		};
	}
	connect();
})();
</script>`

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
