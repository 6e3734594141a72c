// Package errors defines positioned template errors and a collector used to
// aggregate diagnostics across lexing, parsing, and rendering, plus the HTML
// overlay shown by the preview server when diagnostics are present.
package errors

import (
	"fmt"
	"html"
	"sync"
	"time"
)

// TemplateError is a diagnostic tied to a position in a template source.
type TemplateError struct {
	Template  string
	Line      int
	Column    int
	Message   string
	Severity  Severity
	Timestamp time.Time
}

// Severity classifies a diagnostic.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error implements the error interface.
func (te *TemplateError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", te.Template, te.Line, te.Column, te.Severity, te.Message)
}

// New constructs an error-severity TemplateError.
func New(template string, line, column int, format string, args ...any) *TemplateError {
	return &TemplateError{
		Template: template,
		Line:     line,
		Column:   column,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityError,
	}
}

// Collector aggregates template diagnostics and general errors.
type Collector struct {
	templateErrors []TemplateError
	errors         []error
	mutex          sync.RWMutex
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		templateErrors: make([]TemplateError, 0),
		errors:         make([]error, 0),
	}
}

// Add records a template diagnostic, stamping it with the current time.
func (c *Collector) Add(err TemplateError) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	err.Timestamp = time.Now()
	c.templateErrors = append(c.templateErrors, err)
}

// AddError records a general error. Nil errors are ignored; TemplateErrors
// are routed to the positioned diagnostic list.
func (c *Collector) AddError(err error) {
	if err == nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if te, ok := err.(*TemplateError); ok {
		stamped := *te
		stamped.Timestamp = time.Now()
		c.templateErrors = append(c.templateErrors, stamped)
		return
	}
	c.errors = append(c.errors, err)
}

// TemplateErrors returns a copy of the collected template diagnostics.
func (c *Collector) TemplateErrors() []TemplateError {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	result := make([]TemplateError, len(c.templateErrors))
	copy(result, c.templateErrors)
	return result
}

// ErrorsForTemplate returns diagnostics recorded against a template name.
func (c *Collector) ErrorsForTemplate(template string) []TemplateError {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	var out []TemplateError
	for _, err := range c.templateErrors {
		if err.Template == template {
			out = append(out, err)
		}
	}
	return out
}

// HasErrors reports whether anything has been collected.
func (c *Collector) HasErrors() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.templateErrors) > 0 || len(c.errors) > 0
}

// Clear drops all collected diagnostics.
func (c *Collector) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.templateErrors = c.templateErrors[:0]
	c.errors = c.errors[:0]
}

// ClearTemplate drops diagnostics recorded against a template name, keeping
// the rest. Used on rescan so fixed templates shed their stale diagnostics.
func (c *Collector) ClearTemplate(template string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	kept := c.templateErrors[:0]
	for _, err := range c.templateErrors {
		if err.Template != template {
			kept = append(kept, err)
		}
	}
	c.templateErrors = kept
}

// Overlay generates the HTML error overlay injected into preview responses.
// It returns the empty string when no diagnostics are present.
func (c *Collector) Overlay() string {
	if !c.HasErrors() {
		return ""
	}

	out := `
<div id="osier-error-overlay" style="
	position: fixed;
	top: 0;
	left: 0;
	width: 100%;
	height: 100%;
	background: rgba(0, 0, 0, 0.8);
	color: white;
	font-family: 'Monaco', 'Menlo', monospace;
	font-size: 14px;
	z-index: 9999;
	padding: 20px;
	box-sizing: border-box;
	overflow: auto;
">
	<div style="max-width: 1000px; margin: 0 auto;">
		<div style="display: flex; justify-content: space-between; align-items: center; margin-bottom: 20px;">
			<h2 style="margin: 0; color: #ff6b6b;">Template Errors</h2>
			<button onclick="document.getElementById('osier-error-overlay').style.display='none'"
					style="background: none; border: 1px solid #ccc; color: white; padding: 5px 10px; cursor: pointer;">
				Close
			</button>
		</div>
		<div>`

	c.mutex.RLock()
	for _, err := range c.templateErrors {
		severityColor := "#ff6b6b"
		switch err.Severity {
		case SeverityWarning:
			severityColor = "#feca57"
		case SeverityInfo:
			severityColor = "#48dbfb"
		}

		out += fmt.Sprintf(`
			<div style="
				background: #2d3748;
				padding: 15px;
				margin-bottom: 15px;
				border-radius: 4px;
				border-left: 4px solid %s;
			">
				<div style="display: flex; justify-content: space-between; align-items: center; margin-bottom: 10px;">
					<span style="color: %s; font-weight: bold;">%s</span>
					<span style="color: #a0aec0; font-size: 12px;">%s</span>
				</div>
				<div style="color: #e2e8f0; margin-bottom: 5px;">
					<strong>%s</strong>
				</div>
				<div style="color: #a0aec0; font-size: 12px;">
					%s:%d:%d
				</div>
			</div>
		`, severityColor, severityColor, err.Severity.String(), err.Timestamp.Format("15:04:05"),
			html.EscapeString(err.Message), html.EscapeString(err.Template), err.Line, err.Column)
	}
	c.mutex.RUnlock()

	out += `
		</div>
	</div>
</div>`

	return out
}
