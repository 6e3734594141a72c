// Package draft models unpublished Markdown documents with YAML
// front-matter: a title, a publication date, category tags, and a prose
// body. Drafts are the data that templates render against; the package does
// not publish, list, or otherwise manage them.
package draft

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/osierhq/osier/internal/errors"
	"github.com/osierhq/osier/internal/render"
)

// delimiter separates front-matter from the body.
const delimiter = "---"

// FrontMatter is the metadata block of a draft.
type FrontMatter struct {
	Title      string
	Date       time.Time
	Categories []string
	Draft      bool
	// Extra holds any front-matter keys beyond the known set.
	Extra map[string]any
}

// Draft is a parsed document: metadata plus the raw Markdown body.
type Draft struct {
	// Name identifies the draft in diagnostics, usually its file path.
	Name string
	Meta FrontMatter
	Body string
}

// Parse splits ----delimited YAML front-matter from the body. A document
// without front-matter parses with empty metadata; malformed YAML is a
// positioned error.
func Parse(name string, data []byte) (*Draft, error) {
	d := &Draft{Name: name}

	text := string(bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n")))
	if !strings.HasPrefix(text, delimiter+"\n") && text != delimiter {
		d.Body = text
		return d, nil
	}

	rest := strings.TrimPrefix(text, delimiter+"\n")
	lines := strings.Split(rest, "\n")
	end := -1
	for i, line := range lines {
		if strings.TrimRight(line, " \t") == delimiter {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, errors.New(name, 1, 1, "unterminated front matter")
	}
	head := strings.Join(lines[:end], "\n")
	body := strings.Join(lines[end+1:], "\n")

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(head), &raw); err != nil {
		// yaml.v3 errors carry "line N" text; position the diagnostic
		// at the front-matter block instead of guessing.
		return nil, errors.New(name, 2, 1, "front matter: %v", err)
	}

	meta, err := decodeMeta(name, raw)
	if err != nil {
		return nil, err
	}
	d.Meta = meta
	d.Body = body
	return d, nil
}

func decodeMeta(name string, raw map[string]any) (FrontMatter, error) {
	var meta FrontMatter

	for key, value := range raw {
		switch key {
		case "title":
			s, ok := value.(string)
			if !ok {
				return meta, errors.New(name, 2, 1, "front matter: title must be a string, got %T", value)
			}
			meta.Title = s

		case "date":
			t, err := decodeDate(value)
			if err != nil {
				return meta, errors.New(name, 2, 1, "front matter: %v", err)
			}
			meta.Date = t

		case "categories":
			cats, err := decodeCategories(value)
			if err != nil {
				return meta, errors.New(name, 2, 1, "front matter: %v", err)
			}
			meta.Categories = cats

		case "draft":
			b, ok := value.(bool)
			if !ok {
				return meta, errors.New(name, 2, 1, "front matter: draft must be a boolean, got %T", value)
			}
			meta.Draft = b

		default:
			if meta.Extra == nil {
				meta.Extra = make(map[string]any)
			}
			meta.Extra[key] = value
		}
	}
	return meta, nil
}

func decodeDate(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, nil
		}
		if t, err := time.Parse("2006-01-02", v); err == nil {
			return t, nil
		}
		return time.Time{}, fmt.Errorf("cannot parse date %q", v)
	default:
		return time.Time{}, fmt.Errorf("date must be a date or string, got %T", value)
	}
}

func decodeCategories(value any) ([]string, error) {
	switch v := value.(type) {
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("category entries must be strings, got %T", item)
			}
			out[i] = s
		}
		return out, nil
	case string:
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("categories must be a list, got %T", value)
	}
}

// Validate checks metadata well-formedness: a non-empty title and a set
// date. All problems are reported, not just the first.
func (d *Draft) Validate() []error {
	var errs []error
	if strings.TrimSpace(d.Meta.Title) == "" {
		errs = append(errs, errors.New(d.Name, 1, 1, "draft has no title"))
	}
	if d.Meta.Date.IsZero() {
		errs = append(errs, errors.New(d.Name, 1, 1, "draft has no date"))
	}
	return errs
}

// Slug derives a URL-safe identifier from the title.
func (d *Draft) Slug() string {
	return render.Slugify(d.Meta.Title)
}

// Context exposes the draft as a render context. Extra front-matter keys
// appear at the top level but never shadow the core fields.
func (d *Draft) Context() map[string]any {
	ctx := make(map[string]any, len(d.Meta.Extra)+6)
	for k, v := range d.Meta.Extra {
		ctx[k] = v
	}

	categories := make([]any, len(d.Meta.Categories))
	for i, c := range d.Meta.Categories {
		categories[i] = c
	}

	ctx["title"] = d.Meta.Title
	ctx["date"] = d.Meta.Date
	ctx["categories"] = categories
	ctx["draft"] = d.Meta.Draft
	ctx["body"] = d.Body
	ctx["slug"] = d.Slug()
	return ctx
}
