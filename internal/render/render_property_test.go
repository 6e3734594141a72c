//go:build property

package render

import (
	"regexp"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/osierhq/osier/internal/parser"
)

func TestRenderProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1337)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// Property: text with no delimiters renders byte-identically.
	properties.Property("plain text is preserved", prop.ForAll(
		func(text string) bool {
			for _, delim := range []string{"{{", "{%", "{#"} {
				if strings.Contains(text, delim) {
					return true
				}
			}
			tpl, err := parser.Parse("prop", text)
			if err != nil {
				return false
			}
			out, err := NewEngine(EngineConfig{}).Render(tpl, nil)
			return err == nil && out == text
		},
		gen.AnyString(),
	))

	// Property: autoescaped variable output never leaks raw angle
	// brackets or quotes from the value.
	properties.Property("variable output is escaped", prop.ForAll(
		func(value string) bool {
			tpl, err := parser.Parse("prop", "{{ v }}")
			if err != nil {
				return false
			}
			out, err := NewEngine(EngineConfig{}).Render(tpl, map[string]any{"v": value})
			if err != nil {
				return false
			}
			return !strings.ContainsAny(out, "<>\"")
		},
		gen.AnyString(),
	))

	doubleHyphen := regexp.MustCompile(`--`)

	// Property: slugs never contain whitespace, uppercase ASCII, doubled
	// hyphens, or leading/trailing hyphens, no matter the input.
	properties.Property("slug output shape", prop.ForAll(
		func(value string) bool {
			out, err := filterSlug(value, nil)
			if err != nil {
				return false
			}
			slug := out.(string)
			if slug == "" {
				return true
			}
			if strings.ContainsAny(slug, " \t\n") || doubleHyphen.MatchString(slug) {
				return false
			}
			if strings.HasPrefix(slug, "-") || strings.HasSuffix(slug, "-") {
				return false
			}
			return strings.ToLower(slug) == slug
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
