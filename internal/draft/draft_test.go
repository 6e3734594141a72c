package draft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osierhq/osier/internal/errors"
)

const sample = `---
title: "Borrowing in Practice"
date: 2024-06-01
categories: [rust, ownership]
draft: true
series: rust-notes
---
The borrow checker is not your enemy.
`

func TestParse_FullFrontMatter(t *testing.T) {
	d, err := Parse("borrowing.md", []byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "Borrowing in Practice", d.Meta.Title)
	assert.Equal(t, 2024, d.Meta.Date.Year())
	assert.Equal(t, time.June, d.Meta.Date.Month())
	assert.Equal(t, []string{"rust", "ownership"}, d.Meta.Categories)
	assert.True(t, d.Meta.Draft)
	assert.Equal(t, "rust-notes", d.Meta.Extra["series"])
	assert.Equal(t, "The borrow checker is not your enemy.\n", d.Body)
}

func TestParse_NoFrontMatter(t *testing.T) {
	d, err := Parse("plain.md", []byte("just prose\n"))
	require.NoError(t, err)

	assert.Empty(t, d.Meta.Title)
	assert.True(t, d.Meta.Date.IsZero())
	assert.Equal(t, "just prose\n", d.Body)
}

func TestParse_EmptyFrontMatter(t *testing.T) {
	d, err := Parse("empty.md", []byte("---\n---\nbody\n"))
	require.NoError(t, err)
	assert.Equal(t, "body\n", d.Body)
}

func TestParse_DateForms(t *testing.T) {
	forDate := func(date string) *Draft {
		d, err := Parse("d.md", []byte("---\ndate: "+date+"\n---\n"))
		require.NoError(t, err)
		return d
	}

	assert.Equal(t, 9, forDate("2024-03-09").Meta.Date.Day())
	assert.Equal(t, 15, forDate(`"2024-03-09T15:04:05Z"`).Meta.Date.Hour())
}

func TestParse_SingleCategoryString(t *testing.T) {
	d, err := Parse("d.md", []byte("---\ncategories: opengl\n---\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"opengl"}, d.Meta.Categories)
}

func TestParse_CRLFNormalized(t *testing.T) {
	d, err := Parse("d.md", []byte("---\r\ntitle: x\r\n---\r\nbody\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "x", d.Meta.Title)
	assert.Equal(t, "body\n", d.Body)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unterminated", "---\ntitle: x\nno end", "unterminated front matter"},
		{"bad yaml", "---\ntitle: [unclosed\n---\n", "front matter:"},
		{"title type", "---\ntitle: [a, b]\n---\n", "title must be a string"},
		{"draft type", "---\ndraft: maybe\n---\n", "draft must be a boolean"},
		{"bad date", "---\ndate: someday\n---\n", "cannot parse date"},
		{"bad categories", "---\ncategories: {a: 1}\n---\n", "categories must be a list"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.md", []byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			var te *errors.TemplateError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, "bad.md", te.Template)
		})
	}
}

func TestValidate(t *testing.T) {
	d, err := Parse("ok.md", []byte(sample))
	require.NoError(t, err)
	assert.Empty(t, d.Validate())

	bare, err := Parse("bare.md", []byte("prose only"))
	require.NoError(t, err)
	errs := bare.Validate()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "no title")
	assert.Contains(t, errs[1].Error(), "no date")
}

func TestSlug(t *testing.T) {
	d, err := Parse("d.md", []byte("---\ntitle: \"Shaders & You: a Primer\"\n---\n"))
	require.NoError(t, err)
	assert.Equal(t, "shaders-you-a-primer", d.Slug())
}

func TestContext(t *testing.T) {
	d, err := Parse("borrowing.md", []byte(sample))
	require.NoError(t, err)

	ctx := d.Context()
	assert.Equal(t, "Borrowing in Practice", ctx["title"])
	assert.Equal(t, []any{"rust", "ownership"}, ctx["categories"])
	assert.Equal(t, true, ctx["draft"])
	assert.Equal(t, "rust-notes", ctx["series"])
	assert.Equal(t, "borrowing-in-practice", ctx["slug"])
	assert.Contains(t, ctx["body"], "borrow checker")
}

func TestContext_ExtraNeverShadowsCore(t *testing.T) {
	d, err := Parse("d.md", []byte("---\ntitle: Real\nslug: fake\n---\n"))
	require.NoError(t, err)
	assert.Equal(t, "real", d.Context()["slug"])
}
