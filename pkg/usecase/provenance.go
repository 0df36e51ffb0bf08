package usecase

import (
	"bytes"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/m-mizutani/reposync/pkg/domain/types"
)

//go:embed templates/item.md
var itemTemplate string

//go:embed templates/comment.md
var commentTemplate string

//go:embed templates/placeholder.md
var placeholderTemplate string

//go:embed templates/release.md
var releaseTemplate string

const defaultPlaceholderTitle = "[reposync] placeholder #%d"

// itemMarker identifies the destination object created for a source item
func itemMarker(kind types.ObjectKind, number int) string {
	return fmt.Sprintf("<!-- reposync:%s:%d -->", kind, number)
}

func commentMarker(c *model.Comment) string {
	kind := "comment"
	if c.Review != nil {
		kind = "review_comment"
	}
	return fmt.Sprintf("<!-- reposync:%s:%d -->", kind, c.ID)
}

func releaseMarker(id int64) string {
	return fmt.Sprintf("<!-- reposync:release:%d -->", id)
}

func hasMarker(body, marker string) bool {
	return strings.Contains(body, marker)
}

// provenance renders destination bodies. The destination cannot keep the
// original author and timestamps, so every body starts with a header naming
// them and a hidden marker used to recognise the object on later runs.
type provenance struct {
	source  types.RepoRef
	mapping *model.Mapping

	item        *template.Template
	comment     *template.Template
	placeholder *template.Template
	release     *template.Template
}

func newProvenance(source types.RepoRef, mapping *model.Mapping) (*provenance, error) {
	p := &provenance{source: source, mapping: mapping}

	for _, t := range []struct {
		dst  **template.Template
		name string
		text string
	}{
		{&p.item, "item", itemTemplate},
		{&p.comment, "comment", commentTemplate},
		{&p.placeholder, "placeholder", placeholderTemplate},
		{&p.release, "release", releaseTemplate},
	} {
		tmpl, err := template.New(t.name).Parse(t.text)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to parse body template", goerr.V("name", t.name))
		}
		*t.dst = tmpl
	}

	return p, nil
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render body", goerr.V("template", tmpl.Name()))
	}
	return strings.TrimRight(buf.String(), "\n") + "\n", nil
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return "an unknown date"
	}
	return t.UTC().Format(time.RFC3339)
}

// itemBody renders the body of a replicated issue or pull request. notes
// describe fidelity compromises, one per line.
func (p *provenance) itemBody(obj *model.NumberedObject, notes []string) (string, error) {
	return render(p.item, map[string]any{
		"Marker":    itemMarker(obj.Kind, obj.Number),
		"Author":    p.mapping.User(obj.Author),
		"CreatedAt": timestamp(obj.CreatedAt),
		"URL":       obj.URL,
		"Notes":     notes,
		"Body":      obj.Body,
	})
}

func (p *provenance) commentBody(c *model.Comment) (string, error) {
	return render(p.comment, map[string]any{
		"Marker":    commentMarker(c),
		"Author":    p.mapping.User(c.Author),
		"CreatedAt": timestamp(c.CreatedAt),
		"URL":       c.URL,
		"Review":    c.Review,
		"Body":      c.Body,
	})
}

func (p *provenance) placeholderTitle(number int) string {
	title := defaultPlaceholderTitle
	if p.mapping != nil && p.mapping.PlaceholderTitle != "" {
		title = p.mapping.PlaceholderTitle
	}
	return strings.ReplaceAll(title, "%d", strconv.Itoa(number))
}

func (p *provenance) placeholderBody(number int) (string, error) {
	return render(p.placeholder, map[string]any{
		"Marker": itemMarker(types.KindPlaceholder, number),
		"Number": number,
		"Source": p.source.String(),
	})
}

func (p *provenance) releaseBody(r *model.Release) (string, error) {
	return render(p.release, map[string]any{
		"Marker":    releaseMarker(r.ID),
		"Author":    p.mapping.User(r.Author),
		"CreatedAt": timestamp(r.CreatedAt),
		"URL":       r.URL,
		"Body":      r.Body,
	})
}

func (p *provenance) labels(names []string) []string {
	mapped := make([]string, 0, len(names))
	for _, name := range names {
		mapped = append(mapped, p.mapping.Label(name))
	}
	return mapped
}
