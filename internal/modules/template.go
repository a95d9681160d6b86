package modules

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"contentweaver/internal/core"
)

// TemplateData is the value a template executes against.
type TemplateData struct {
	Content  string
	Meta     map[string]any
	Pipeline string
}

// ApplyTemplate replaces each document's content with the result of a
// text/template executed against TemplateData. Parse errors surface when the
// module runs.
func ApplyTemplate(text string) core.Module {
	tmpl, err := template.New("document").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"trim":  strings.TrimSpace,
		}).
		Parse(text)
	return &applyTemplate{text: text, tmpl: tmpl, err: err}
}

type applyTemplate struct {
	text string
	tmpl *template.Template
	err  error
}

func (*applyTemplate) Name() string { return "ApplyTemplate" }

func (a *applyTemplate) CacheCode(context.Context) (int32, error) {
	var c core.CacheCode
	c.AddString(a.text)
	return c.ToCacheCode(), nil
}

func (a *applyTemplate) Execute(ctx context.Context, ec core.ExecutionContext, inputs []*core.Document) ([]*core.Document, error) {
	if a.err != nil {
		return nil, fmt.Errorf("parsing template: %w", a.err)
	}
	pipeline := ""
	if ec != nil {
		pipeline = ec.PipelineName()
	}
	out := make([]*core.Document, 0, len(inputs))
	for i, d := range inputs {
		content, err := d.ContentString(ctx)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		var buf bytes.Buffer
		data := TemplateData{Content: content, Meta: d.Metadata().ToMap(), Pipeline: pipeline}
		if err := a.tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("document %d: executing template: %w", i, err)
		}
		out = append(out, d.WithContent(buf.Bytes()))
	}
	return out, nil
}
