package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"contentweaver/internal/core"
	"contentweaver/internal/modules"
)

const siteProject = `
pipelines:
  - name: Posts
    modules:
      - ReadFiles:
          root: content
          patterns: ["*.md"]
      - RenderMarkdown
      - SetMetadata: {key: Section, value: blog}
  - name: Site
    dependencies: [Posts]
    modules:
      - ReplaceDocuments: {pipelines: [Posts]}
      - ForEachDocument:
          parallelism: 2
          modules:
            - ApplyTemplate: {template: "<html>{{ .Content }}</html>"}
      - WithExtension: {extension: .html}
      - WriteFiles: {root: public}
`

func TestParseProject_ModuleForms(t *testing.T) {
	p, err := ParseProject([]byte(siteProject))
	require.NoError(t, err)
	require.Len(t, p.Pipelines, 2)

	posts := p.Pipelines[0]
	require.Equal(t, "Posts", posts.Name)
	require.Equal(t, "ReadFiles", posts.Modules[0].Type)
	require.Equal(t, "content", posts.Modules[0].Options["root"])
	require.Equal(t, "RenderMarkdown", posts.Modules[1].Type)
	require.Nil(t, posts.Modules[1].Options)

	site := p.Pipelines[1]
	require.Equal(t, []string{"Posts"}, site.Dependencies)
	forEach := site.Modules[1]
	require.Equal(t, "ForEachDocument", forEach.Type)
	require.Equal(t, 2, forEach.Options["parallelism"])
	require.Len(t, forEach.Modules, 1)
	require.Equal(t, "ApplyTemplate", forEach.Modules[0].Type)
	require.NotContains(t, forEach.Options, "modules")
}

func TestParseProject_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty":           ``,
		"unknown field":   "pipelines: []\nextra: 1\n",
		"pipeline field":  "pipelines:\n  - name: A\n    depends: [B]\n",
		"two type keys":   "pipelines:\n  - name: A\n    modules:\n      - {RenderMarkdown: {}, WriteFiles: {}}\n",
		"list options":    "pipelines:\n  - name: A\n    modules:\n      - ReadFiles: [a]\n",
		"second document": "pipelines: []\n---\npipelines: []\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseProject([]byte(src))
			require.Error(t, err)
		})
	}
}

func TestLoadProject_ResolvesPathsAgainstProjectDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipelines.yaml")
	require.NoError(t, os.WriteFile(path, []byte(siteProject), 0o644))

	p, err := LoadProject(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "public"), p.resolve("public"))
	require.Equal(t, "/abs/out", p.resolve("/abs/out"))
	require.Equal(t, "", p.resolve(""))
}

func TestBuilder_BuildsPipelines(t *testing.T) {
	p, err := ParseProject([]byte(siteProject))
	require.NoError(t, err)
	p.Dir = t.TempDir()

	pipelines, err := (&Builder{Project: p}).Pipelines()
	require.NoError(t, err)
	require.Len(t, pipelines, 2)
	require.Equal(t, []string{"Posts"}, pipelines[1].Dependencies)

	var names []string
	core.WalkModules(pipelines[1].Modules, func(m core.Module) {
		names = append(names, core.ModuleName(m))
	})
	require.Equal(t, []string{"ReplaceDocuments", "ForEachDocument", "ApplyTemplate", "ExecuteDocument", "WriteFiles"}, names)

	x, ok := pipelines[1].Modules[0].(*modules.Exchange)
	require.True(t, ok)
	require.Equal(t, []string{"Posts"}, x.ReferencedPipelines())
}

func TestBuilder_ConfigErrors(t *testing.T) {
	cases := map[string]string{
		"unknown type":       "- Frobnicate",
		"unknown option":     "- RenderMarkdown: {theme: dark}",
		"missing key":        "- OrderDocuments: {descending: true}",
		"children on leaf":   "- RenderMarkdown:\n            modules: [RenderMarkdown]",
		"nested unknown":     "- CacheDocuments:\n            modules: [Frobnicate]",
		"template and file":  "- ApplyTemplate: {template: x, file: y}",
		"missing template":   "- ApplyTemplate: {file: nope.tmpl}",
		"negative parallel":  "- ForEachDocument: {parallelism: -1}",
		"no patterns":        "- ReadFiles: {root: content}",
		"write without root": "- WriteFiles: {}",
	}
	for name, mod := range cases {
		t.Run(name, func(t *testing.T) {
			src := "pipelines:\n  - name: A\n    modules:\n        " + mod + "\n"
			p, err := ParseProject([]byte(src))
			require.NoError(t, err)
			p.Dir = t.TempDir()

			_, err = (&Builder{Project: p}).Pipelines()
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			require.Equal(t, "A", ce.Pipeline)
		})
	}
}

func TestSpecsCacheCode_CoversOptionsAndChildren(t *testing.T) {
	code := func(doc string) int32 {
		t.Helper()
		p, err := ParseProject([]byte(doc))
		require.NoError(t, err)
		c, err := specsCacheCode(p.Pipelines[0].Modules)
		require.NoError(t, err)
		return c
	}
	const base = `
pipelines:
  - name: A
    modules:
      - ForEachDocument:
          modules:
            - WhereMetadata: {key: draft, value: false}
`
	require.Equal(t, code(base), code(base))
	require.NotEqual(t, code(base), code(strings.Replace(base, "value: false", "value: true", 1)))
	require.NotEqual(t, code(base), code(strings.Replace(base, "key: draft", "key: hidden", 1)))
	require.NotEqual(t, code(base), code(base+"            - RenderMarkdown\n"))
	require.NotEqual(t, code(base), code(strings.Replace(base, "ForEachDocument:", "ForEachDocument:\n          parallelism: 2", 1)))
}
