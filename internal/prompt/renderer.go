package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"text/template"
	"text/template/parse"
)

//go:embed templates/*.md
var templatesFS embed.FS

var fileNamePattern = regexp.MustCompile(`^([a-z0-9_]+)\.v([0-9]+)\.md$`)

// Params binds template parameter names to strings, numbers or lists.
type Params map[string]any

// MissingParameterError is returned when a template references a parameter the
// caller did not supply.
type MissingParameterError struct {
	Template  string
	Parameter string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("template %s: missing parameter %q", e.Template, e.Parameter)
}

// Template is one parsed, versioned prompt.
type Template struct {
	Name    string
	Version int
	tmpl    *template.Template
	params  []string
}

// ID identifies the template and version, e.g. goal_category@v1.
func (t *Template) ID() string {
	return fmt.Sprintf("%s@v%d", t.Name, t.Version)
}

// Params lists the top-level parameters the template references, sorted.
func (t *Template) Params() []string {
	return append([]string(nil), t.params...)
}

// Rendered is the final text sent to the model.
type Rendered struct {
	Template string
	Version  int
	Text     string
}

// ID identifies the template and version that produced the text.
func (r Rendered) ID() string {
	return fmt.Sprintf("%s@v%d", r.Template, r.Version)
}

// Renderer holds the latest version of every template.
type Renderer struct {
	templates map[string]*Template
}

// NewRenderer parses the embedded template set.
func NewRenderer() (*Renderer, error) {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, err
	}
	return NewRendererFS(sub)
}

// NewRendererFS parses every <name>.v<N>.md file in fsys, keeping the highest
// version of each name.
func NewRendererFS(fsys fs.FS) (*Renderer, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading templates: %w", err)
	}

	r := &Renderer{templates: make(map[string]*Template)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := fileNamePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		name := m[1]
		version, _ := strconv.Atoi(m[2])
		if existing, ok := r.templates[name]; ok && existing.Version >= version {
			continue
		}

		body, err := fs.ReadFile(fsys, path.Clean(entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", entry.Name(), err)
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(string(body))
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", entry.Name(), err)
		}

		r.templates[name] = &Template{
			Name:    name,
			Version: version,
			tmpl:    tmpl,
			params:  referencedParams(tmpl),
		}
	}
	return r, nil
}

// Lookup returns the named template.
func (r *Renderer) Lookup(name string) (*Template, bool) {
	t, ok := r.templates[name]
	return t, ok
}

// Render fills the named template with params. It has no side effects.
func (r *Renderer) Render(name string, params Params) (Rendered, error) {
	t, ok := r.templates[name]
	if !ok {
		return Rendered{}, fmt.Errorf("unknown prompt template %q", name)
	}

	for _, p := range t.params {
		if _, ok := params[p]; !ok {
			return Rendered{}, &MissingParameterError{Template: t.ID(), Parameter: p}
		}
	}

	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, map[string]any(params)); err != nil {
		return Rendered{}, fmt.Errorf("rendering template %s: %w", t.ID(), err)
	}

	return Rendered{Template: t.Name, Version: t.Version, Text: buf.String()}, nil
}

func referencedParams(tmpl *template.Template) []string {
	seen := make(map[string]struct{})
	if tmpl.Tree != nil {
		walkNode(tmpl.Tree.Root, true, seen)
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// walkNode collects parameter names. Inside range and with bodies the dot is no
// longer the parameter map, so only $-rooted references count there.
func walkNode(node parse.Node, dotIsRoot bool, seen map[string]struct{}) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			walkNode(child, dotIsRoot, seen)
		}
	case *parse.ActionNode:
		walkPipe(n.Pipe, dotIsRoot, seen)
	case *parse.IfNode:
		walkPipe(n.Pipe, dotIsRoot, seen)
		walkNode(n.List, dotIsRoot, seen)
		walkNode(n.ElseList, dotIsRoot, seen)
	case *parse.RangeNode:
		walkPipe(n.Pipe, dotIsRoot, seen)
		walkNode(n.List, false, seen)
		walkNode(n.ElseList, dotIsRoot, seen)
	case *parse.WithNode:
		walkPipe(n.Pipe, dotIsRoot, seen)
		walkNode(n.List, false, seen)
		walkNode(n.ElseList, dotIsRoot, seen)
	case *parse.TemplateNode:
		walkPipe(n.Pipe, dotIsRoot, seen)
	}
}

func walkPipe(pipe *parse.PipeNode, dotIsRoot bool, seen map[string]struct{}) {
	if pipe == nil {
		return
	}
	for _, cmd := range pipe.Cmds {
		for _, arg := range cmd.Args {
			walkArg(arg, dotIsRoot, seen)
		}
	}
}

func walkArg(arg parse.Node, dotIsRoot bool, seen map[string]struct{}) {
	switch a := arg.(type) {
	case *parse.FieldNode:
		if dotIsRoot {
			seen[a.Ident[0]] = struct{}{}
		}
	case *parse.VariableNode:
		if len(a.Ident) > 1 && a.Ident[0] == "$" {
			seen[a.Ident[1]] = struct{}{}
		}
	case *parse.ChainNode:
		walkArg(a.Node, dotIsRoot, seen)
	case *parse.PipeNode:
		walkPipe(a, dotIsRoot, seen)
	}
}
