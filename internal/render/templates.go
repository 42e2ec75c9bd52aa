package render

import (
	"fmt"
	"html/template"
	"os"
	"sort"
	"text/template/parse"

	"git.home.luguber.info/inful/sitegen/internal/source"
)

// Templates holds the parsed layout set together with the include closure of
// every template file. The closure is what makes template invalidation exact:
// an artifact records edges to precisely the files its layout transitively
// includes, so editing a partial rebuilds its users and nothing else.
type Templates struct {
	set *template.Template
	// owner maps every defined template name to the layout file that
	// defined it.
	owner map[string]string
	// closure maps a layout file to the sorted set of layout files its
	// templates transitively include, itself included.
	closure map[string][]string
}

// LoadTemplates parses all layout files. files maps layout-root-relative
// paths to absolute paths; each file is registered under its relative path,
// so includes are written as {{template "partials/nav.html" .}}.
func LoadTemplates(files map[string]string) (*Templates, error) {
	t := &Templates{
		set:     template.New("").Option("missingkey=zero"),
		owner:   map[string]string{},
		closure: map[string][]string{},
	}

	rels := make([]string, 0, len(files))
	for rel := range files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	for _, rel := range rels {
		data, err := os.ReadFile(files[rel]) // #nosec G304 - paths come from the layout walk
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", rel, err)
		}
		if _, err := t.set.New(rel).Parse(string(data)); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", rel, err)
		}
		// Any template name parsed so far without an owner was defined by
		// this file (the file itself, plus its {{define}} blocks).
		for _, defined := range t.set.Templates() {
			name := defined.Name()
			if name == "" {
				continue
			}
			if _, claimed := t.owner[name]; !claimed {
				t.owner[name] = rel
			}
		}
	}

	for _, rel := range rels {
		t.closure[rel] = t.computeClosure(rel)
	}
	return t, nil
}

// Has reports whether a layout file with the given relative path was loaded.
func (t *Templates) Has(rel string) bool {
	_, ok := t.closure[rel]
	return ok
}

// Closure returns the layout files reachable from the given file, as
// template identities. The file itself is always included.
func (t *Templates) Closure(rel string) []source.Identity {
	files := t.closure[rel]
	out := make([]source.Identity, 0, len(files))
	for _, f := range files {
		out = append(out, source.Template(f))
	}
	return out
}

// Lookup returns the named template.
func (t *Templates) Lookup(rel string) *template.Template {
	return t.set.Lookup(rel)
}

// computeClosure walks parse trees breadth-first following {{template}}
// nodes, mapping each referenced name back to its defining file.
func (t *Templates) computeClosure(rel string) []string {
	seenFiles := map[string]bool{rel: true}
	seenNames := map[string]bool{}
	queue := []string{rel}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seenNames[name] {
			continue
		}
		seenNames[name] = true

		tpl := t.set.Lookup(name)
		if tpl == nil || tpl.Tree == nil {
			continue
		}
		for _, included := range includedNames(tpl.Tree.Root) {
			if owner, ok := t.owner[included]; ok {
				seenFiles[owner] = true
			}
			queue = append(queue, included)
		}
	}

	out := make([]string, 0, len(seenFiles))
	for f := range seenFiles {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// includedNames collects the targets of static {{template "name"}} nodes.
// Dynamic dispatch through variables is invisible here, which is acceptable:
// the layout convention only uses literal include names.
func includedNames(node parse.Node) []string {
	var out []string
	var walk func(parse.Node)
	walk = func(n parse.Node) {
		if n == nil {
			return
		}
		switch v := n.(type) {
		case *parse.TemplateNode:
			out = append(out, v.Name)
		case *parse.ListNode:
			if v == nil {
				return
			}
			for _, child := range v.Nodes {
				walk(child)
			}
		case *parse.IfNode:
			walk(v.List)
			walk(v.ElseList)
		case *parse.RangeNode:
			walk(v.List)
			walk(v.ElseList)
		case *parse.WithNode:
			walk(v.List)
			walk(v.ElseList)
		}
	}
	walk(node)
	return out
}
