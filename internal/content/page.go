// Package content discovers build inputs: markdown pages, layout templates
// and static assets, together with the fingerprint snapshot of all of them.
package content

import (
	"path"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/source"
	"git.home.luguber.info/inful/sitegen/internal/taxonomy"
)

// Page is one markdown content file, frontmatter already parsed and cascade
// values applied.
type Page struct {
	// RelPath is the content-root-relative path, slash-separated.
	RelPath string
	// AbsPath is the on-disk location.
	AbsPath string
	// Section is the slash-separated section path ("" for the root).
	Section string
	// IsSectionIndex marks _index.md files.
	IsSectionIndex bool

	Fields map[string]any
	Body   []byte

	Title   string
	Date    time.Time
	Lastmod time.Time
	Draft   bool

	// Terms maps taxonomy name to the page's term names, as written.
	Terms map[string][]string

	Fingerprint source.Fingerprint
}

// Identity returns the page's source identity.
func (p *Page) Identity() source.Identity { return source.Content(p.RelPath) }

// OutputPath returns the output-root-relative path of the rendered page.
// posts/hello.md renders to posts/hello/index.html; _index.md files render to
// their section's index.html.
func (p *Page) OutputPath() string {
	if p.IsSectionIndex {
		return path.Join(p.Section, "index.html")
	}
	stem := strings.TrimSuffix(p.RelPath, path.Ext(p.RelPath))
	return path.Join(stem, "index.html")
}

// URL returns the site-root-relative URL of the rendered page.
func (p *Page) URL() string {
	return "/" + strings.TrimSuffix(p.OutputPath(), "index.html")
}

// Section is a node of the content hierarchy. Sections exist for every
// directory under the content root, whether or not an _index.md is present.
type Section struct {
	// Path is slash-separated, "" for the root.
	Path string
	// Cascade holds this node's own cascade map from its _index.md.
	Cascade map[string]any
	// Effective is the merged cascade of this node and all ancestors,
	// nearer nodes winning.
	Effective map[string]any
}

// Identity returns the section's source identity.
func (s *Section) Identity() source.Identity { return source.Section(s.Path) }

// Fingerprint hashes only the effective cascade. Body edits to a section's
// _index.md change the content identity, not this one.
func (s *Section) Fingerprint() (source.Fingerprint, error) {
	hash, err := source.HashValue(s.Effective)
	if err != nil {
		return source.Fingerprint{}, err
	}
	return source.Fingerprint{Identity: s.Identity(), ContentHash: hash}, nil
}

// Ancestors returns the section paths from the root down to and including
// this section: "" first, the section itself last.
func (s *Section) Ancestors() []string {
	return AncestorSections(s.Path)
}

// AncestorSections expands a section path into the chain of section paths
// from the root down: AncestorSections("a/b") = ["", "a", "a/b"].
func AncestorSections(sectionPath string) []string {
	out := []string{""}
	if sectionPath == "" {
		return out
	}
	parts := strings.Split(sectionPath, "/")
	for i := range parts {
		out = append(out, strings.Join(parts[:i+1], "/"))
	}
	return out
}

// Site is the result of one discovery pass.
type Site struct {
	Pages    []*Page
	Sections map[string]*Section
	// Templates maps layout-root-relative path to absolute path.
	Templates map[string]string
	// Assets maps static-root-relative path to absolute path.
	Assets map[string]string

	Taxonomies *taxonomy.Index

	// Snapshot fingerprints every discovered identity, including sections,
	// taxonomy terms and the config identity.
	Snapshot source.Snapshot
}

// PagesInSection returns the non-index pages directly in the given section,
// newest first.
func (s *Site) PagesInSection(sectionPath string) []*Page {
	var out []*Page
	for _, p := range s.Pages {
		if p.Section == sectionPath && !p.IsSectionIndex {
			out = append(out, p)
		}
	}
	sortPagesByDate(out)
	return out
}

// RegularPages returns all non-index, non-draft pages, newest first.
func (s *Site) RegularPages() []*Page {
	var out []*Page
	for _, p := range s.Pages {
		if !p.IsSectionIndex {
			out = append(out, p)
		}
	}
	sortPagesByDate(out)
	return out
}

// PageByRelPath finds a page by its content-root-relative path.
func (s *Site) PageByRelPath(rel string) (*Page, bool) {
	for _, p := range s.Pages {
		if p.RelPath == rel {
			return p, true
		}
	}
	return nil, false
}

func sortPagesByDate(pages []*Page) {
	sort.SliceStable(pages, func(i, j int) bool {
		if !pages[i].Date.Equal(pages[j].Date) {
			return pages[i].Date.After(pages[j].Date)
		}
		return pages[i].RelPath < pages[j].RelPath
	})
}
