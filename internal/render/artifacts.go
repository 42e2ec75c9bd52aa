package render

import (
	"path"
	"sort"

	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/taxonomy"
	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

// Kind classifies an output artifact.
type Kind string

const (
	KindPage    Kind = "page"
	KindSection Kind = "section"
	KindTerm    Kind = "term"
	KindFeed    Kind = "feed"
	KindAsset   Kind = "asset"
)

// Artifact is one renderable output, keyed by its output-root-relative path.
type Artifact struct {
	Path string
	Kind Kind

	// Page is set for KindPage, and for KindSection when the section has
	// an _index.md.
	Page    *content.Page
	Section *content.Section
	Term    *taxonomy.Term

	// AssetSource is the absolute path of a KindAsset input; asset outputs
	// keep their static-root-relative path.
	AssetSource string
}

// FeedPath is the fixed output path of the site feed.
const FeedPath = "feed.xml"

// PlanArtifacts derives every artifact the current site should produce:
// one per non-draft page, one listing per section, one listing per taxonomy
// term, and the feed. The result is sorted by path.
func PlanArtifacts(site *content.Site, cfg *config.Config) []Artifact {
	byPath := map[string]Artifact{}

	for _, sec := range site.Sections {
		byPath[path.Join(sec.Path, "index.html")] = Artifact{
			Path:    path.Join(sec.Path, "index.html"),
			Kind:    KindSection,
			Section: sec,
		}
	}

	for _, page := range site.Pages {
		if page.Draft {
			continue
		}
		out := page.OutputPath()
		if page.IsSectionIndex {
			a := byPath[out]
			a.Page = page
			byPath[out] = a
			continue
		}
		byPath[out] = Artifact{Path: out, Kind: KindPage, Page: page}
	}

	for _, term := range site.Taxonomies.Terms() {
		p := path.Join(term.Taxonomy, term.Slug, "index.html")
		byPath[p] = Artifact{Path: p, Kind: KindTerm, Term: term}
	}

	for rel, abs := range site.Assets {
		byPath[rel] = Artifact{Path: rel, Kind: KindAsset, AssetSource: abs}
	}

	byPath[FeedPath] = Artifact{Path: FeedPath, Kind: KindFeed}

	out := make([]Artifact, 0, len(byPath))
	for _, a := range byPath {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// DesiredSet returns the artifact paths as a set, the shape impact analysis
// consumes.
func DesiredSet(artifacts []Artifact) sets.Set[string] {
	s := sets.New[string]()
	for _, a := range artifacts {
		s.Add(a.Path)
	}
	return s
}
