// Package source defines source identities and their fingerprints: the stable
// logical names for every build input, and the content hashes used to decide
// whether an input changed between builds.
package source

import (
	"fmt"
	"strings"
)

// Kind classifies a source identity.
type Kind string

const (
	// KindContent is a markdown content file, named by its path relative to
	// the content root.
	KindContent Kind = "content"
	// KindTemplate is a layout or partial template file, named relative to
	// the layout root.
	KindTemplate Kind = "template"
	// KindAsset is a static file copied verbatim, named relative to the
	// static root.
	KindAsset Kind = "asset"
	// KindSection is a content hierarchy node carrying cascade metadata.
	// Its fingerprint covers only the cascade map, so body edits to a
	// section index do not masquerade as cascade changes.
	KindSection Kind = "section"
	// KindTerm is a single taxonomy term, named "<taxonomy>/<slug>". Its
	// fingerprint covers the term's membership, so adding or removing a
	// page under a term changes exactly that term.
	KindTerm Kind = "term"
	// KindSectionList is a section's direct page membership. Listings
	// record an edge here so that pages appearing in or vanishing from a
	// section invalidate that section's listing and nothing else.
	KindSectionList Kind = "sectionlist"
	// KindPageList is the site-wide set of regular pages, consumed by
	// artifacts that enumerate every page (the feed).
	KindPageList Kind = "pagelist"
	// KindConfig is the entire effective configuration, treated as one
	// logical identity.
	KindConfig Kind = "config"
)

// Identity is a stable logical name for anything that can affect build
// output. Identities are not preserved across renames: a renamed file is a
// Remove of the old identity plus an Add of the new one.
type Identity struct {
	Kind Kind
	Path string
}

// ConfigIdentity is the singleton identity for the effective configuration.
var ConfigIdentity = Identity{Kind: KindConfig, Path: "site"}

// PageListIdentity is the singleton identity for the site-wide page list.
var PageListIdentity = Identity{Kind: KindPageList, Path: "site"}

// Content returns a content identity for a content-root-relative path.
func Content(rel string) Identity { return Identity{Kind: KindContent, Path: rel} }

// Template returns a template identity for a layout-root-relative path.
func Template(rel string) Identity { return Identity{Kind: KindTemplate, Path: rel} }

// Asset returns an asset identity for a static-root-relative path.
func Asset(rel string) Identity { return Identity{Kind: KindAsset, Path: rel} }

// Section returns a section identity for a content hierarchy node ("" is the root).
func Section(path string) Identity { return Identity{Kind: KindSection, Path: path} }

// SectionList returns the membership identity of a section ("" is the root).
func SectionList(path string) Identity { return Identity{Kind: KindSectionList, Path: path} }

// Term returns a term identity for a taxonomy and term slug.
func Term(taxonomy, slug string) Identity {
	return Identity{Kind: KindTerm, Path: taxonomy + "/" + slug}
}

// String renders the identity as "kind:path".
func (id Identity) String() string { return string(id.Kind) + ":" + id.Path }

// MarshalText implements encoding.TextMarshaler so identities can key JSON maps.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identity) UnmarshalText(text []byte) error {
	kind, path, ok := strings.Cut(string(text), ":")
	if !ok {
		return fmt.Errorf("malformed identity %q", string(text))
	}
	id.Kind = Kind(kind)
	id.Path = path
	return nil
}
