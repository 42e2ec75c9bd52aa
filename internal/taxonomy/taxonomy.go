// Package taxonomy models taxonomy terms and their page membership.
package taxonomy

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/sitegen/internal/source"
)

// Term is one value of one taxonomy, with the content-relative paths of its
// member pages.
type Term struct {
	Taxonomy string
	Name     string
	Slug     string
	// Members holds content-relative paths of pages carrying the term,
	// kept sorted.
	Members []string
}

// Identity returns the term's source identity.
func (t *Term) Identity() source.Identity {
	return source.Term(t.Taxonomy, t.Slug)
}

// Fingerprint hashes the term's membership. Adding or removing a page under
// the term changes exactly this fingerprint, which is what keeps per-term
// invalidation granular.
func (t *Term) Fingerprint() source.Fingerprint {
	return source.Fingerprint{
		Identity:    t.Identity(),
		ContentHash: source.HashStrings(t.Members),
	}
}

// Index collects every term of every configured taxonomy.
type Index struct {
	// terms keyed by "<taxonomy>/<slug>".
	terms map[string]*Term
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{terms: make(map[string]*Term)}
}

// Record adds a page membership for the given taxonomy and term name.
// Renamed terms are modeled as Remove(old)+Add(new): a fresh index is built
// every discovery pass, so a term appearing under a new name is simply a new
// identity and the old one vanishes.
func (idx *Index) Record(taxonomy, name, pageRel string) *Term {
	slug := Slugify(name)
	key := taxonomy + "/" + slug
	term, ok := idx.terms[key]
	if !ok {
		term = &Term{Taxonomy: taxonomy, Name: name, Slug: slug}
		idx.terms[key] = term
	}
	term.Members = append(term.Members, pageRel)
	sort.Strings(term.Members)
	return term
}

// Terms returns all terms sorted by taxonomy then slug.
func (idx *Index) Terms() []*Term {
	out := make([]*Term, 0, len(idx.terms))
	for _, t := range idx.terms {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Taxonomy != out[j].Taxonomy {
			return out[i].Taxonomy < out[j].Taxonomy
		}
		return out[i].Slug < out[j].Slug
	})
	return out
}

// Lookup returns the term for a taxonomy and term name, if present.
func (idx *Index) Lookup(taxonomy, name string) (*Term, bool) {
	t, ok := idx.terms[taxonomy+"/"+Slugify(name)]
	return t, ok
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify folds a term name to a URL-safe slug: unicode marks stripped,
// lowercased, non-alphanumerics collapsed to single hyphens.
func Slugify(name string) string {
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
