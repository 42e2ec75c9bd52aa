package content

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/inful/mdfp"

	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/frontmatter"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/source"
	"git.home.luguber.info/inful/sitegen/internal/taxonomy"
)

// Frontmatter keys that never participate in the content fingerprint: they
// are derived or editorial metadata whose churn must not trigger rebuilds of
// dependent listings.
var volatileFields = map[string]struct{}{
	mdfp.FingerprintField: {},
	"lastmod":             {},
	"uid":                 {},
	"aliases":             {},
}

// LastmodResolver supplies a last-modified time for a content file, typically
// from version control history.
type LastmodResolver interface {
	Lastmod(absPath string) (time.Time, bool)
}

// Discoverer walks the configured source roots and produces a Site.
type Discoverer struct {
	cfg     *config.Config
	log     *slog.Logger
	lastmod LastmodResolver
}

// NewDiscoverer returns a Discoverer for the given configuration.
func NewDiscoverer(cfg *config.Config, log *slog.Logger) *Discoverer {
	return &Discoverer{cfg: cfg, log: log}
}

// WithLastmod attaches a last-modified resolver consulted for pages that do
// not set lastmod in frontmatter.
func (d *Discoverer) WithLastmod(r LastmodResolver) *Discoverer {
	d.lastmod = r
	return d
}

// Discover performs one full discovery pass. Unreadable files are logged and
// fingerprinted as unreadable rather than failing the pass, so they classify
// as changed on the next build instead of silently going stale.
func (d *Discoverer) Discover(ctx context.Context) (*Site, error) {
	site := &Site{
		Sections:   map[string]*Section{"": {Path: ""}},
		Templates:  map[string]string{},
		Assets:     map[string]string{},
		Taxonomies: taxonomy.NewIndex(),
		Snapshot:   source.Snapshot{},
	}

	if err := d.walkContent(ctx, site); err != nil {
		return nil, err
	}
	d.resolveCascades(site)
	d.finishPages(site)

	if err := d.walkFiles(ctx, d.cfg.LayoutDir, templateExts, func(rel, abs string) {
		site.Templates[rel] = abs
		d.fingerprintFile(site, source.Template(rel), abs)
	}); err != nil {
		return nil, fmt.Errorf("walk layouts: %w", err)
	}
	if err := d.walkFiles(ctx, d.cfg.StaticDir, nil, func(rel, abs string) {
		site.Assets[rel] = abs
		d.fingerprintFile(site, source.Asset(rel), abs)
	}); err != nil {
		return nil, fmt.Errorf("walk static: %w", err)
	}

	for _, sec := range site.Sections {
		fp, err := sec.Fingerprint()
		if err != nil {
			return nil, fmt.Errorf("fingerprint section %q: %w", sec.Path, err)
		}
		site.Snapshot.Add(fp)
	}
	d.fingerprintMemberships(site)
	for _, term := range site.Taxonomies.Terms() {
		site.Snapshot.Add(term.Fingerprint())
	}
	cfgFP, err := d.cfg.Fingerprint()
	if err != nil {
		return nil, err
	}
	site.Snapshot.Add(cfgFP)

	sort.Slice(site.Pages, func(i, j int) bool { return site.Pages[i].RelPath < site.Pages[j].RelPath })
	return site, nil
}

var templateExts = map[string]struct{}{".html": {}, ".tmpl": {}, ".xml": {}}

func (d *Discoverer) walkContent(ctx context.Context, site *Site) error {
	root := d.cfg.ContentDir
	return filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk content: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := entry.Name()
		if entry.IsDir() {
			if p != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if p != root {
				rel := relSlash(root, p)
				site.Sections[rel] = &Section{Path: rel}
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".md") {
			return nil
		}
		d.loadPage(site, root, p)
		return nil
	})
}

func (d *Discoverer) loadPage(site *Site, root, abs string) {
	rel := relSlash(root, abs)
	id := source.Content(rel)

	data, err := os.ReadFile(abs) // #nosec G304 - path discovered under the configured content root
	if err != nil {
		d.log.Warn("content file unreadable, will rebuild next pass",
			logfields.Path(rel), logfields.Error(err))
		site.Snapshot.Add(source.Unreadable(id))
		return
	}

	fmRaw, body, _, err := frontmatter.Split(data)
	if err != nil {
		d.log.Warn("malformed frontmatter", logfields.Path(rel), logfields.Error(err))
		site.Snapshot.Add(source.Unreadable(id))
		return
	}
	fields, err := frontmatter.Parse(fmRaw)
	if err != nil {
		d.log.Warn("invalid frontmatter yaml", logfields.Path(rel), logfields.Error(err))
		site.Snapshot.Add(source.Unreadable(id))
		return
	}

	page := &Page{
		RelPath:        rel,
		AbsPath:        abs,
		Section:        sectionOf(rel),
		IsSectionIndex: filepath.Base(abs) == "_index.md",
		Fields:         fields,
		Body:           body,
	}

	if page.IsSectionIndex {
		sec := site.Sections[page.Section]
		if sec == nil {
			sec = &Section{Path: page.Section}
			site.Sections[page.Section] = sec
		}
		if cascade, ok := fields["cascade"].(map[string]any); ok {
			sec.Cascade = cascade
		}
	}

	site.Pages = append(site.Pages, page)
}

// resolveCascades computes each section's effective cascade from the root
// down. Map iteration order does not matter because merging only consults
// ancestors, which are resolved by path prefix, not insertion order.
func (d *Discoverer) resolveCascades(site *Site) {
	paths := make([]string, 0, len(site.Sections))
	for p := range site.Sections {
		paths = append(paths, p)
	}
	sort.Strings(paths) // parents sort before children

	for _, p := range paths {
		sec := site.Sections[p]
		merged := map[string]any{}
		for _, ancestor := range AncestorSections(p) {
			if a, ok := site.Sections[ancestor]; ok {
				for k, v := range a.Cascade {
					merged[k] = v
				}
			}
		}
		sec.Effective = merged
	}
}

// finishPages applies cascade defaults, extracts metadata, collects taxonomy
// terms and fingerprints each page.
func (d *Discoverer) finishPages(site *Site) {
	for _, page := range site.Pages {
		if sec, ok := site.Sections[page.Section]; ok {
			for k, v := range sec.Effective {
				if _, set := page.Fields[k]; !set {
					page.Fields[k] = v
				}
			}
		}

		page.Title, _ = page.Fields["title"].(string)
		if page.Title == "" {
			page.Title = page.RelPath
		}
		page.Draft, _ = page.Fields["draft"].(bool)
		page.Date = fieldTime(page.Fields["date"])
		page.Lastmod = fieldTime(page.Fields["lastmod"])
		if page.Lastmod.IsZero() && d.lastmod != nil {
			if t, ok := d.lastmod.Lastmod(page.AbsPath); ok {
				page.Lastmod = t
			}
		}
		if page.Lastmod.IsZero() {
			page.Lastmod = page.Date
		}

		page.Terms = map[string][]string{}
		for _, tax := range d.cfg.Taxonomies {
			for _, name := range fieldStrings(page.Fields[tax]) {
				page.Terms[tax] = append(page.Terms[tax], name)
				if !page.Draft {
					site.Taxonomies.Record(tax, name, page.RelPath)
				}
			}
		}

		fp, err := d.fingerprintPage(page)
		if err != nil {
			d.log.Warn("page fingerprint failed", logfields.Path(page.RelPath), logfields.Error(err))
			fp = source.Unreadable(page.Identity())
		}
		page.Fingerprint = fp
		site.Snapshot.Add(fp)
	}
}

// fingerprintMemberships hashes each section's direct page membership and the
// site-wide page list. These identities move when pages appear or vanish, so
// listings and the feed pick up additions the member-page edges alone cannot
// see. Drafts stay out: they never render into listings, and flipping a draft
// flag must read as a membership change.
func (d *Discoverer) fingerprintMemberships(site *Site) {
	members := make(map[string][]string, len(site.Sections))
	var all []string
	for _, page := range site.Pages {
		if page.IsSectionIndex || page.Draft {
			continue
		}
		members[page.Section] = append(members[page.Section], page.RelPath)
		all = append(all, page.RelPath)
	}
	for _, sec := range site.Sections {
		site.Snapshot.Add(source.Fingerprint{
			Identity:    source.SectionList(sec.Path),
			ContentHash: source.HashStrings(members[sec.Path]),
		})
	}
	site.Snapshot.Add(source.Fingerprint{
		Identity:    source.PageListIdentity,
		ContentHash: source.HashStrings(all),
	})
}

// fingerprintPage hashes canonical frontmatter plus body, excluding volatile
// fields so that regenerated metadata does not read as an edit.
func (d *Discoverer) fingerprintPage(page *Page) (source.Fingerprint, error) {
	stable := make(map[string]any, len(page.Fields))
	for k, v := range page.Fields {
		if _, volatile := volatileFields[k]; volatile {
			continue
		}
		stable[k] = v
	}

	fmPart := ""
	if len(stable) > 0 {
		serialized, err := frontmatter.Serialize(stable)
		if err != nil {
			return source.Fingerprint{}, err
		}
		fmPart = strings.TrimSuffix(string(serialized), "\n")
	}

	fp := source.Fingerprint{
		Identity:    page.Identity(),
		ContentHash: mdfp.CalculateFingerprintFromParts(fmPart, string(page.Body)),
	}
	if info, err := os.Stat(page.AbsPath); err == nil {
		fp.Size = info.Size()
		fp.MTime = info.ModTime()
	}
	return fp, nil
}

func (d *Discoverer) fingerprintFile(site *Site, id source.Identity, abs string) {
	fp, err := source.FingerprintFile(id, abs)
	if err != nil {
		d.log.Warn("file unreadable, will rebuild next pass",
			logfields.Path(id.Path), logfields.Error(err))
		fp = source.Unreadable(id)
	}
	site.Snapshot.Add(fp)
}

// walkFiles walks an optional source root. A missing root is not an error;
// sites without layouts or static files are legal.
func (d *Discoverer) walkFiles(ctx context.Context, root string, exts map[string]struct{}, visit func(rel, abs string)) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			if p != root && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") {
			return nil
		}
		if exts != nil {
			if _, ok := exts[filepath.Ext(p)]; !ok {
				return nil
			}
		}
		visit(relSlash(root, p), p)
		return nil
	})
}

func relSlash(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

func sectionOf(rel string) string {
	dir := filepath.ToSlash(filepath.Dir(rel))
	if dir == "." {
		return ""
	}
	return dir
}

func fieldTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}

func fieldStrings(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	}
	return nil
}
