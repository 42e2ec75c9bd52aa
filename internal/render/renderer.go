// Package render turns discovered content into output artifacts and reports
// every source identity each artifact consulted, which is what the dependency
// graph is built from.
package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/deps"
	"git.home.luguber.info/inful/sitegen/internal/source"
)

//go:embed defaults/*.html defaults/*.xml
var defaultFS embed.FS

// SiteData is the site-level template context.
type SiteData struct {
	Title   string
	BaseURL string
	Params  map[string]any
}

// PageData is the per-page template context.
type PageData struct {
	Title   string
	URL     string
	Date    time.Time
	Lastmod time.Time
	Section string
	Fields  map[string]any
	Terms   map[string][]string
	Content template.HTML
}

// Data is the root template context for every artifact kind.
type Data struct {
	Site  SiteData
	Title string
	// Page is the artifact's own page, when it has one.
	Page *PageData
	// Pages holds listing entries for section, term and feed artifacts.
	Pages []PageData
	// Updated is the feed's last-updated timestamp.
	Updated time.Time
}

// Renderer renders artifacts for one site snapshot. It is safe for
// concurrent use: rendering only reads the site and template set, and all
// per-render state lives in the recorder and local buffers.
type Renderer struct {
	cfg      *config.Config
	site     *content.Site
	tpls     *Templates
	defaults *template.Template
	md       goldmark.Markdown
	log      *slog.Logger
}

// NewRenderer parses the site's layouts and prepares the markdown converter.
func NewRenderer(cfg *config.Config, site *content.Site, log *slog.Logger) (*Renderer, error) {
	tpls, err := LoadTemplates(site.Templates)
	if err != nil {
		return nil, err
	}
	defaults, err := template.ParseFS(defaultFS, "defaults/*")
	if err != nil {
		return nil, fmt.Errorf("parse builtin layouts: %w", err)
	}
	return &Renderer{
		cfg:      cfg,
		site:     site,
		tpls:     tpls,
		defaults: defaults,
		md:       newMarkdown(),
		log:      log,
	}, nil
}

// Render produces the artifact's bytes and records every consulted identity
// on rec. A failed render returns an error and the caller drops the recorder,
// so no partial edge set survives.
func (r *Renderer) Render(ctx context.Context, a Artifact, rec *deps.Recorder) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Assets copy verbatim; only their own identity matters. Everything
	// else consults configuration, so it gets a config edge up front.
	if a.Kind == KindAsset {
		return r.copyAsset(a, rec)
	}
	rec.Record(source.ConfigIdentity)

	switch a.Kind {
	case KindPage:
		return r.renderPage(a, rec)
	case KindSection:
		return r.renderSection(a, rec)
	case KindTerm:
		return r.renderTerm(a, rec)
	case KindFeed:
		return r.renderFeed(rec)
	default:
		return nil, fmt.Errorf("unknown artifact kind %q for %s", a.Kind, a.Path)
	}
}

func (r *Renderer) copyAsset(a Artifact, rec *deps.Recorder) ([]byte, error) {
	rec.Record(source.Asset(a.Path))
	data, err := os.ReadFile(a.AssetSource) // #nosec G304 - paths come from the static walk
	if err != nil {
		return nil, fmt.Errorf("copy asset %s: %w", a.Path, err)
	}
	return data, nil
}

func (r *Renderer) renderPage(a Artifact, rec *deps.Recorder) ([]byte, error) {
	page := a.Page
	rec.Record(page.Identity())
	r.recordSections(rec, page.Section)

	pd, err := r.pageData(page, true)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", page.RelPath, err)
	}
	data := Data{Site: r.siteData(), Title: page.Title, Page: &pd}
	return r.execute(r.layoutFor(page, "page.html"), "page.html", data, rec)
}

func (r *Renderer) renderSection(a Artifact, rec *deps.Recorder) ([]byte, error) {
	sec := a.Section
	r.recordSections(rec, sec.Path)
	// Membership edge: a page added to or removed from this section must
	// invalidate the listing even though it had no edge to that page yet.
	rec.Record(source.SectionList(sec.Path))

	data := Data{Site: r.siteData(), Title: r.cfg.Title}
	if sec.Path != "" {
		data.Title = sec.Path
	}
	if a.Page != nil {
		rec.Record(a.Page.Identity())
		pd, err := r.pageData(a.Page, true)
		if err != nil {
			return nil, fmt.Errorf("render section %q: %w", sec.Path, err)
		}
		data.Title = a.Page.Title
		data.Page = &pd
	}

	for _, page := range r.site.PagesInSection(sec.Path) {
		if page.Draft {
			continue
		}
		rec.Record(page.Identity())
		pd, err := r.pageData(page, false)
		if err != nil {
			return nil, fmt.Errorf("render section %q: %w", sec.Path, err)
		}
		data.Pages = append(data.Pages, pd)
	}

	return r.execute(r.layoutFor(a.Page, "list.html"), "list.html", data, rec)
}

func (r *Renderer) renderTerm(a Artifact, rec *deps.Recorder) ([]byte, error) {
	term := a.Term
	rec.Record(term.Identity())

	data := Data{Site: r.siteData(), Title: term.Name}
	for _, rel := range term.Members {
		page, ok := r.site.PageByRelPath(rel)
		if !ok {
			continue
		}
		rec.Record(page.Identity())
		pd, err := r.pageData(page, false)
		if err != nil {
			return nil, fmt.Errorf("render term %s/%s: %w", term.Taxonomy, term.Slug, err)
		}
		data.Pages = append(data.Pages, pd)
	}

	return r.execute(r.layoutFor(nil, "list.html"), "list.html", data, rec)
}

func (r *Renderer) renderFeed(rec *deps.Recorder) ([]byte, error) {
	// The feed enumerates every regular page, so new pages anywhere must
	// reach it through the site-wide page list.
	rec.Record(source.PageListIdentity)
	data := Data{Site: r.siteData(), Title: r.cfg.Title}

	pages := r.site.RegularPages()
	for _, page := range pages {
		if page.Draft {
			continue
		}
		if len(data.Pages) >= r.cfg.FeedLimit {
			break
		}
		rec.Record(page.Identity())
		pd, err := r.pageData(page, false)
		if err != nil {
			return nil, fmt.Errorf("render feed: %w", err)
		}
		pd.URL = joinURL(r.cfg.BaseURL, pd.URL)
		data.Pages = append(data.Pages, pd)
	}
	if len(data.Pages) > 0 {
		data.Updated = data.Pages[0].Lastmod
	}

	return r.execute(r.layoutFor(nil, "feed.xml"), "feed.xml", data, rec)
}

// recordSections records the artifact's whole section ancestry. These edges
// are what propagate cascade changes: editing a section's cascade moves that
// section's fingerprint, and every artifact under it carries an edge here.
func (r *Renderer) recordSections(rec *deps.Recorder, sectionPath string) {
	for _, p := range content.AncestorSections(sectionPath) {
		rec.Record(source.Section(p))
	}
}

func (r *Renderer) siteData() SiteData {
	return SiteData{Title: r.cfg.Title, BaseURL: r.cfg.BaseURL, Params: r.cfg.Params}
}

// pageData builds the template context for a page. Listing entries skip the
// markdown conversion; only the page's own artifact needs the body.
func (r *Renderer) pageData(page *content.Page, withBody bool) (PageData, error) {
	pd := PageData{
		Title:   page.Title,
		URL:     page.URL(),
		Date:    page.Date,
		Lastmod: page.Lastmod,
		Section: page.Section,
		Fields:  page.Fields,
		Terms:   page.Terms,
	}
	if withBody {
		html, err := renderMarkdown(r.md, page.Body)
		if err != nil {
			return PageData{}, err
		}
		pd.Content = html
	}
	return pd, nil
}

// layoutFor resolves the layout file for a page: an explicit frontmatter
// layout wins, then the conventional fallback, then the builtin default.
func (r *Renderer) layoutFor(page *content.Page, fallback string) string {
	if page != nil {
		if name, ok := page.Fields["layout"].(string); ok && name != "" {
			for _, candidate := range []string{name, name + ".html"} {
				if r.tpls.Has(candidate) {
					return candidate
				}
			}
			r.log.Warn("layout not found, falling back",
				slog.String("layout", name), slog.String("page", page.RelPath))
		}
	}
	if r.tpls.Has(fallback) {
		return fallback
	}
	return ""
}

// execute runs the layout (or the builtin default when layout is empty) and
// records the layout's full include closure.
func (r *Renderer) execute(layout, defaultName string, data Data, rec *deps.Recorder) ([]byte, error) {
	var buf bytes.Buffer
	if layout == "" {
		if err := r.defaults.ExecuteTemplate(&buf, defaultName, data); err != nil {
			return nil, fmt.Errorf("execute builtin layout %s: %w", defaultName, err)
		}
		return buf.Bytes(), nil
	}

	for _, id := range r.tpls.Closure(layout) {
		rec.Record(id)
	}
	if err := r.tpls.Lookup(layout).Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute layout %s: %w", layout, err)
	}
	return buf.Bytes(), nil
}

func joinURL(base, rel string) string {
	return strings.TrimSuffix(base, "/") + rel
}
