// Package postprocess runs checks over freshly rendered output. Link
// verification is advisory: broken internal links are reported as warnings
// and never fail a build.
package postprocess

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// BrokenLink is one internal reference with no target in the output tree.
type BrokenLink struct {
	// Source is the output-relative path of the page containing the link.
	Source string
	// Target is the href/src as written.
	Target string
}

// LinkChecker verifies internal links in rendered HTML.
type LinkChecker struct {
	outputDir string
	baseURL   string
	log       *slog.Logger
}

// NewLinkChecker builds a checker rooted at the output directory.
func NewLinkChecker(outputDir, baseURL string, log *slog.Logger) *LinkChecker {
	return &LinkChecker{outputDir: outputDir, baseURL: baseURL, log: log}
}

// Check parses the given rendered artifacts (output-relative paths) and
// verifies every internal link resolves to a file in the output tree.
// External links are skipped; verifying them needs the network and belongs
// to a separate tool.
func (c *LinkChecker) Check(artifacts []string) ([]BrokenLink, error) {
	var broken []BrokenLink
	for _, rel := range artifacts {
		if !strings.HasSuffix(rel, ".html") {
			continue
		}
		links, err := c.extractLinks(rel)
		if err != nil {
			c.log.Warn("link check skipped unreadable artifact",
				logfields.Path(rel), logfields.Error(err))
			continue
		}
		for _, target := range links {
			if !c.resolves(rel, target) {
				broken = append(broken, BrokenLink{Source: rel, Target: target})
			}
		}
	}
	return broken, nil
}

// extractLinks returns the internal href/src values of one rendered page.
func (c *LinkChecker) extractLinks(rel string) ([]string, error) {
	f, err := os.Open(filepath.Join(c.outputDir, filepath.FromSlash(rel))) // #nosec G304 - paths come from the render plan
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var out []string
	for node := range doc.Descendants() {
		if node.Type != html.ElementNode {
			continue
		}
		for _, attr := range node.Attr {
			if attr.Key != "href" && attr.Key != "src" {
				continue
			}
			if target, ok := c.internalTarget(attr.Val); ok {
				out = append(out, target)
			}
		}
	}
	return out, nil
}

// internalTarget reports whether a link points into this site and returns
// the site-root-relative form.
func (c *LinkChecker) internalTarget(raw string) (string, bool) {
	if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "mailto:") {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}
	target := u.Path
	if base := strings.TrimSuffix(c.baseURL, "/"); base != "" {
		target = strings.TrimPrefix(target, base)
	}
	return target, target != ""
}

// resolves checks whether a target path exists in the output tree, trying
// the path itself and its directory index.
func (c *LinkChecker) resolves(sourceRel, target string) bool {
	rel := target
	if !strings.HasPrefix(rel, "/") {
		rel = path.Join(path.Dir(sourceRel), rel)
	}
	rel = strings.TrimPrefix(path.Clean(rel), "/")

	candidates := []string{rel, path.Join(rel, "index.html")}
	for _, candidate := range candidates {
		if candidate == "" || candidate == "." {
			candidate = "index.html"
		}
		if _, err := os.Stat(filepath.Join(c.outputDir, filepath.FromSlash(candidate))); err == nil {
			return true
		}
	}
	return false
}
