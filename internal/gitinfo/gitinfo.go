// Package gitinfo resolves per-file last-modified times from git history.
package gitinfo

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"

	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// Resolver answers last-modified queries against a repository's commit log.
// Results are cached for the resolver's lifetime; a resolver spans at most
// one build.
type Resolver struct {
	repo *git.Repository
	root string
	log  *slog.Logger

	cache map[string]time.Time
}

// Open finds the repository containing dir. It walks upward, so a content
// directory nested in a repository works.
func Open(dir string, log *slog.Logger) (*Resolver, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository for %s: %w", dir, err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("repository worktree: %w", err)
	}
	return &Resolver{
		repo:  repo,
		root:  worktree.Filesystem.Root(),
		log:   log,
		cache: map[string]time.Time{},
	}, nil
}

// Lastmod returns the author time of the most recent commit touching the
// file. Uncommitted files report false; the caller falls back to frontmatter.
func (r *Resolver) Lastmod(absPath string) (time.Time, bool) {
	rel, err := filepath.Rel(r.root, absPath)
	if err != nil {
		return time.Time{}, false
	}
	rel = filepath.ToSlash(rel)

	if t, ok := r.cache[rel]; ok {
		return t, !t.IsZero()
	}

	iter, err := r.repo.Log(&git.LogOptions{
		FileName: &rel,
		Order:    git.LogOrderCommitterTime,
	})
	if err != nil {
		r.log.Debug("git log failed", logfields.Path(rel), logfields.Error(err))
		r.cache[rel] = time.Time{}
		return time.Time{}, false
	}
	defer iter.Close()

	commit, err := iter.Next()
	if err != nil {
		r.cache[rel] = time.Time{}
		return time.Time{}, false
	}

	t := commit.Author.When
	r.cache[rel] = t
	return t, true
}
