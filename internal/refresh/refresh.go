// Package refresh keeps local copies of remote datasets current. A refresh
// either replaces the local copy completely or leaves it untouched.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/mapviz/internal/adapter/github"
	"github.com/couchcryptid/mapviz/internal/adapter/socrata"
	"github.com/couchcryptid/mapviz/internal/config"
	"github.com/couchcryptid/mapviz/internal/domain"
	"github.com/couchcryptid/mapviz/internal/fileutil"
)

// GitHub lists and downloads repository files.
type GitHub interface {
	ListDirectory(ctx context.Context, owner, repo, ref, dir string) ([]github.Entry, error)
	Download(ctx context.Context, owner, repo, ref, file string, w io.Writer) (int64, error)
}

// Socrata exports dataset rows as CSV.
type Socrata interface {
	ExportCSV(ctx context.Context, q socrata.Query, w io.Writer) (int64, error)
}

// FetchError reports a failed refresh. The previous local copy is intact.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Snapshot is the local copy a run reads.
type Snapshot struct {
	Path    string
	Fetched bool     // downloaded by this refresh
	Remote  string   // remote file or query the copy came from
	Bytes   int64    // bytes downloaded
	Removed []string // superseded copies deleted after the download

	// Query window of socrata sources; zero otherwise.
	From, To time.Time
}

// Controller refreshes sources into a data directory.
type Controller struct {
	dir     string
	github  GitHub
	socrata Socrata
	logger  *slog.Logger
}

// NewController creates a refresh controller writing into dir. Either client
// may be nil when no pipeline uses that source type.
func NewController(dir string, gh GitHub, sc Socrata, logger *slog.Logger) *Controller {
	return &Controller{dir: dir, github: gh, socrata: sc, logger: logger}
}

// Dir returns the data directory.
func (c *Controller) Dir() string { return c.dir }

// Refresh downloads the newest data for src. Static sources are never
// fetched; their local file is returned as is. Failures return a *FetchError.
func (c *Controller) Refresh(ctx context.Context, src config.Source) (Snapshot, error) {
	switch src.Type {
	case config.SourceGitHub:
		return c.refreshGitHub(ctx, src)
	case config.SourceSocrata:
		return c.refreshSocrata(ctx, src)
	case config.SourceStatic:
		return c.Local(src)
	default:
		return Snapshot{}, fmt.Errorf("%w: unknown source type %q", domain.ErrConfig, src.Type)
	}
}

// Local returns the current local copy for src without any network access.
func (c *Controller) Local(src config.Source) (Snapshot, error) {
	if src.Type == config.SourceGitHub {
		path, err := Latest(c.dir, src.Prefix)
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{Path: path}, nil
	}

	path := filepath.Join(c.dir, src.File)
	if _, err := os.Stat(path); err != nil {
		return Snapshot{}, &domain.LoadError{Path: path, Err: err}
	}
	return Snapshot{Path: path}, nil
}

func (c *Controller) refreshGitHub(ctx context.Context, src config.Source) (Snapshot, error) {
	fail := func(err error) (Snapshot, error) {
		return Snapshot{}, &FetchError{Source: src.Owner + "/" + src.Repo, Err: err}
	}
	if c.github == nil {
		return fail(errors.New("github client not configured"))
	}

	entries, err := c.github.ListDirectory(ctx, src.Owner, src.Repo, src.Ref, src.Path)
	if err != nil {
		return fail(err)
	}
	newest, err := NewestEntry(entries, src.NameLayout)
	if err != nil {
		return fail(err)
	}

	name := src.Prefix + newest.Name
	path := filepath.Join(c.dir, name)
	var n int64
	err = fileutil.WriteAtomic(path, func(w io.Writer) error {
		var err error
		n, err = c.github.Download(ctx, src.Owner, src.Repo, src.Ref, newest.Path, w)
		return err
	})
	if err != nil {
		return fail(err)
	}

	removed := c.prune(src.Prefix, name)
	c.logger.Info("dataset refreshed", "source", src.Type, "remote", newest.Path, "path", path, "bytes", n)
	return Snapshot{Path: path, Fetched: true, Remote: newest.Path, Bytes: n, Removed: removed}, nil
}

func (c *Controller) refreshSocrata(ctx context.Context, src config.Source) (Snapshot, error) {
	fail := func(err error) (Snapshot, error) {
		return Snapshot{}, &FetchError{Source: src.Dataset, Err: err}
	}
	if c.socrata == nil {
		return fail(errors.New("socrata client not configured"))
	}

	from, to := domain.TrailingWindow(src.WindowDays)
	q := socrata.Query{
		BaseURL: src.BaseURL,
		Dataset: src.Dataset,
		Where:   socrata.Between(src.DateField, from, to),
		Limit:   src.Limit,
	}

	path := filepath.Join(c.dir, src.File)
	var n int64
	err := fileutil.WriteAtomic(path, func(w io.Writer) error {
		var err error
		n, err = c.socrata.ExportCSV(ctx, q, w)
		return err
	})
	if err != nil {
		return fail(err)
	}

	c.logger.Info("dataset refreshed", "source", src.Type, "dataset", src.Dataset,
		"from", from.Format(time.DateOnly), "to", to.Format(time.DateOnly), "bytes", n)
	return Snapshot{Path: path, Fetched: true, Remote: q.Where, Bytes: n, From: from, To: to}, nil
}

// prune deletes copies with the prefix other than keep. Failures are logged.
func (c *Controller) prune(prefix, keep string) []string {
	matches, err := filepath.Glob(filepath.Join(c.dir, globEscape(prefix)+"*"))
	if err != nil {
		c.logger.Warn("list superseded copies", "prefix", prefix, "error", err)
		return nil
	}
	var removed []string
	for _, m := range matches {
		if filepath.Base(m) == keep {
			continue
		}
		if err := os.Remove(m); err != nil {
			c.logger.Warn("remove superseded copy", "path", m, "error", err)
			continue
		}
		removed = append(removed, m)
	}
	return removed
}

// Latest returns the most recently modified file in dir whose name starts
// with prefix. Ties go to the lexically greatest name.
func Latest(dir, prefix string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, globEscape(prefix)+"*"))
	if err != nil {
		return "", fmt.Errorf("list %s: %w", dir, err)
	}

	var (
		best     string
		bestTime time.Time
	)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		mt := info.ModTime()
		if best == "" || mt.After(bestTime) || (mt.Equal(bestTime) && m > best) {
			best, bestTime = m, mt
		}
	}
	if best == "" {
		return "", &domain.LoadError{Path: filepath.Join(dir, prefix+"*"), Err: fs.ErrNotExist}
	}
	return best, nil
}

// NewestEntry picks the file whose name, parsed with layout, is the latest
// date. When no name parses it falls back to the lexically greatest file
// with the layout's extension.
func NewestEntry(entries []github.Entry, layout string) (github.Entry, error) {
	var (
		dated   github.Entry
		newest  time.Time
		found   bool
		lexical []github.Entry
	)
	ext := filepath.Ext(layout)
	for _, e := range entries {
		if e.Type != "file" {
			continue
		}
		if layout != "" {
			if t, err := time.Parse(layout, e.Name); err == nil {
				if !found || t.After(newest) {
					dated, newest, found = e, t, true
				}
				continue
			}
		}
		if ext == "" || strings.EqualFold(filepath.Ext(e.Name), ext) {
			lexical = append(lexical, e)
		}
	}
	if found {
		return dated, nil
	}
	if len(lexical) == 0 {
		return github.Entry{}, errors.New("no matching files in listing")
	}
	sort.Slice(lexical, func(i, j int) bool { return lexical[i].Name < lexical[j].Name })
	return lexical[len(lexical)-1], nil
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	return r.Replace(s)
}
