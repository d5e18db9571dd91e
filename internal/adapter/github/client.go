// Package github lists and downloads files from public GitHub repositories
// through the contents API and the raw content host.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/mapviz/internal/observability"
)

const sourceLabel = "github"

// Entry is one item of a repository directory listing.
type Entry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"` // file, dir, symlink, submodule
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url"`
}

// Client talks to the GitHub REST API and raw.githubusercontent.com.
type Client struct {
	token      string
	httpClient *http.Client
	apiURL     string
	rawURL     string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a GitHub client. An empty token makes unauthenticated
// requests, which GitHub rate limits to 60 per hour.
func NewClient(apiURL, rawURL, token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		apiURL:  strings.TrimRight(apiURL, "/"),
		rawURL:  strings.TrimRight(rawURL, "/"),
		metrics: metrics,
		logger:  logger,
	}
}

// ListDirectory returns the entries of a repository directory at ref.
func (c *Client) ListDirectory(ctx context.Context, owner, repo, ref, dir string) ([]Entry, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.apiURL, owner, repo, escapePath(dir))
	if ref != "" {
		u += "?" + url.Values{"ref": {ref}}.Encode()
	}

	body, err := c.doRequest(ctx, u, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var entries []Entry
	if err := json.NewDecoder(body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	return entries, nil
}

// Download streams the raw content of a repository file at ref into w.
func (c *Client) Download(ctx context.Context, owner, repo, ref, file string, w io.Writer) (int64, error) {
	if ref == "" {
		ref = "HEAD"
	}
	u := fmt.Sprintf("%s/%s/%s/%s/%s", c.rawURL, owner, repo, url.PathEscape(ref), escapePath(file))

	body, err := c.doRequest(ctx, u, "")
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err := io.Copy(w, body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", file, err)
	}
	c.logger.Debug("github download complete", "file", file, "bytes", n)
	return n, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "mapviz")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.SourceDuration.WithLabelValues(sourceLabel).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.SourceRequests.WithLabelValues(sourceLabel, "error").Inc()
		return nil, fmt.Errorf("github request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.metrics.SourceRequests.WithLabelValues(sourceLabel, "error").Inc()
		return nil, fmt.Errorf("github API error: status %d: %s", resp.StatusCode, body)
	}

	c.metrics.SourceRequests.WithLabelValues(sourceLabel, "success").Inc()
	return resp.Body, nil
}

// escapePath escapes each segment of a slash separated repository path.
func escapePath(p string) string {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
