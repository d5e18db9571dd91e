// Package socrata exports filtered dataset rows as CSV from a Socrata Open
// Data portal (SODA 2.x resource endpoints).
package socrata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/mapviz/internal/observability"
)

const (
	sourceLabel = "socrata"

	// SoQL floating timestamp layout.
	timestampLayout = "2006-01-02T15:04:05.000"
)

// Query selects rows of one dataset.
type Query struct {
	BaseURL string // e.g. https://data.sfgov.org
	Dataset string // four-by-four identifier, e.g. wg3w-h783
	Where   string
	Order   string
	Limit   int
}

// Between builds a SoQL where clause selecting field values in [from, to].
func Between(field string, from, to time.Time) string {
	return fmt.Sprintf("%s between '%s' and '%s'", field, from.Format(timestampLayout), to.Format(timestampLayout))
}

// Client downloads Socrata resources.
type Client struct {
	appToken   string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Socrata client. The app token is optional; without
// one requests share the anonymous throttling pool.
func NewClient(appToken string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		appToken: appToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// ExportCSV streams the rows selected by q into w as CSV, header included.
func (c *Client) ExportCSV(ctx context.Context, q Query, w io.Writer) (int64, error) {
	u, err := resourceURL(q)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")
	if c.appToken != "" {
		req.Header.Set("X-App-Token", c.appToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.SourceDuration.WithLabelValues(sourceLabel).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.SourceRequests.WithLabelValues(sourceLabel, "error").Inc()
		return 0, fmt.Errorf("socrata request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.metrics.SourceRequests.WithLabelValues(sourceLabel, "error").Inc()
		return 0, fmt.Errorf("socrata API error: status %d: %s", resp.StatusCode, body)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		c.metrics.SourceRequests.WithLabelValues(sourceLabel, "error").Inc()
		return n, fmt.Errorf("read %s export: %w", q.Dataset, err)
	}
	c.metrics.SourceRequests.WithLabelValues(sourceLabel, "success").Inc()
	c.logger.Debug("socrata export complete", "dataset", q.Dataset, "bytes", n)
	return n, nil
}

func resourceURL(q Query) (string, error) {
	if q.BaseURL == "" || q.Dataset == "" {
		return "", errors.New("socrata query needs a base URL and a dataset")
	}
	params := url.Values{}
	if q.Where != "" {
		params.Set("$where", q.Where)
	}
	if q.Order != "" {
		params.Set("$order", q.Order)
	}
	if q.Limit > 0 {
		params.Set("$limit", strconv.Itoa(q.Limit))
	}

	u := fmt.Sprintf("%s/resource/%s.csv", strings.TrimRight(q.BaseURL, "/"), url.PathEscape(q.Dataset))
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u, nil
}
