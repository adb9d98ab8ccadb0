// Package fetcher retrieves the outgoing article links of a wiki page via the
// Wikimedia REST API.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// ErrPageMissing signals a 404 for the requested title.
var ErrPageMissing = errors.New("page not found")

// DefaultBaseURL is the Wikimedia REST API root for English Wikipedia.
const DefaultBaseURL = "https://en.wikipedia.org/api/rest_v1"

// Config controls the REST client.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client fetches rendered page HTML and extracts normalized article links.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     *zap.Logger
}

// New builds a Client. Zero-value config fields fall back to the Wikimedia
// defaults and a 30 second timeout.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "wikigraph/1.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		logger:     logger,
	}
}

// FetchLinks downloads the rendered HTML for title and returns its outgoing
// article links, normalized and de-duplicated. The REST renderer emits
// article links as relative hrefs of the form "./Target_title".
func (c *Client) FetchLinks(ctx context.Context, title string) ([]string, error) {
	pageURL := c.baseURL + "/page/html/" + url.PathEscape(title)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %q: %w", title, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", title, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("failed to close response body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("fetch %q: %w", title, ErrPageMissing)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %q: unexpected status %d", title, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", title, err)
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find(`a[href^="./"]`).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		target, ok := NormalizeTarget(href)
		if !ok {
			return
		}
		if _, dup := seen[target]; dup {
			return
		}
		seen[target] = struct{}{}
		links = append(links, target)
	})
	return links, nil
}
