// Package titles streams article titles from the wiki all-titles dump.
package titles

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// DefaultDumpURL points at the English Wikipedia main-namespace title dump.
const DefaultDumpURL = "https://dumps.wikimedia.org/enwiki/latest/enwiki-latest-all-titles-in-ns0.gz"

// DumpSource downloads and decompresses the gzip title dump, yielding one
// normalized title per line. The dump holds tens of millions of lines, so
// titles are streamed to a visitor instead of being slurped into a slice.
type DumpSource struct {
	httpClient *http.Client
	url        string
	logger     *zap.Logger
}

// NewDumpSource builds a DumpSource for the given dump URL. No timeout is set
// on the download client: the dump transfer legitimately runs for minutes,
// and cancellation flows through the context instead.
func NewDumpSource(dumpURL string, logger *zap.Logger) *DumpSource {
	if dumpURL == "" {
		dumpURL = DefaultDumpURL
	}
	return &DumpSource{
		httpClient: &http.Client{},
		url:        dumpURL,
		logger:     logger,
	}
}

// ListAllTitles streams every title in the dump to visit, in dump order.
// Blank lines and comment lines are skipped; underscores become spaces. A
// visit error aborts the stream and is returned unchanged.
func (s *DumpSource) ListAllTitles(ctx context.Context, visit func(title string) error) error {
	s.logger.Info("downloading title dump", zap.String("url", s.url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("build dump request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download dump: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.logger.Warn("failed to close dump body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download dump: unexpected status %d", resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer func() {
		if cerr := gz.Close(); cerr != nil {
			s.logger.Warn("failed to close gzip reader", zap.Error(cerr))
		}
	}()

	var count int64
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := visit(strings.ReplaceAll(line, "_", " ")); err != nil {
			return err
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read dump: %w", err)
	}

	s.logger.Info("title dump complete", zap.Int64("titles", count))
	return nil
}
