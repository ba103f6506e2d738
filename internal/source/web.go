package source

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/dataforge/collector/internal/collector"
)

// Renderer produces a DOM snapshot with JavaScript executed. Used when a
// static fetch looks bot-blocked or script-rendered.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Detector decides whether a static fetch needs headless promotion.
type Detector interface {
	NeedsRender(html string) bool
}

// WebSource scrapes records from an HTML page using a CSS selector per item
// plus one sub-selector per field. This is a blocking strategy; the
// dispatcher offloads it onto the bounded worker pool.
type WebSource struct {
	fetcher  Fetcher
	renderer Renderer
	detector Detector
	logger   *zap.Logger
}

// NewWebSource builds a WebSource. renderer and detector are optional; when
// absent, pages are parsed as fetched.
func NewWebSource(fetcher Fetcher, renderer Renderer, detector Detector, logger *zap.Logger) *WebSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSource{fetcher: fetcher, renderer: renderer, detector: detector, logger: logger}
}

// Collect fetches the page and extracts one record per selector match.
// Fields whose sub-selector has no match yield nil rather than failing the
// item.
func (s *WebSource) Collect(ctx context.Context, cfg collector.SourceConfig) ([]collector.Record, error) {
	result, err := s.fetcher.Execute(ctx, cfg.URL, "GET", nil, authHeaders(cfg))
	if err != nil {
		return nil, err
	}

	html := result.Text
	if result.Kind != collector.ResultText {
		html = ""
	}

	if s.shouldRender(cfg, html) {
		rendered, rerr := s.renderer.Render(ctx, cfg.URL)
		if rerr != nil {
			s.logger.Warn("headless render failed, using static fetch",
				zap.String("url", cfg.URL), zap.Error(rerr))
		} else {
			html = rendered
		}
	}

	return extractRecords(html, cfg.Crawler)
}

func (s *WebSource) shouldRender(cfg collector.SourceConfig, html string) bool {
	if s.renderer == nil {
		return false
	}
	if cfg.Crawler.Render {
		return true
	}
	return s.detector != nil && s.detector.NeedsRender(html)
}

func extractRecords(html string, crawler collector.CrawlerConfig) ([]collector.Record, error) {
	if crawler.Selector == "" {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var records []collector.Record
	doc.Find(crawler.Selector).Each(func(_ int, sel *goquery.Selection) {
		record := make(collector.Record, len(crawler.Fields))
		for field, fieldSelector := range crawler.Fields {
			match := sel.Find(fieldSelector).First()
			if match.Length() == 0 {
				record[field] = nil
				continue
			}
			record[field] = strings.TrimSpace(match.Text())
		}
		records = append(records, record)
	})
	return records, nil
}
