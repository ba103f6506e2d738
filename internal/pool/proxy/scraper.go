package proxy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// ListingScraper replenishes the pool by scraping a free proxy listing page.
// Listing pages present one proxy per table row with IP and PORT cells.
type ListingScraper struct {
	url     string
	timeout time.Duration
	logger  *zap.Logger
}

// NewListingScraper builds a scraper for the given listing URL.
func NewListingScraper(url string, logger *zap.Logger) *ListingScraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingScraper{
		url:     url,
		timeout: 15 * time.Second,
		logger:  logger,
	}
}

// Scrape fetches the listing page and extracts proxy addresses.
func (s *ListingScraper) Scrape(ctx context.Context) ([]string, error) {
	if s.url == "" {
		return nil, nil
	}

	var addrs []string
	c := colly.NewCollector(colly.Async(false))
	c.SetRequestTimeout(s.timeout)

	c.OnHTML("tr", func(e *colly.HTMLElement) {
		ip := strings.TrimSpace(e.ChildText("td[data-title=IP]"))
		port := strings.TrimSpace(e.ChildText("td[data-title=PORT]"))
		if ip == "" || port == "" {
			// Fall back to positional cells for listings without data-title.
			cells := e.ChildTexts("td")
			if len(cells) >= 2 {
				ip = strings.TrimSpace(cells[0])
				port = strings.TrimSpace(cells[1])
			}
		}
		if ip == "" || port == "" {
			return
		}
		if _, err := strconv.Atoi(port); err != nil {
			return
		}
		addrs = append(addrs, fmt.Sprintf("http://%s:%s", ip, port))
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(s.url)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("proxy listing scrape canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("proxy listing scrape: %w", err)
		}
	}

	s.logger.Debug("scraped proxy listing",
		zap.String("url", s.url), zap.Int("count", len(addrs)))
	return addrs, nil
}
