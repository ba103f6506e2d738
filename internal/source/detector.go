package source

import (
	"strings"
)

// HeuristicDetector flags pages that look bot-blocked or script-rendered
// using simple HTML signals.
type HeuristicDetector struct {
	minHTMLBytes int
	keywords     []string
}

// NewHeuristicDetector constructs a Detector with the configured thresholds.
// Zero minBytes disables the size check; nil keywords fall back to common
// anti-bot interstitial markers.
func NewHeuristicDetector(minBytes int, keywords []string) *HeuristicDetector {
	if keywords == nil {
		keywords = []string{
			"enable javascript",
			"checking your browser",
			"captcha",
			"access denied",
		}
	}
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(strings.ToLower(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &HeuristicDetector{minHTMLBytes: minBytes, keywords: lowered}
}

// NeedsRender inspects the page for signals that headless rendering is
// warranted.
func (d *HeuristicDetector) NeedsRender(html string) bool {
	if d == nil {
		return false
	}
	if d.minHTMLBytes > 0 && len(html) < d.minHTMLBytes {
		return true
	}
	if len(html) == 0 {
		return false
	}
	lowered := strings.ToLower(html)
	for _, kw := range d.keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
