// Package executor performs single HTTP requests through the anti-detection
// stack: a rate permit, a pooled proxy, a pooled cookie, and randomized
// headers per attempt.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dataforge/collector/internal/collector"
	"github.com/dataforge/collector/internal/metrics"
	"github.com/dataforge/collector/internal/pool/cookie"
	"github.com/dataforge/collector/internal/pool/proxy"
	"github.com/dataforge/collector/internal/ratelimit"
)

// Config controls Executor behavior.
type Config struct {
	Timeout     time.Duration
	MaxAttempts int
}

// Executor composes the rate limiter and the resource pools into a single
// request path. Each attempt draws a fresh proxy, so one bad egress does not
// abort the whole fetch.
type Executor struct {
	limiter *ratelimit.Limiter
	proxies *proxy.Pool
	cookies *cookie.Pool
	cfg     Config
	backoff *collector.ExponentialBackoff
	logger  *zap.Logger
}

// New constructs an Executor.
func New(
	limiter *ratelimit.Limiter,
	proxies *proxy.Pool,
	cookies *cookie.Pool,
	cfg Config,
	logger *zap.Logger,
) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		limiter: limiter,
		proxies: proxies,
		cookies: cookies,
		cfg:     cfg,
		backoff: collector.NewExponentialBackoff(),
		logger:  logger,
	}
}

// Execute performs one fetch: rate permit, proxy, cookie, headers, request.
// A missing proxy or cookie degrades gracefully; a non-2xx status or
// transport failure is retried with a fresh proxy draw and finally surfaces
// as a FetchError.
func (e *Executor) Execute(
	ctx context.Context,
	rawURL, method string,
	params map[string]string,
	extraHeaders map[string]string,
) (collector.FetchResult, error) {
	domain, err := collector.Domain(rawURL)
	if err != nil {
		return collector.FetchResult{}, err
	}

	if err := e.limiter.Wait(ctx, domain); err != nil {
		return collector.FetchResult{}, err
	}

	cookieVal, err := e.cookies.Get(ctx, domain)
	if err != nil {
		e.logger.Warn("cookie pool unavailable, proceeding without cookie",
			zap.String("domain", domain), zap.Error(err))
		cookieVal = ""
	}

	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if serr := e.backoff.Sleep(ctx, attempt-1); serr != nil {
				break
			}
		}

		proxyAddr, perr := e.proxies.Get(ctx)
		if perr != nil {
			e.logger.Warn("proxy pool unavailable, proceeding without proxy",
				zap.String("domain", domain), zap.Error(perr))
			proxyAddr = ""
		}

		result, aerr := e.attempt(ctx, rawURL, method, params, extraHeaders, cookieVal, proxyAddr)
		if aerr == nil {
			metrics.ObserveFetch(domain, "success")
			return result, nil
		}
		metrics.ObserveFetch(domain, "failure")
		lastErr = aerr
		if !collector.Retryable(aerr) {
			break
		}
		e.logger.Debug("fetch attempt failed, retrying with fresh proxy",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Error(aerr),
		)
	}

	return collector.FetchResult{}, &collector.FetchError{
		URL:      rawURL,
		Attempts: e.cfg.MaxAttempts,
		Err:      lastErr,
	}
}

// attempt issues exactly one HTTP request and feeds proxy score feedback.
func (e *Executor) attempt(
	ctx context.Context,
	rawURL, method string,
	params, extraHeaders map[string]string,
	cookieVal, proxyAddr string,
) (collector.FetchResult, error) {
	req, err := e.buildRequest(ctx, rawURL, method, params, extraHeaders, cookieVal)
	if err != nil {
		return collector.FetchResult{}, err
	}

	client, err := e.buildClient(proxyAddr)
	if err != nil {
		return collector.FetchResult{}, err
	}

	resp, err := client.Do(req)
	if err != nil {
		e.scoreFeedback(ctx, proxyAddr, false)
		return collector.FetchResult{}, fmt.Errorf("request %s: %w", rawURL, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			e.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.scoreFeedback(ctx, proxyAddr, false)
		return collector.FetchResult{}, fmt.Errorf("request %s: status %d", rawURL, resp.StatusCode)
	}

	e.scoreFeedback(ctx, proxyAddr, true)
	return e.decode(resp)
}

func (e *Executor) buildRequest(
	ctx context.Context,
	rawURL, method string,
	params, extraHeaders map[string]string,
	cookieVal string,
) (*http.Request, error) {
	canonical, err := collector.CanonicalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, canonical, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if len(params) > 0 {
		q := req.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}
	req.Header = buildHeaders(cookieVal, extraHeaders)
	return req, nil
}

func (e *Executor) buildClient(proxyAddr string) (*http.Client, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	if proxyAddr != "" {
		proxyURL, err := url.Parse(proxyAddr)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %s: %w", proxyAddr, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &http.Client{Timeout: e.cfg.Timeout, Transport: transport}, nil
}

func (e *Executor) decode(resp *http.Response) (collector.FetchResult, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return collector.FetchResult{}, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return collector.FetchResult{Kind: collector.ResultEmpty, StatusCode: resp.StatusCode}, nil
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err != nil {
			return collector.FetchResult{}, fmt.Errorf("decode json body: %w", err)
		}
		return collector.FetchResult{
			Kind:       collector.ResultJSON,
			JSON:       decoded,
			StatusCode: resp.StatusCode,
		}, nil
	}
	return collector.FetchResult{
		Kind:       collector.ResultText,
		Text:       string(body),
		StatusCode: resp.StatusCode,
	}, nil
}

func (e *Executor) scoreFeedback(ctx context.Context, proxyAddr string, success bool) {
	if proxyAddr == "" {
		return
	}
	if err := e.proxies.UpdateScore(ctx, proxyAddr, success); err != nil {
		e.logger.Warn("proxy score update failed",
			zap.String("proxy", proxyAddr), zap.Error(err))
	}
}
